package ebillingpackage

import (
	"context"

	"github.com/flexprice/ebilling/internal/types"
)

type Repository interface {
	Create(ctx context.Context, p *Package) error
	Get(ctx context.Context, id string) (*Package, error)
	List(ctx context.Context, filter *types.PackageFilter) ([]*Package, int, error)
}
