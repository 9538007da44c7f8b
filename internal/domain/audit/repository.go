package audit

import (
	"context"

	"github.com/flexprice/ebilling/internal/types"
)

type Repository interface {
	Create(ctx context.Context, l *Log) error
	List(ctx context.Context, filter *types.AuditLogFilter) ([]*Log, int, error)
}
