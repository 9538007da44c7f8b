package document

import (
	"context"
	"time"

	"github.com/flexprice/ebilling/internal/types"
)

// Repository persists queued documents. Every status change leaves ACCEPTED
// documents untouched and reports ErrInvalidOperation for them.
type Repository interface {
	Create(ctx context.Context, d *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	// List returns one page and the total number of matches
	List(ctx context.Context, filter *types.DocumentFilter) ([]*Document, int, error)
	CountByStatus(ctx context.Context, tenantID string) (map[types.DocumentStatus]int, error)

	// Claim moves a PENDING or RETRY document to SUBMITTING. Only one caller
	// can hold the claim; the others get ErrInvalidOperation.
	Claim(ctx context.Context, id string) (*Document, error)
	// Release hands a claimed document back in status without submitting it
	Release(ctx context.Context, id string, status types.DocumentStatus) (*Document, error)
	// MarkSent and MarkFailed settle a claimed document
	MarkSent(ctx context.Context, id string, result SentResult) (*Document, error)
	MarkFailed(ctx context.Context, id, message string) (*Document, error)
	// MarkRetry moves the document to RETRY and increments retry_count in one
	// statement. A SUBMITTING document qualifies only when its claim was
	// taken before claimedBefore.
	MarkRetry(ctx context.Context, id string, claimedBefore time.Time) (*Document, error)
	// SetProviderStatus records the outcome reported by the provider for a SENT document
	SetProviderStatus(ctx context.Context, id string, status types.DocumentStatus, message string) (*Document, error)
}

// SentResult is what a successful submission stores on the document
type SentResult struct {
	TrackID        string
	DocumentNumber string
	Prefix         string
	Overage        bool
	SubmittedAt    time.Time
}

// FileRepository memoizes downloaded document artifacts
type FileRepository interface {
	Get(ctx context.Context, documentID string, kind types.DocumentFileKind) (*File, error)
	// Create inserts the file once. When a file already exists for the
	// document and kind, the stored one is returned instead.
	Create(ctx context.Context, f *File) (*File, error)
}
