package document

import (
	"time"

	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/types"
)

// Document is a fiscal document queued for submission to the provider
type Document struct {
	ID              string               `db:"id" json:"id"`
	Kind            types.DocumentKind   `db:"kind" json:"kind"`
	SourceReference string               `db:"source_reference" json:"source_reference"`
	OrderNumber     string               `db:"order_number" json:"order_number"`
	Payload         types.JSONMap        `db:"payload" json:"payload"`
	TrackID         string               `db:"track_id" json:"track_id"`
	DocumentStatus  types.DocumentStatus `db:"document_status" json:"document_status"`
	RetryCount      int                  `db:"retry_count" json:"retry_count"`
	ErrorMessage    string               `db:"error_message" json:"error_message"`
	DocumentNumber  string               `db:"document_number" json:"document_number"`
	Prefix          string               `db:"prefix" json:"prefix"`
	Overage         bool                 `db:"overage" json:"overage"`
	SubmittedAt     *time.Time           `db:"submitted_at" json:"submitted_at,omitempty"`
	types.BaseModel
}

func (d *Document) Validate() error {
	if d.TenantID == "" {
		return ierr.NewError("tenant_id is required").
			WithHint("Tenant ID is required").
			Mark(ierr.ErrValidation)
	}
	if err := d.Kind.Validate(); err != nil {
		return err
	}
	if len(d.Payload) == 0 {
		return ierr.NewError("payload is required").
			WithHint("Document payload cannot be empty").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// File is a cached binary artifact of a document, stored base64 encoded.
// A file is written once and never refreshed automatically.
type File struct {
	ID          string                 `db:"id" json:"id"`
	TenantID    string                 `db:"tenant_id" json:"tenant_id"`
	DocumentID  string                 `db:"document_id" json:"document_id"`
	Kind        types.DocumentFileKind `db:"kind" json:"kind"`
	Content     string                 `db:"content" json:"-"`
	ContentType string                 `db:"content_type" json:"content_type"`
	SizeBytes   int64                  `db:"size_bytes" json:"size_bytes"`
	CreatedAt   time.Time              `db:"created_at" json:"created_at"`
}
