package dto

import (
	"context"
	"strings"

	"github.com/flexprice/ebilling/internal/domain/document"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/flexprice/ebilling/internal/validator"
)

// CreateDocumentRequest queues a fiscal document for a tenant
type CreateDocumentRequest struct {
	TenantID        string             `json:"tenant_id" validate:"required"`
	Kind            types.DocumentKind `json:"kind" validate:"required"`
	SourceReference string             `json:"source_reference,omitempty" validate:"omitempty,max=255"`
	OrderNumber     string             `json:"order_number,omitempty" validate:"omitempty,max=100"`
	Payload         map[string]any     `json:"payload" validate:"required"`
}

func (r *CreateDocumentRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.Kind.Validate(); err != nil {
		return err
	}
	if len(r.Payload) == 0 {
		return ierr.NewError("payload is required").
			WithHint("Document payload cannot be empty").
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (r *CreateDocumentRequest) ToDocument(ctx context.Context) *document.Document {
	base := types.GetDefaultBaseModel(ctx)
	base.TenantID = strings.TrimSpace(r.TenantID)
	return &document.Document{
		ID:              types.GenerateUUIDWithPrefix(types.UUID_PREFIX_DOCUMENT),
		Kind:            r.Kind,
		SourceReference: r.SourceReference,
		OrderNumber:     r.OrderNumber,
		Payload:         types.JSONMap(r.Payload),
		DocumentStatus:  types.DocumentStatusPending,
		BaseModel:       base,
	}
}

type DocumentResponse struct {
	*document.Document
}

func ToDocumentResponse(d *document.Document) *DocumentResponse {
	if d == nil {
		return nil
	}
	return &DocumentResponse{Document: d}
}

type ListDocumentsResponse = types.ListResponse[*DocumentResponse]

// DocumentFileResponse is a downloaded artifact ready to be streamed
type DocumentFileResponse struct {
	DocumentID  string                 `json:"document_id"`
	Kind        types.DocumentFileKind `json:"kind"`
	FileName    string                 `json:"file_name"`
	ContentType string                 `json:"content_type"`
	Data        []byte                 `json:"-"`
}

// ReconcileDocumentsRequest bounds a reconcile or resubmit pass. An empty
// tenant covers every tenant.
type ReconcileDocumentsRequest struct {
	TenantID string `json:"tenant_id,omitempty"`
	Limit    int    `json:"limit,omitempty" validate:"omitempty,min=1,max=1000"`
}

func (r *ReconcileDocumentsRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type ReconcileDocumentsResponse struct {
	Checked   int `json:"checked"`
	Accepted  int `json:"accepted"`
	Rejected  int `json:"rejected"`
	Unchanged int `json:"unchanged"`
	Errors    int `json:"errors"`
}

type ResubmitDocumentsResponse struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}
