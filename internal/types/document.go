package types

import (
	"strings"

	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/samber/lo"
)

// DocumentKind is the fiscal document type sent to the provider
type DocumentKind string

const (
	DocumentKindPOS                   DocumentKind = "POS"
	DocumentKindInvoice               DocumentKind = "INVOICE"
	DocumentKindCreditNote            DocumentKind = "CREDIT_NOTE"
	DocumentKindDebitNote             DocumentKind = "DEBIT_NOTE"
	DocumentKindSupportDocument       DocumentKind = "SUPPORT_DOCUMENT"
	DocumentKindSupportAdjustmentNote DocumentKind = "SUPPORT_ADJUSTMENT_NOTE"
)

var documentKinds = []DocumentKind{
	DocumentKindPOS,
	DocumentKindInvoice,
	DocumentKindCreditNote,
	DocumentKindDebitNote,
	DocumentKindSupportDocument,
	DocumentKindSupportAdjustmentNote,
}

func (k DocumentKind) String() string {
	return string(k)
}

func (k DocumentKind) Validate() error {
	if !lo.Contains(documentKinds, k) {
		return ierr.NewError("invalid document kind").
			WithHintf("Document kind must be one of %v", documentKinds).
			WithReportableDetails(map[string]any{
				"kind": k,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// UsageBucket returns the usage counter a document of this kind is charged to
func (k DocumentKind) UsageBucket() UsageBucket {
	switch k {
	case DocumentKindPOS:
		return UsageBucketPOS
	case DocumentKindInvoice:
		return UsageBucketInvoice
	case DocumentKindCreditNote, DocumentKindDebitNote:
		return UsageBucketNotes
	default:
		return UsageBucketSupport
	}
}

// DocumentStatus is the lifecycle status of a queued document
type DocumentStatus string

const (
	DocumentStatusPending  DocumentStatus = "PENDING"
	DocumentStatusSent     DocumentStatus = "SENT"
	DocumentStatusAccepted DocumentStatus = "ACCEPTED"
	DocumentStatusRejected DocumentStatus = "REJECTED"
	DocumentStatusFailed   DocumentStatus = "FAILED"
	DocumentStatusRetry    DocumentStatus = "RETRY"
	// DocumentStatusSubmitting marks a document claimed by a submission in flight
	DocumentStatusSubmitting DocumentStatus = "SUBMITTING"
)

var documentStatuses = []DocumentStatus{
	DocumentStatusPending,
	DocumentStatusSent,
	DocumentStatusAccepted,
	DocumentStatusRejected,
	DocumentStatusFailed,
	DocumentStatusRetry,
	DocumentStatusSubmitting,
}

func (s DocumentStatus) String() string {
	return string(s)
}

func (s DocumentStatus) Validate() error {
	if !lo.Contains(documentStatuses, s) {
		return ierr.NewError("invalid document status").
			WithHintf("Document status must be one of %v", documentStatuses).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsTerminal reports whether no transition can leave this status
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusAccepted
}

// IsSubmittable reports whether the document can be sent to the provider
func (s DocumentStatus) IsSubmittable() bool {
	return s == DocumentStatusPending || s == DocumentStatusRetry
}

// DocumentFileKind is the kind of binary artifact cached for a document
type DocumentFileKind string

const (
	DocumentFileKindPDF      DocumentFileKind = "PDF"
	DocumentFileKindAttached DocumentFileKind = "ATTACHED"
)

// DocumentFilter filters queued documents
type DocumentFilter struct {
	*QueryFilter
	*TimeRangeFilter

	TenantID string           `json:"tenant_id,omitempty" form:"tenant_id"`
	Kinds    []DocumentKind   `json:"kinds,omitempty" form:"kind"`
	Statuses []DocumentStatus `json:"statuses,omitempty" form:"status"`
	// Query is matched against track id, order number and document number
	Query string `json:"query,omitempty" form:"query"`

	// OnlyWithTrackID restricts the result to documents the provider knows about
	OnlyWithTrackID bool `json:"-" form:"-"`
}

// NewDocumentFilter creates a new document filter with default values
func NewDocumentFilter() *DocumentFilter {
	return &DocumentFilter{
		QueryFilter: NewDefaultQueryFilter(),
	}
}

// NewNoLimitDocumentFilter creates a document filter without pagination
func NewNoLimitDocumentFilter() *DocumentFilter {
	return &DocumentFilter{
		QueryFilter: NewNoLimitQueryFilter(),
	}
}

func (f *DocumentFilter) Validate() error {
	if f == nil {
		return nil
	}
	if f.QueryFilter != nil {
		if err := f.QueryFilter.Validate(); err != nil {
			return err
		}
	}
	if f.TimeRangeFilter != nil {
		if err := f.TimeRangeFilter.Validate(); err != nil {
			return err
		}
	}
	for _, k := range f.Kinds {
		if err := k.Validate(); err != nil {
			return err
		}
	}
	for _, s := range f.Statuses {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	f.Query = strings.TrimSpace(f.Query)
	return nil
}

func (f *DocumentFilter) GetLimit() int {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetLimit()
	}
	return f.QueryFilter.GetLimit()
}

func (f *DocumentFilter) GetOffset() int {
	if f.QueryFilter == nil {
		return 0
	}
	return f.QueryFilter.GetOffset()
}

func (f *DocumentFilter) GetSort() string {
	if f.QueryFilter == nil {
		return FILTER_DEFAULT_SORT
	}
	return f.QueryFilter.GetSort()
}

func (f *DocumentFilter) GetOrder() string {
	if f.QueryFilter == nil {
		return FILTER_DEFAULT_ORDER
	}
	return f.QueryFilter.GetOrder()
}

func (f *DocumentFilter) IsUnlimited() bool {
	if f.QueryFilter == nil {
		return false
	}
	return f.QueryFilter.IsUnlimited()
}
