package service

import (
	"context"
	"encoding/base64"
	"mime"
	"sync"
	"time"

	"github.com/flexprice/ebilling/internal/api/dto"
	"github.com/flexprice/ebilling/internal/domain/document"
	"github.com/flexprice/ebilling/internal/domain/integrationconfig"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/integration/matias"
	"github.com/flexprice/ebilling/internal/metrics"
	"github.com/flexprice/ebilling/internal/s3"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/h2non/filetype"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"
)

const (
	defaultReconcileBatch       = 100
	defaultReconcileConcurrency = 4
)

// DocumentService runs the document queue: submission, operator retries,
// artifact downloads and the externally triggered reconcile passes
type DocumentService interface {
	// CreateDocument queues a PENDING document and submits it right away when
	// the tenant has auto submit enabled
	CreateDocument(ctx context.Context, req *dto.CreateDocumentRequest) (*dto.DocumentResponse, error)
	GetDocument(ctx context.Context, id string) (*dto.DocumentResponse, error)
	ListDocuments(ctx context.Context, filter *types.DocumentFilter) (*dto.ListDocumentsResponse, error)

	// SubmitDocument sends a PENDING or RETRY document to the provider. The
	// provider outcome is recorded on the returned document; errors are
	// returned only when no submission was attempted or it could not be stored.
	SubmitDocument(ctx context.Context, id string) (*dto.DocumentResponse, error)
	// RetryDocument flags the document for resubmission without sending it
	RetryDocument(ctx context.Context, id string) (*dto.DocumentResponse, error)

	DownloadDocumentPDF(ctx context.Context, id string) (*dto.DocumentFileResponse, error)
	DownloadDocumentAttached(ctx context.Context, id string) (*dto.DocumentFileResponse, error)

	// ReconcileDocuments polls the provider for SENT documents
	ReconcileDocuments(ctx context.Context, req *dto.ReconcileDocumentsRequest) (*dto.ReconcileDocumentsResponse, error)
	// ResubmitRetries submits documents flagged RETRY
	ResubmitRetries(ctx context.Context, req *dto.ReconcileDocumentsRequest) (*dto.ResubmitDocumentsResponse, error)
}

type documentService struct {
	ServiceParams
}

func NewDocumentService(params ServiceParams) DocumentService {
	return &documentService{
		ServiceParams: params,
	}
}

func (s *documentService) CreateDocument(ctx context.Context, req *dto.CreateDocumentRequest) (*dto.DocumentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	doc := req.ToDocument(ctx)
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	if err := s.DocumentRepo.Create(ctx, doc); err != nil {
		return nil, err
	}

	s.Logger.Infow("document queued",
		"document_id", doc.ID,
		"tenant_id", doc.TenantID,
		"kind", doc.Kind,
	)
	s.publishDocument(ctx, doc)

	cfg, err := s.IntegrationConfigRepo.Get(ctx, doc.TenantID)
	if err != nil || !cfg.Enabled || !cfg.AutoSubmit {
		return dto.ToDocumentResponse(doc), nil
	}

	submitted, err := s.SubmitDocument(ctx, doc.ID)
	if err != nil {
		s.Logger.Warnw("auto submit failed, document left queued",
			"document_id", doc.ID,
			"tenant_id", doc.TenantID,
			"error", err,
		)
		return dto.ToDocumentResponse(doc), nil
	}
	return submitted, nil
}

func (s *documentService) GetDocument(ctx context.Context, id string) (*dto.DocumentResponse, error) {
	if id == "" {
		return nil, ierr.NewError("document id is required").
			WithHint("Document ID is required").
			Mark(ierr.ErrValidation)
	}

	doc, err := s.DocumentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.ToDocumentResponse(doc), nil
}

func (s *documentService) ListDocuments(ctx context.Context, filter *types.DocumentFilter) (*dto.ListDocumentsResponse, error) {
	if filter == nil {
		filter = types.NewDocumentFilter()
	}
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewDefaultQueryFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	docs, total, err := s.DocumentRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := lo.Map(docs, func(d *document.Document, _ int) *dto.DocumentResponse {
		return dto.ToDocumentResponse(d)
	})
	resp := types.NewListResponse(items, total, filter.GetLimit(), filter.GetOffset())
	return &resp, nil
}

func (s *documentService) SubmitDocument(ctx context.Context, id string) (*dto.DocumentResponse, error) {
	doc, err := s.DocumentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !doc.DocumentStatus.IsSubmittable() {
		return nil, ierr.NewErrorf("document %s is %s", doc.ID, doc.DocumentStatus).
			WithHintf("Only PENDING or RETRY documents can be submitted, document is %s", doc.DocumentStatus).
			WithReportableDetails(map[string]any{
				"document_id": doc.ID,
				"status":      doc.DocumentStatus,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	previous := doc.DocumentStatus
	doc, err = s.DocumentRepo.Claim(ctx, doc.ID)
	if err != nil {
		if ierr.IsInvalidOperation(err) {
			return nil, ierr.WithError(err).
				WithHintf("Document %s is already being submitted", id).
				WithReportableDetails(map[string]any{"document_id": id}).
				Mark(ierr.ErrInvalidOperation)
		}
		return nil, err
	}

	usageSvc := NewUsageService(s.ServiceParams)
	decision, err := usageSvc.ReserveQuota(ctx, doc.TenantID)
	if err != nil {
		s.release(ctx, doc, previous)
		return nil, err
	}
	if !decision.Allowed {
		s.release(ctx, doc, previous)
		s.Metrics.ObserveSubmission(doc.Kind.String(), metrics.OutcomeSkipped)
		s.raiseLimitReached(ctx, doc.TenantID)
		return nil, ierr.NewErrorf("document quota exhausted for tenant %s", doc.TenantID).
			WithHint("The tenant has no documents left in its package and its overage policy blocks submissions").
			WithReportableDetails(map[string]any{
				"tenant_id":   doc.TenantID,
				"document_id": doc.ID,
				"policy":      decision.Policy,
			}).
			Mark(ierr.ErrQuotaExceeded)
	}

	payload := map[string]any(doc.Payload)
	if cfg, err := s.IntegrationConfigRepo.Get(ctx, doc.TenantID); err == nil {
		payload = withNumbering(payload, cfg, doc.Kind)
	}

	client := s.Matias.ForTenant(ctx, doc.TenantID)
	res := client.Submit(ctx, doc.Kind, payload)

	if !res.Success {
		if err := usageSvc.ReleaseQuota(ctx, decision); err != nil {
			s.Logger.Errorw("failed to release reserved quota",
				"document_id", doc.ID,
				"tenant_id", doc.TenantID,
				"usage_period_id", decision.PeriodID,
				"error", err,
			)
		}
		doc, err = s.DocumentRepo.MarkFailed(ctx, doc.ID, res.Message)
		if err != nil {
			return nil, err
		}
		s.Logger.Warnw("document submission failed",
			"document_id", doc.ID,
			"tenant_id", doc.TenantID,
			"kind", doc.Kind,
			"error", res.Err,
		)
		s.Metrics.ObserveSubmission(doc.Kind.String(), metrics.OutcomeFailure)
		if ierr.IsProviderAuth(res.Err) {
			raiseAuthFailed(ctx, s.ServiceParams, doc.TenantID, res.Message)
		}
		s.auditSubmit(ctx, doc, false)
		s.publishDocument(ctx, doc)
		return dto.ToDocumentResponse(doc), nil
	}

	sent, err := s.DocumentRepo.MarkSent(ctx, doc.ID, document.SentResult{
		TrackID:        res.TrackID,
		DocumentNumber: res.DocumentNumber,
		Prefix:         res.Prefix,
		Overage:        decision.Overage,
		SubmittedAt:    time.Now().UTC(),
	})

	// the provider issued the document, so it counts even if storing SENT failed
	if decision.Metered {
		if _, err := usageSvc.CommitUsage(ctx, doc.TenantID, doc.Kind, decision); err != nil {
			s.Logger.Errorw("failed to count document usage",
				"document_id", doc.ID,
				"tenant_id", doc.TenantID,
				"error", err,
			)
		}
	}
	if err != nil {
		s.Logger.Errorw("document sent but status not stored",
			"document_id", doc.ID,
			"tenant_id", doc.TenantID,
			"track_id", res.TrackID,
			"error", err,
		)
		return nil, err
	}
	doc = sent

	s.Logger.Infow("document sent",
		"document_id", doc.ID,
		"tenant_id", doc.TenantID,
		"track_id", doc.TrackID,
		"overage", doc.Overage,
	)
	s.Metrics.ObserveSubmission(doc.Kind.String(), metrics.OutcomeSuccess)
	s.auditSubmit(ctx, doc, true)
	s.publishDocument(ctx, doc)
	return dto.ToDocumentResponse(doc), nil
}

// release hands a claimed document back to the queue in its previous status
func (s *documentService) release(ctx context.Context, doc *document.Document, status types.DocumentStatus) {
	if _, err := s.DocumentRepo.Release(ctx, doc.ID, status); err != nil {
		s.Logger.Errorw("failed to release claimed document",
			"document_id", doc.ID,
			"tenant_id", doc.TenantID,
			"error", err,
		)
	}
}

// withNumbering fills the tenant's configured prefix and resolution into a
// copy of the payload when the caller left them out
func withNumbering(payload map[string]any, cfg *integrationconfig.Config, kind types.DocumentKind) map[string]any {
	var prefix, resolution string
	switch kind {
	case types.DocumentKindPOS, types.DocumentKindInvoice:
		prefix, resolution = cfg.InvoicePrefix, cfg.InvoiceResolution
	case types.DocumentKindCreditNote:
		prefix, resolution = cfg.CreditNotePrefix, cfg.CreditNoteResolution
	}
	if prefix == "" && resolution == "" {
		return payload
	}

	out := lo.Assign(map[string]any{}, payload)
	if _, ok := out["prefix"]; !ok && prefix != "" {
		out["prefix"] = prefix
	}
	if _, ok := out["resolution_number"]; !ok && resolution != "" {
		out["resolution_number"] = resolution
	}
	return out
}

func (s *documentService) auditSubmit(ctx context.Context, doc *document.Document, success bool) {
	_, err := NewAuditService(s.ServiceParams).Log(ctx, dto.AuditEntry{
		TenantID:   doc.TenantID,
		Action:     types.AuditActionDocumentSubmit,
		EntityType: types.AuditEntityDocument,
		EntityID:   doc.ID,
		Metadata: map[string]any{
			"success":     success,
			"kind":        doc.Kind,
			"track_id":    doc.TrackID,
			"retry_count": doc.RetryCount,
		},
	})
	if err != nil {
		s.Logger.Errorw("failed to audit submission", "document_id", doc.ID, "error", err)
	}
}

func (s *documentService) RetryDocument(ctx context.Context, id string) (*dto.DocumentResponse, error) {
	doc, err := s.DocumentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.DocumentStatus.IsTerminal() {
		return nil, ierr.NewErrorf("document %s is already accepted", doc.ID).
			WithHint("Accepted documents cannot be retried").
			WithReportableDetails(map[string]any{
				"document_id": doc.ID,
				"status":      doc.DocumentStatus,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	previous := doc.DocumentStatus
	claimedBefore := time.Now().UTC().Add(-s.Config.Reconcile.ClaimTimeout)
	doc, err = s.DocumentRepo.MarkRetry(ctx, doc.ID, claimedBefore)
	if err != nil {
		if ierr.IsInvalidOperation(err) && previous == types.DocumentStatusSubmitting {
			return nil, ierr.WithError(err).
				WithHint("Document is being submitted, retry it once the submission finishes").
				Mark(ierr.ErrInvalidOperation)
		}
		return nil, err
	}

	if _, err := NewAuditService(s.ServiceParams).Log(ctx, dto.AuditEntry{
		TenantID:   doc.TenantID,
		Action:     types.AuditActionDocumentRetry,
		EntityType: types.AuditEntityDocument,
		EntityID:   doc.ID,
		Metadata: map[string]any{
			"previous_status": previous,
			"retry_count":     doc.RetryCount,
		},
	}); err != nil {
		return nil, err
	}

	s.Logger.Infow("document flagged for retry",
		"document_id", doc.ID,
		"tenant_id", doc.TenantID,
		"retry_count", doc.RetryCount,
	)
	s.publishDocument(ctx, doc)
	return dto.ToDocumentResponse(doc), nil
}

func (s *documentService) DownloadDocumentPDF(ctx context.Context, id string) (*dto.DocumentFileResponse, error) {
	return s.download(ctx, id, types.DocumentFileKindPDF)
}

func (s *documentService) DownloadDocumentAttached(ctx context.Context, id string) (*dto.DocumentFileResponse, error) {
	return s.download(ctx, id, types.DocumentFileKindAttached)
}

// download serves the memoized artifact, fetching and storing it on first use
func (s *documentService) download(ctx context.Context, id string, kind types.DocumentFileKind) (*dto.DocumentFileResponse, error) {
	doc, err := s.DocumentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	f, err := s.DocumentFileRepo.Get(ctx, doc.ID, kind)
	if err == nil {
		return fileResponse(doc, f)
	}
	if !ierr.IsNotFound(err) {
		return nil, err
	}

	if doc.TrackID == "" {
		return nil, ierr.NewErrorf("document %s has no track id", doc.ID).
			WithHint("The document has not been accepted for processing by the provider yet").
			Mark(ierr.ErrInvalidOperation)
	}

	client := s.Matias.ForTenant(ctx, doc.TenantID)
	var dl *matias.Download
	if kind == types.DocumentFileKindPDF {
		dl = client.DownloadPDF(ctx, doc.TrackID, false)
	} else {
		dl = client.DownloadAttached(ctx, doc.TrackID, false)
	}
	if dl == nil {
		return nil, ierr.NewErrorf("provider download of %s failed for document %s", kind, doc.ID).
			WithHint("Could not download the document from the provider").
			WithReportableDetails(map[string]any{
				"document_id": doc.ID,
				"track_id":    doc.TrackID,
				"kind":        kind,
			}).
			Mark(ierr.ErrHTTPClient)
	}

	contentType := detectContentType(dl.Data, dl.ContentType)
	stored, err := s.DocumentFileRepo.Create(ctx, &document.File{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_DOCUMENT_FILE),
		TenantID:    doc.TenantID,
		DocumentID:  doc.ID,
		Kind:        kind,
		Content:     base64.StdEncoding.EncodeToString(dl.Data),
		ContentType: contentType,
		SizeBytes:   int64(len(dl.Data)),
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	s.archive(ctx, doc, stored.Kind, stored.ContentType, dl.Data)
	return fileResponse(doc, stored)
}

// detectContentType sniffs the artifact bytes and falls back to the header
func detectContentType(data []byte, header string) string {
	if t, err := filetype.Match(data); err == nil && t != filetype.Unknown {
		return t.MIME.Value
	}
	if header != "" {
		if mediaType, _, err := mime.ParseMediaType(header); err == nil {
			return mediaType
		}
	}
	return "application/octet-stream"
}

func fileResponse(doc *document.Document, f *document.File) (*dto.DocumentFileResponse, error) {
	data, err := base64.StdEncoding.DecodeString(f.Content)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Stored document file is corrupted").
			Mark(ierr.ErrSystem)
	}

	artifact := &s3.Artifact{ContentType: f.ContentType}
	name := lo.Ternary(doc.DocumentNumber != "", doc.DocumentNumber, doc.ID)
	return &dto.DocumentFileResponse{
		DocumentID:  doc.ID,
		Kind:        f.Kind,
		FileName:    name + "." + artifact.Extension(),
		ContentType: f.ContentType,
		Data:        data,
	}, nil
}

func (s *documentService) archive(ctx context.Context, doc *document.Document, kind types.DocumentFileKind, contentType string, data []byte) {
	if s.S3 == nil {
		return
	}
	err := s.S3.Archive(ctx, &s3.Artifact{
		TenantID:    doc.TenantID,
		DocumentID:  doc.ID,
		TrackID:     doc.TrackID,
		Kind:        kind,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		s.Logger.Warnw("failed to archive document file",
			"document_id", doc.ID,
			"kind", kind,
			"error", err,
		)
	}
}

func (s *documentService) ReconcileDocuments(ctx context.Context, req *dto.ReconcileDocumentsRequest) (*dto.ReconcileDocumentsResponse, error) {
	docs, err := s.batch(ctx, req, types.DocumentStatusSent)
	if err != nil {
		return nil, err
	}

	resp := &dto.ReconcileDocumentsResponse{}
	var mu sync.Mutex
	s.forEach(ctx, docs, func(ctx context.Context, doc *document.Document) {
		status, err := s.reconcileOne(ctx, doc)

		mu.Lock()
		defer mu.Unlock()
		resp.Checked++
		switch {
		case err != nil:
			resp.Errors++
		case status == types.DocumentStatusAccepted:
			resp.Accepted++
		case status == types.DocumentStatusRejected:
			resp.Rejected++
		default:
			resp.Unchanged++
		}
	})

	s.Logger.Infow("reconcile pass finished",
		"tenant_id", req.TenantID,
		"checked", resp.Checked,
		"accepted", resp.Accepted,
		"rejected", resp.Rejected,
		"errors", resp.Errors,
	)
	if req.TenantID != "" && resp.Checked > 0 {
		if _, err := NewAuditService(s.ServiceParams).Log(ctx, dto.AuditEntry{
			TenantID:   req.TenantID,
			Action:     types.AuditActionDocumentsReconciled,
			EntityType: types.AuditEntityDocument,
			Metadata: map[string]any{
				"checked":  resp.Checked,
				"accepted": resp.Accepted,
				"rejected": resp.Rejected,
			},
		}); err != nil {
			s.Logger.Warnw("failed to audit reconcile pass", "tenant_id", req.TenantID, "error", err)
		}
	}
	return resp, nil
}

// reconcileOne returns the status the document was moved to, or SENT when
// the provider has not decided yet
func (s *documentService) reconcileOne(ctx context.Context, doc *document.Document) (types.DocumentStatus, error) {
	st := s.Matias.ForTenant(ctx, doc.TenantID).GetStatusByTrackID(ctx, doc.TrackID)
	if st.Err != nil {
		if ierr.IsProviderAuth(st.Err) {
			raiseAuthFailed(ctx, s.ServiceParams, doc.TenantID, st.Message)
		}
		s.Logger.Warnw("status check failed",
			"document_id", doc.ID,
			"track_id", doc.TrackID,
			"error", st.Err,
		)
		return doc.DocumentStatus, st.Err
	}

	status, decided := st.DocumentStatus()
	if !decided {
		return doc.DocumentStatus, nil
	}

	updated, err := s.DocumentRepo.SetProviderStatus(ctx, doc.ID, status, st.Message)
	if err != nil {
		return doc.DocumentStatus, err
	}
	s.Metrics.ObserveReconciled(string(status))
	s.publishDocument(ctx, updated)
	return status, nil
}

func (s *documentService) ResubmitRetries(ctx context.Context, req *dto.ReconcileDocumentsRequest) (*dto.ResubmitDocumentsResponse, error) {
	docs, err := s.batch(ctx, req, types.DocumentStatusRetry)
	if err != nil {
		return nil, err
	}

	resp := &dto.ResubmitDocumentsResponse{}
	var mu sync.Mutex
	s.forEach(ctx, docs, func(ctx context.Context, doc *document.Document) {
		submitted, err := s.SubmitDocument(ctx, doc.ID)

		mu.Lock()
		defer mu.Unlock()
		resp.Attempted++
		if err == nil && submitted.DocumentStatus == types.DocumentStatusSent {
			resp.Sent++
		} else {
			resp.Failed++
		}
	})

	s.Logger.Infow("resubmit pass finished",
		"tenant_id", req.TenantID,
		"attempted", resp.Attempted,
		"sent", resp.Sent,
		"failed", resp.Failed,
	)
	return resp, nil
}

// batch loads the oldest documents in status, bounded by the request limit
func (s *documentService) batch(ctx context.Context, req *dto.ReconcileDocumentsRequest, status types.DocumentStatus) ([]*document.Document, error) {
	if req == nil {
		req = &dto.ReconcileDocumentsRequest{}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit == 0 {
		limit = lo.Ternary(s.Config.Reconcile.BatchSize > 0, s.Config.Reconcile.BatchSize, defaultReconcileBatch)
	}

	filter := types.NewDocumentFilter()
	filter.Limit = lo.ToPtr(limit)
	filter.Order = lo.ToPtr(types.OrderAsc)
	filter.TenantID = req.TenantID
	filter.Statuses = []types.DocumentStatus{status}
	filter.OnlyWithTrackID = status == types.DocumentStatusSent

	docs, _, err := s.DocumentRepo.List(ctx, filter)
	return docs, err
}

// forEach runs fn over docs on a bounded pool, pacing provider calls with
// the configured rate limit
func (s *documentService) forEach(ctx context.Context, docs []*document.Document, fn func(context.Context, *document.Document)) {
	if len(docs) == 0 {
		return
	}

	limit := rate.Inf
	if rps := s.Config.Reconcile.RequestsPerSecond; rps > 0 {
		limit = rate.Limit(rps)
	}
	limiter := rate.NewLimiter(limit, 1)

	workers := lo.Ternary(s.Config.Reconcile.Concurrency > 0, s.Config.Reconcile.Concurrency, defaultReconcileConcurrency)
	p := pool.New().WithMaxGoroutines(workers)
	for _, doc := range docs {
		p.Go(func() {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			fn(ctx, doc)
		})
	}
	p.Wait()
}

func (s *documentService) raiseLimitReached(ctx context.Context, tenantID string) {
	if _, _, err := NewAlertService(s.ServiceParams).Raise(ctx, dto.RaiseAlertRequest{
		TenantID: tenantID,
		Type:     types.AlertTypeLimitReached,
		Message:  "Submission blocked: included documents exhausted",
	}); err != nil {
		s.Logger.Errorw("failed to raise limit alert", "tenant_id", tenantID, "error", err)
	}
}

func (s *documentService) publishDocument(ctx context.Context, doc *document.Document) {
	publishEvent(ctx, s.ServiceParams, types.NewEvent(types.EventDocumentUpdated, doc.TenantID, map[string]any{
		"document_id":     doc.ID,
		"kind":            doc.Kind,
		"status":          doc.DocumentStatus,
		"track_id":        doc.TrackID,
		"document_number": doc.DocumentNumber,
		"retry_count":     doc.RetryCount,
	}))
}

// raiseAuthFailed records that the provider refused the tenant's credentials
func raiseAuthFailed(ctx context.Context, params ServiceParams, tenantID, message string) {
	if _, _, err := NewAlertService(params).Raise(ctx, dto.RaiseAlertRequest{
		TenantID: tenantID,
		Type:     types.AlertTypeAuthFailed,
		Message:  lo.Ternary(message != "", message, "Provider rejected the tenant credentials"),
	}); err != nil {
		params.Logger.Errorw("failed to raise auth alert", "tenant_id", tenantID, "error", err)
	}
}
