package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/flexprice/ebilling/internal/domain/document"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/logger"
	"github.com/flexprice/ebilling/internal/postgres"
	"github.com/flexprice/ebilling/internal/types"
)

type documentRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewDocumentRepository(db *postgres.DB, logger *logger.Logger) document.Repository {
	return &documentRepository{db: db, logger: logger}
}

// documentRow is a list row selected with COUNT(*) OVER()
type documentRow struct {
	document.Document
	Total int `db:"total_count"`
}

func (r *documentRepository) Create(ctx context.Context, d *document.Document) (err error) {
	span := StartRepositorySpan(ctx, "document", "create", map[string]interface{}{"tenant_id": d.TenantID, "kind": d.Kind})
	defer func() { FinishSpan(span, err) }()

	if err = d.Validate(); err != nil {
		return err
	}

	r.logger.Debugw("queueing document", "document_id", d.ID, "tenant_id", d.TenantID, "kind", d.Kind)

	_, err = r.db.GetQuerier(ctx).NamedExecContext(ctx, `
		INSERT INTO ebilling_documents (
			id, tenant_id, kind, source_reference, order_number, payload, track_id,
			document_status, retry_count, error_message, document_number, prefix, overage,
			submitted_at, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :tenant_id, :kind, :source_reference, :order_number, :payload, :track_id,
			:document_status, :retry_count, :error_message, :document_number, :prefix, :overage,
			:submitted_at, :status, :created_at, :updated_at, :created_by, :updated_by
		)`, d)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to queue document").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *documentRepository) Get(ctx context.Context, id string) (d *document.Document, err error) {
	span := StartRepositorySpan(ctx, "document", "get", map[string]interface{}{"document_id": id})
	defer func() { FinishSpan(span, err) }()

	var doc document.Document
	err = r.db.GetQuerier(ctx).GetContext(ctx, &doc, `SELECT * FROM ebilling_documents WHERE id = $1`, id)
	if err != nil {
		return nil, wrapQueryErr(err, "Document", map[string]any{"document_id": id})
	}
	return &doc, nil
}

func (r *documentRepository) List(ctx context.Context, filter *types.DocumentFilter) (docs []*document.Document, total int, err error) {
	span := StartRepositorySpan(ctx, "document", "list", map[string]interface{}{"tenant_id": filter.TenantID})
	defer func() { FinishSpan(span, err) }()

	c := &conditions{}
	if filter.TenantID != "" {
		c.add("tenant_id = ?", filter.TenantID)
	}
	if err = addIn(c, "kind", filter.Kinds); err != nil {
		return nil, 0, err
	}
	if err = addIn(c, "document_status", filter.Statuses); err != nil {
		return nil, 0, err
	}
	if filter.TimeRangeFilter != nil {
		if filter.StartTime != nil {
			c.add("created_at >= ?", *filter.StartTime)
		}
		if filter.EndTime != nil {
			c.add("created_at < ?", *filter.EndTime)
		}
	}
	if filter.Query != "" {
		like := "%" + filter.Query + "%"
		c.add("(track_id ILIKE ? OR order_number ILIKE ? OR document_number ILIKE ?)", like, like, like)
	}
	if filter.OnlyWithTrackID {
		c.add("track_id <> ''")
	}

	where := c.where()
	countArgs := append([]interface{}{}, c.args...)
	query := `SELECT *, COUNT(*) OVER() AS total_count FROM ebilling_documents` + where +
		orderBy(filter.GetSort(), filter.GetOrder(), "created_at", "updated_at", "submitted_at", "retry_count") +
		paginate(filter, c)

	var rows []documentRow
	q := r.db.GetQuerier(ctx)
	if err = q.SelectContext(ctx, &rows, rebind(query), c.args...); err != nil {
		return nil, 0, wrapQueryErr(err, "Documents", map[string]any{"tenant_id": filter.TenantID})
	}

	if len(rows) == 0 {
		if filter.GetOffset() == 0 {
			return []*document.Document{}, 0, nil
		}
		// past the last page the window count is unavailable
		if err = q.GetContext(ctx, &total, rebind(`SELECT COUNT(*) FROM ebilling_documents`+where), countArgs...); err != nil {
			return nil, 0, wrapQueryErr(err, "Documents", nil)
		}
		return []*document.Document{}, total, nil
	}

	docs = make([]*document.Document, len(rows))
	for i := range rows {
		docs[i] = &rows[i].Document
	}
	return docs, rows[0].Total, nil
}

func (r *documentRepository) CountByStatus(ctx context.Context, tenantID string) (counts map[types.DocumentStatus]int, err error) {
	span := StartRepositorySpan(ctx, "document", "count_by_status", map[string]interface{}{"tenant_id": tenantID})
	defer func() { FinishSpan(span, err) }()

	var rows []struct {
		Status types.DocumentStatus `db:"document_status"`
		Count  int                  `db:"count"`
	}
	err = r.db.GetQuerier(ctx).SelectContext(ctx, &rows, `
		SELECT document_status, COUNT(*) AS count
		FROM ebilling_documents
		WHERE tenant_id = $1
		GROUP BY document_status`, tenantID)
	if err != nil {
		return nil, wrapQueryErr(err, "Documents", map[string]any{"tenant_id": tenantID})
	}

	counts = make(map[types.DocumentStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *documentRepository) Claim(ctx context.Context, id string) (*document.Document, error) {
	return r.transition(ctx, "claim", id,
		`document_status = ?`, []interface{}{types.DocumentStatusSubmitting},
		`document_status IN ('PENDING', 'RETRY')`,
	)
}

func (r *documentRepository) Release(ctx context.Context, id string, status types.DocumentStatus) (*document.Document, error) {
	if !status.IsSubmittable() {
		return nil, ierr.NewError("released document must return to PENDING or RETRY").
			WithHint("Invalid release status").
			WithReportableDetails(map[string]any{"status": status}).
			Mark(ierr.ErrValidation)
	}
	return r.transition(ctx, "release", id,
		`document_status = ?`, []interface{}{status},
		`document_status = 'SUBMITTING'`,
	)
}

func (r *documentRepository) MarkSent(ctx context.Context, id string, result document.SentResult) (*document.Document, error) {
	return r.transition(ctx, "mark_sent", id,
		`document_status = ?, track_id = ?, document_number = ?, prefix = ?, overage = ?, submitted_at = ?, error_message = ''`,
		[]interface{}{types.DocumentStatusSent, result.TrackID, result.DocumentNumber, result.Prefix, result.Overage, result.SubmittedAt},
		`document_status = 'SUBMITTING'`,
	)
}

func (r *documentRepository) MarkFailed(ctx context.Context, id, message string) (*document.Document, error) {
	return r.transition(ctx, "mark_failed", id,
		`document_status = ?, error_message = ?`, []interface{}{types.DocumentStatusFailed, message},
		`document_status = 'SUBMITTING'`,
	)
}

func (r *documentRepository) MarkRetry(ctx context.Context, id string, claimedBefore time.Time) (*document.Document, error) {
	return r.transition(ctx, "mark_retry", id,
		`document_status = ?, retry_count = retry_count + 1`, []interface{}{types.DocumentStatusRetry},
		`(document_status <> 'SUBMITTING' OR updated_at < ?)`, claimedBefore,
	)
}

func (r *documentRepository) SetProviderStatus(ctx context.Context, id string, status types.DocumentStatus, message string) (*document.Document, error) {
	if status != types.DocumentStatusAccepted && status != types.DocumentStatusRejected {
		return nil, ierr.NewError("provider status must be ACCEPTED or REJECTED").
			WithHint("Invalid provider status").
			WithReportableDetails(map[string]any{"status": status}).
			Mark(ierr.ErrValidation)
	}
	return r.transition(ctx, "set_provider_status", id,
		`document_status = ?, error_message = ?`, []interface{}{status, message},
		`document_status = 'SENT'`,
	)
}

// transition applies a status change to a document that is not ACCEPTED and,
// when guard is set, matches it. A document that does not qualify yields
// ErrInvalidOperation, a missing one ErrNotFound.
func (r *documentRepository) transition(ctx context.Context, op, id, set string, setArgs []interface{}, guard string, guardArgs ...interface{}) (d *document.Document, err error) {
	span := StartRepositorySpan(ctx, "document", op, map[string]interface{}{"document_id": id})
	defer func() { FinishSpan(span, err) }()

	query, args := transitionQuery(id, set, setArgs, guard, guardArgs, time.Now().UTC())

	var doc document.Document
	err = r.db.GetQuerier(ctx).GetContext(ctx, &doc, query, args...)
	if err == nil {
		r.logger.Debugw("document status changed", "document_id", id, "operation", op, "status", doc.DocumentStatus)
		return &doc, nil
	}
	if !ierr.Is(err, sql.ErrNoRows) {
		return nil, wrapQueryErr(err, "Document", map[string]any{"document_id": id})
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, ierr.NewErrorf("document %s cannot change status from %s", id, current.DocumentStatus).
		WithHintf("Document in status %s cannot be updated", current.DocumentStatus).
		WithReportableDetails(map[string]any{
			"document_id": id,
			"status":      current.DocumentStatus,
		}).
		Mark(ierr.ErrInvalidOperation)
}

// transitionQuery builds the guarded status UPDATE; placeholders follow the
// order set, updated_at, id, guard
func transitionQuery(id, set string, setArgs []interface{}, guard string, guardArgs []interface{}, now time.Time) (string, []interface{}) {
	query := `UPDATE ebilling_documents SET ` + set + `, updated_at = ?
		WHERE id = ? AND document_status <> 'ACCEPTED'`
	if guard != "" {
		query += ` AND ` + guard
	}
	query += ` RETURNING *`

	args := make([]interface{}, 0, len(setArgs)+2+len(guardArgs))
	args = append(args, setArgs...)
	args = append(args, now, id)
	args = append(args, guardArgs...)
	return rebind(query), args
}

type documentFileRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewDocumentFileRepository(db *postgres.DB, logger *logger.Logger) document.FileRepository {
	return &documentFileRepository{db: db, logger: logger}
}

func (r *documentFileRepository) Get(ctx context.Context, documentID string, kind types.DocumentFileKind) (f *document.File, err error) {
	span := StartRepositorySpan(ctx, "document_file", "get", map[string]interface{}{"document_id": documentID, "kind": kind})
	defer func() { FinishSpan(span, err) }()

	var file document.File
	err = r.db.GetQuerier(ctx).GetContext(ctx, &file,
		`SELECT * FROM ebilling_document_files WHERE document_id = $1 AND kind = $2`, documentID, kind)
	if err != nil {
		return nil, wrapQueryErr(err, "Document file", map[string]any{"document_id": documentID, "kind": kind})
	}
	return &file, nil
}

func (r *documentFileRepository) Create(ctx context.Context, f *document.File) (stored *document.File, err error) {
	span := StartRepositorySpan(ctx, "document_file", "create", map[string]interface{}{"document_id": f.DocumentID, "kind": f.Kind})
	defer func() { FinishSpan(span, err) }()

	res, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, `
		INSERT INTO ebilling_document_files (
			id, tenant_id, document_id, kind, content, content_type, size_bytes, created_at
		) VALUES (
			:id, :tenant_id, :document_id, :kind, :content, :content_type, :size_bytes, :created_at
		)
		ON CONFLICT (document_id, kind) DO NOTHING`, f)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to store document file").
			Mark(ierr.ErrDatabase)
	}

	if n, _ := res.RowsAffected(); n == 1 {
		return f, nil
	}

	r.logger.Debugw("document file already cached, using stored copy", "document_id", f.DocumentID, "kind", f.Kind)
	return r.Get(ctx, f.DocumentID, f.Kind)
}
