package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/postgres"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/getsentry/sentry-go"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/lo"
)

const pgUniqueViolation = "23505"

// StartRepositorySpan creates a new span for a repository operation
// Returns nil if Sentry is not available in the context
func StartRepositorySpan(ctx context.Context, repository, operation string, params map[string]interface{}) *sentry.Span {
	if sentry.GetHubFromContext(ctx) == nil {
		return nil
	}

	span := sentry.StartSpan(ctx, "repository."+repository+"."+operation)
	span.Description = "repository." + repository + "." + operation
	span.Op = "db.postgres"
	span.SetData("repository", repository)
	span.SetData("operation", operation)
	for k, v := range params {
		span.SetData(k, v)
	}
	return span
}

// FinishSpan marks the span with the outcome and finishes it, handling nil spans
func FinishSpan(span *sentry.Span, err error) {
	if span == nil {
		return
	}
	if err != nil && !ierr.IsNotFound(err) {
		span.Status = sentry.SpanStatusInternalError
		span.SetData("error", err.Error())
	} else {
		span.Status = sentry.SpanStatusOK
	}
	span.Finish()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return ierr.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

// wrapQueryErr maps sql.ErrNoRows to ErrNotFound and everything else to ErrDatabase
func wrapQueryErr(err error, entity string, details map[string]any) error {
	if err == nil {
		return nil
	}
	if ierr.Is(err, sql.ErrNoRows) {
		return ierr.WithError(err).
			WithHintf("%s not found", entity).
			WithReportableDetails(details).
			Mark(ierr.ErrNotFound)
	}
	return ierr.WithError(err).
		WithHintf("Failed to query %s", strings.ToLower(entity)).
		WithReportableDetails(details).
		Mark(ierr.ErrDatabase)
}

// conditions accumulates a WHERE clause written with ? placeholders
type conditions struct {
	clauses []string
	args    []interface{}
}

func (c *conditions) add(clause string, args ...interface{}) {
	c.clauses = append(c.clauses, clause)
	c.args = append(c.args, args...)
}

// addIn appends "column IN (...)" for a non-empty list
func addIn[T any](c *conditions, column string, values []T) error {
	if len(values) == 0 {
		return nil
	}
	clause, args, err := sqlx.In(column+" IN (?)", values)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Invalid filter values").
			Mark(ierr.ErrValidation)
	}
	c.add(clause, args...)
	return nil
}

func (c *conditions) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

// orderBy whitelists the sort column and direction of a list query
func orderBy(sort, order string, allowed ...string) string {
	if !lo.Contains(allowed, sort) {
		sort = types.FILTER_DEFAULT_SORT
	}
	if order != types.OrderAsc {
		order = types.OrderDesc
	}
	return fmt.Sprintf(" ORDER BY %s %s, id %s", sort, strings.ToUpper(order), strings.ToUpper(order))
}

// paginate appends LIMIT/OFFSET unless the filter is unlimited
func paginate(f types.BaseFilter, c *conditions) string {
	if f.IsUnlimited() {
		if f.GetOffset() > 0 {
			c.args = append(c.args, f.GetOffset())
			return " OFFSET ?"
		}
		return ""
	}
	c.args = append(c.args, f.GetLimit(), f.GetOffset())
	return " LIMIT ? OFFSET ?"
}

// rebind converts ? placeholders to postgres positional parameters
func rebind(query string) string {
	return sqlx.Rebind(sqlx.DOLLAR, query)
}

// requireAffected turns an UPDATE that matched no rows into ErrNotFound
func requireAffected(res sql.Result, entity string, details map[string]any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to read affected rows").
			Mark(ierr.ErrDatabase)
	}
	if n == 0 {
		return ierr.NewErrorf("%s not found", strings.ToLower(entity)).
			WithHintf("%s not found", entity).
			WithReportableDetails(details).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

// countRows counts the rows of table matching the conditions
func countRows(ctx context.Context, q postgres.Querier, table string, c *conditions) (int, error) {
	var total int
	if err := q.GetContext(ctx, &total, rebind(`SELECT COUNT(*) FROM `+table+c.where()), c.args...); err != nil {
		return 0, wrapQueryErr(err, table, nil)
	}
	return total, nil
}

// withDefaults makes sure a list filter carries pagination defaults
func withDefaults(f *types.QueryFilter) *types.QueryFilter {
	if f == nil {
		return types.NewDefaultQueryFilter()
	}
	return f
}
