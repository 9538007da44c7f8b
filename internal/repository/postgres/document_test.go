package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/flexprice/ebilling/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestTransitionQueryOrdersGuardArgsLast(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	claimedBefore := now.Add(-10 * time.Minute)

	query, args := transitionQuery("edoc_1",
		`document_status = ?, retry_count = retry_count + 1`, []interface{}{types.DocumentStatusRetry},
		`(document_status <> 'SUBMITTING' OR updated_at < ?)`, []interface{}{claimedBefore},
		now,
	)

	assert.Contains(t, query, "SET document_status = $1, retry_count = retry_count + 1, updated_at = $2")
	assert.Contains(t, query, "WHERE id = $3 AND document_status <> 'ACCEPTED' AND (document_status <> 'SUBMITTING' OR updated_at < $4)")
	assert.True(t, strings.HasSuffix(query, "RETURNING *"))
	assert.Equal(t, []interface{}{types.DocumentStatusRetry, now, "edoc_1", claimedBefore}, args)
}

func TestTransitionQueryWithoutGuard(t *testing.T) {
	now := time.Now().UTC()
	query, args := transitionQuery("edoc_1", `document_status = ?`, []interface{}{types.DocumentStatusSubmitting}, "", nil, now)

	assert.NotContains(t, query, "$3")
	assert.Equal(t, []interface{}{types.DocumentStatusSubmitting, now, "edoc_1"}, args)
}
