package postgres

import (
	"database/sql"
	"testing"

	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditions(t *testing.T) {
	c := &conditions{}
	assert.Equal(t, "", c.where())

	c.add("tenant_id = ?", "t1")
	require.NoError(t, addIn(c, "document_status", []types.DocumentStatus{types.DocumentStatusSent, types.DocumentStatusRetry}))
	require.NoError(t, addIn(c, "kind", []types.DocumentKind{}))

	assert.Equal(t, " WHERE tenant_id = ? AND document_status IN (?, ?)", c.where())
	assert.Equal(t, []interface{}{"t1", types.DocumentStatusSent, types.DocumentStatusRetry}, c.args)
	assert.Equal(t, "SELECT * FROM x WHERE tenant_id = $1 AND document_status IN ($2, $3)", rebind("SELECT * FROM x"+c.where()))
}

func TestOrderByWhitelistsColumns(t *testing.T) {
	assert.Equal(t, " ORDER BY created_at DESC, id DESC", orderBy("created_at", "desc", "created_at"))
	assert.Equal(t, " ORDER BY retry_count ASC, id ASC", orderBy("retry_count", "asc", "created_at", "retry_count"))
	assert.Equal(t, " ORDER BY created_at DESC, id DESC", orderBy("1; DROP TABLE x", "asc; --", "created_at"))
}

func TestPaginate(t *testing.T) {
	c := &conditions{}
	f := types.NewDocumentFilter()
	f.Offset = lo.ToPtr(20)
	assert.Equal(t, " LIMIT ? OFFSET ?", paginate(f, c))
	assert.Equal(t, []interface{}{types.FILTER_DEFAULT_LIMIT, 20}, c.args)

	c = &conditions{}
	assert.Equal(t, "", paginate(types.NewNoLimitDocumentFilter(), c))
	assert.Empty(t, c.args)
}

func TestWrapQueryErr(t *testing.T) {
	assert.Nil(t, wrapQueryErr(nil, "Document", nil))
	assert.True(t, ierr.IsNotFound(wrapQueryErr(sql.ErrNoRows, "Document", map[string]any{"id": "x"})))

	err := wrapQueryErr(sql.ErrConnDone, "Document", nil)
	assert.True(t, ierr.Is(err, ierr.ErrDatabase))
	assert.False(t, ierr.IsNotFound(err))
}
