package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewListResponse(t *testing.T) {
	page := NewListResponse([]string{"a", "b"}, 5, 2, 2)
	assert.Equal(t, PaginationResponse{Total: 5, Limit: 2, Offset: 2, HasMore: true}, page.Pagination)

	last := NewListResponse([]string{"e"}, 5, 2, 4)
	assert.False(t, last.Pagination.HasMore)

	empty := NewListResponse[string](nil, 0, 50, 0)
	body, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[],"pagination":{"total":0,"limit":50,"offset":0,"has_more":false}}`, string(body))
}
