package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAfterCommitOutsideTransaction(t *testing.T) {
	ran := false
	AfterCommit(context.Background(), func() { ran = true })
	assert.True(t, ran)
}

func TestCommitHooksRunAfterOutermostLevel(t *testing.T) {
	var order []string

	err := WithCommitHooks(context.Background(), func(ctx context.Context) error {
		AfterCommit(ctx, func() { order = append(order, "outer") })

		err := WithCommitHooks(ctx, func(ctx context.Context) error {
			AfterCommit(ctx, func() { order = append(order, "inner") })
			return nil
		})
		require.NoError(t, err)
		assert.Empty(t, order, "nested hooks wait for the outermost commit")

		order = append(order, "body done")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"body done", "outer", "inner"}, order)
}

func TestCommitHooksDroppedOnRollback(t *testing.T) {
	var ran []string
	boom := errors.New("boom")

	err := WithCommitHooks(context.Background(), func(ctx context.Context) error {
		AfterCommit(ctx, func() { ran = append(ran, "outer") })

		innerErr := WithCommitHooks(ctx, func(ctx context.Context) error {
			AfterCommit(ctx, func() { ran = append(ran, "rolled back savepoint") })
			return boom
		})
		assert.ErrorIs(t, innerErr, boom)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer"}, ran)

	ran = nil
	err = WithCommitHooks(context.Background(), func(ctx context.Context) error {
		AfterCommit(ctx, func() { ran = append(ran, "never") })
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, ran)
}
