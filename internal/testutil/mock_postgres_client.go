package testutil

import (
	"context"
	"sync/atomic"

	"github.com/flexprice/ebilling/internal/logger"
	"github.com/flexprice/ebilling/internal/postgres"
)

var _ postgres.IClient = (*MockPostgresClient)(nil) // Ensure MockPostgresClient implements IClient

// MockPostgresClient runs transactional closures without a database. In-memory
// stores do not roll back, so tests assert on the failing step instead.
// AfterCommit hooks follow the real client: they run only when fn succeeds.
type MockPostgresClient struct {
	logger *logger.Logger
	calls  atomic.Int64
}

// NewMockPostgresClient creates a new mock postgres client
func NewMockPostgresClient(logger *logger.Logger) *MockPostgresClient {
	return &MockPostgresClient{
		logger: logger,
	}
}

// WithTx executes the given function within a transaction
func (c *MockPostgresClient) WithTx(ctx context.Context, fn func(context.Context) error) error {
	c.calls.Add(1)
	return postgres.WithCommitHooks(ctx, fn)
}

// Calls counts WithTx invocations
func (c *MockPostgresClient) Calls() int {
	return int(c.calls.Load())
}
