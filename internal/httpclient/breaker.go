package httpclient

import (
	"context"
	"net/url"
	"sync"
	"time"

	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/logger"
	"github.com/sony/gobreaker"
)

// BreakerConfig configures the per-host circuit breaker
type BreakerConfig struct {
	// ConsecutiveFailures trips the breaker, zero disables it
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again
	OpenTimeout time.Duration
}

// BreakerClient wraps a Client with one circuit breaker per remote host.
// Only transport errors and 5xx responses count as failures, a 4xx is the
// remote service working as intended.
type BreakerClient struct {
	next     Client
	cfg      BreakerConfig
	logger   *logger.Logger
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerClient creates a new BreakerClient
func NewBreakerClient(next Client, cfg BreakerConfig, logger *logger.Logger) Client {
	if cfg.ConsecutiveFailures == 0 {
		return next
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	return &BreakerClient{
		next:     next,
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (c *BreakerClient) Send(ctx context.Context, req *Request) (*Response, error) {
	cb := c.breakerFor(req.URL)

	result, err := cb.Execute(func() (interface{}, error) {
		return c.next.Send(ctx, req)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, ierr.WithError(err).
			WithHint("The remote service is temporarily unavailable, please try again later").
			WithReportableDetails(map[string]any{
				"breaker": cb.Name(),
			}).
			Mark(ierr.ErrHTTPClient)
	}
	if err != nil {
		return nil, err
	}
	return result.(*Response), nil
}

func (c *BreakerClient) breakerFor(rawURL string) *gobreaker.CircuitBreaker {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[host]; ok {
		return cb
	}

	threshold := c.cfg.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    host,
		Timeout: c.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.logger.Warnw("circuit breaker state changed",
				"host", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	c.breakers[host] = cb
	return cb
}

func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	if httpErr, ok := IsHTTPError(err); ok {
		return httpErr.StatusCode < 500
	}
	// context cancellation on our side is not the remote's fault
	return ierr.Is(err, context.Canceled)
}
