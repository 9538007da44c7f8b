package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:      2 * time.Second,
		RetryMax:     2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	}
}

func TestDefaultClient_RetriesGetOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewDefaultClient(testClientConfig(), logger.NewNoopLogger())
	resp, err := client.Send(context.Background(), &Request{Method: http.MethodGet, URL: server.URL})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDefaultClient_DoesNotRetryPost(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	}))
	defer server.Close()

	client := NewDefaultClient(testClientConfig(), logger.NewNoopLogger())
	_, err := client.Send(context.Background(), &Request{
		Method: http.MethodPost,
		URL:    server.URL,
		Body:   []byte(`{}`),
	})

	require.Error(t, err)
	httpErr, ok := IsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
	assert.JSONEq(t, `{"message":"boom"}`, string(httpErr.Response))
	assert.True(t, ierr.IsHTTPClient(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDefaultClient_SendsHeadersAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("X-Trace", "t-1")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewDefaultClient(testClientConfig(), logger.NewNoopLogger())
	resp, err := client.Send(context.Background(), &Request{
		Method:  http.MethodPost,
		URL:     server.URL,
		Headers: map[string]string{"Authorization": "Bearer abc"},
		Body:    []byte(`{"a":1}`),
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "t-1", resp.Headers["X-Trace"])
}

func TestBreakerClient_TripsOnServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	inner := NewDefaultClient(ClientConfig{Timeout: time.Second}, logger.NewNoopLogger())
	client := NewBreakerClient(inner, BreakerConfig{ConsecutiveFailures: 2, OpenTimeout: time.Minute}, logger.NewNoopLogger())

	req := &Request{Method: http.MethodPost, URL: server.URL}
	for i := 0; i < 2; i++ {
		_, err := client.Send(context.Background(), req)
		_, isHTTP := IsHTTPError(err)
		require.True(t, isHTTP)
	}

	_, err := client.Send(context.Background(), req)
	require.Error(t, err)
	_, isHTTP := IsHTTPError(err)
	assert.False(t, isHTTP)
	assert.True(t, ierr.IsHTTPClient(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestBreakerClient_ClientErrorsDoNotTrip(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	inner := NewDefaultClient(ClientConfig{Timeout: time.Second}, logger.NewNoopLogger())
	client := NewBreakerClient(inner, BreakerConfig{ConsecutiveFailures: 1}, logger.NewNoopLogger())

	for i := 0; i < 3; i++ {
		_, err := client.Send(context.Background(), &Request{Method: http.MethodPost, URL: server.URL})
		httpErr, ok := IsHTTPError(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestNewBreakerClient_DisabledReturnsInner(t *testing.T) {
	inner := NewDefaultClient(ClientConfig{}, logger.NewNoopLogger())
	assert.Same(t, inner, NewBreakerClient(inner, BreakerConfig{}, logger.NewNoopLogger()))
}
