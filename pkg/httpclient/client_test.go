package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryWaitMin = time.Millisecond
	cfg.RetryWaitMax = 5 * time.Millisecond
	return cfg
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := New(fastConfig()).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryNotImplemented(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotImplemented)
	}))
	defer srv.Close()

	resp, err := New(fastConfig()).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.MaxRetries = 2

	resp, err := New(cfg).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	// The final attempt's response is returned as-is.
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestBreakerClient_OpensAfterFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.MaxRetries = 0

	bcfg := DefaultBreakerConfig("test")
	bcfg.MinRequests = 2

	log := newTestLogger()
	cb := NewBreakerClient(New(cfg), bcfg, log)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		resp, err := cb.Get(ctx, srv.URL)
		assert.Error(t, err)
		assert.Nil(t, resp)
	}

	_, err := cb.Get(ctx, srv.URL)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerClient_FallbackOnOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.MaxRetries = 0

	bcfg := DefaultBreakerConfig("test-fallback")
	bcfg.MinRequests = 1

	fallbackCalled := false
	cb := NewBreakerClient(New(cfg), bcfg, newTestLogger()).WithFallback(
		func(ctx context.Context, err error) (*http.Response, error) {
			fallbackCalled = true
			rec := httptest.NewRecorder()
			rec.WriteHeader(http.StatusOK)
			return rec.Result(), nil
		})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		cb.Get(ctx, srv.URL)
	}

	resp, err := cb.Get(ctx, srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.True(t, fallbackCalled)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
