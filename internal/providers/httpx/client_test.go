package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}
}

func TestClient_Do_Success(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "payload", string(body))
		assert.Equal(t, "v", r.Header.Get("X-Custom"))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := NewClient(newTestLogger(), fastPolicy(3), time.Second)
	resp, err := c.Do(context.Background(), 1, http.MethodPost, srv.URL, map[string]string{"X-Custom": "v"}, []byte("payload"))
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "ok", string(resp.Body))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "no retry on success")
}

func TestClient_Do_RetriesTransientStatuses(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if atomic.AddInt32(&calls, 1) < 3 {
					w.WriteHeader(code)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			c := NewClient(newTestLogger(), fastPolicy(5), time.Second)
			resp, err := c.Do(context.Background(), 1, http.MethodGet, srv.URL, nil, nil)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
		})
	}
}

func TestClient_Do_NoRetryOnPermanentStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad request"))
	}))
	defer srv.Close()

	c := NewClient(newTestLogger(), fastPolicy(5), time.Second)
	resp, err := c.Do(context.Background(), 1, http.MethodGet, srv.URL, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, resp.OK())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx other than 408/429 is not retried")
}

func TestClient_Do_ExhaustsAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(newTestLogger(), fastPolicy(3), time.Second)
	resp, err := c.Do(context.Background(), 1, http.MethodGet, srv.URL, nil, nil)

	// the final attempt's response is returned even when transient
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_Do_TransportErrorExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := NewClient(newTestLogger(), fastPolicy(2), time.Second)
	_, err := c.Do(context.Background(), 1, http.MethodGet, srv.URL, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exhausted 2 attempts")
}

func TestClient_Do_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(newTestLogger(), RetryPolicy{MaxAttempts: 5, BaseBackoff: time.Minute, MaxBackoff: time.Minute}, time.Second)
	_, err := c.Do(ctx, 1, http.MethodGet, srv.URL, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryPolicy_Defaults(t *testing.T) {
	p := RetryPolicy{}.withDefaults()
	assert.Equal(t, DefaultMaxAttempts, p.MaxAttempts)
	assert.Equal(t, DefaultBaseBackoff, p.BaseBackoff)
	assert.Equal(t, DefaultMaxBackoff, p.MaxBackoff)
}
