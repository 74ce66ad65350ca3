package resilience

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_GetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"name":"jane"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{Name: "test", UserAgent: "test-agent"})
	var out struct {
		Name string `json:"name"`
	}
	err := c.GetJSON(context.Background(), srv.URL, http.Header{"Authorization": {"Bearer tok"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, "jane", out.Name)
}

func TestHTTPClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{Name: "test", MaxRetries: 2, RetryWait: time.Millisecond})
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, nil, nil))
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{Name: "test", MaxRetries: 2, RetryWait: time.Millisecond})
	for i := 0; i < 5; i++ {
		err := c.GetJSON(context.Background(), srv.URL, nil, nil)
		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	}
	assert.Equal(t, int32(5), calls.Load())
	assert.Equal(t, "closed", c.Breaker().State(), "404s must not trip the breaker")
}

func TestHTTPClient_PostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{Name: "test"})
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.PostJSON(context.Background(), srv.URL, nil, map[string]string{"q": "x"}, &out))
	assert.True(t, out.OK)
}

func TestHTTPClient_RateLimiterHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{Name: "test", Rate: 0.01})
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, nil, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, c.GetJSON(ctx, srv.URL, nil, nil), "second call must wait far beyond the deadline")
}
