package rest

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

func TestGetUnmarshalsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/things", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"name":"ok"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	var out struct {
		Name string `json:"name"`
	}
	q := map[string][]string{"limit": {"5"}}
	require.NoError(t, c.Get(context.Background(), "/things", q, &out))
	assert.Equal(t, "ok", out.Name)
}

func TestRetryOn500ThenSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetries(2, time.Millisecond))
	require.NoError(t, c.Get(context.Background(), "/", nil, &struct{}{}))
	assert.Equal(t, int32(2), calls.Load())
}

func TestNoRetryOn404(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetries(3, time.Millisecond))
	err := c.Get(context.Background(), "/", nil, &struct{}{})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.False(t, apiErr.IsRetryable())
	assert.False(t, IsTransient(err))
	assert.Equal(t, int32(1), calls.Load(), "client errors are not retried")
}

func TestTransientClassification(t *testing.T) {
	assert.True(t, IsTransient(&APIError{StatusCode: 503}))
	assert.True(t, IsTransient(&APIError{StatusCode: 429}))
	assert.False(t, IsTransient(&APIError{StatusCode: 400}))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(nil))
}

func TestHeaderFunc(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sig-value", r.Header.Get("X-Signature"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithHeaderFunc(func(method, path string) (http.Header, error) {
		h := http.Header{}
		h.Set("X-Signature", "sig-value")
		return h, nil
	}))
	require.NoError(t, c.Get(context.Background(), "/private", nil, &struct{}{}))
}
