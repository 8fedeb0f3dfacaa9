package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echo struct {
	Method string         `json:"method"`
	Path   string         `json:"path"`
	Body   map[string]any `json:"body,omitempty"`
}

func newEchoServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.Error(w, "not here", http.StatusNotFound)
			return
		case "/boom":
			http.Error(w, "kaboom", http.StatusInternalServerError)
			return
		case "/garbage":
			w.Write([]byte("{not json"))
			return
		case "/slow":
			time.Sleep(200 * time.Millisecond)
			w.Write([]byte("{}"))
			return
		}
		out := echo{Method: r.Method, Path: r.URL.RequestURI()}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&out.Body)
		}
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestClient_Verbs(t *testing.T) {
	ts := newEchoServer(t)
	c := New(ts.URL + "/")
	ctx := context.Background()

	var got echo
	require.NoError(t, c.Get(ctx, "/api/tasks/active", &got))
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/api/tasks/active", got.Path)

	got = echo{}
	require.NoError(t, c.Post(ctx, "/api/tasks/submit", map[string]any{"agent_type": "form_test"}, &got))
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "form_test", got.Body["agent_type"])

	got = echo{}
	require.NoError(t, c.Put(ctx, "/api/things/1", map[string]any{"a": 1}, &got))
	assert.Equal(t, http.MethodPut, got.Method)

	got = echo{}
	require.NoError(t, c.Delete(ctx, "/api/tasks/1", &got))
	assert.Equal(t, http.MethodDelete, got.Method)

	// nil out discards the body
	require.NoError(t, c.Delete(ctx, "/api/tasks/1", nil))
}

func TestClient_StatusErrors(t *testing.T) {
	ts := newEchoServer(t)
	c := New(ts.URL)

	err := c.Get(context.Background(), "/missing", nil)
	require.Error(t, err)
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, KindStatus, apiErr.Kind)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not here", apiErr.Body)
	assert.Equal(t, "Resource not found", apiErr.Notice())
	assert.True(t, IsNotFound(err))

	err = c.Get(context.Background(), "/boom", nil)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Server error occurred", apiErr.Notice())
	assert.False(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "API returned 500")
}

func TestClient_DecodeError(t *testing.T) {
	ts := newEchoServer(t)
	c := New(ts.URL)

	var out map[string]any
	err := c.Get(context.Background(), "/garbage", &out)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindDecode, apiErr.Kind)
	assert.Equal(t, "Request failed", Notice(err))
}

func TestClient_Timeout(t *testing.T) {
	ts := newEchoServer(t)
	c := New(ts.URL, WithTimeout(20*time.Millisecond))

	err := c.Get(context.Background(), "/slow", nil)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindTimeout, apiErr.Kind)
	assert.Equal(t, "Request timeout - AI operation taking too long", apiErr.Notice())
}

func TestClient_TransportError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	err := New(url).Get(context.Background(), "/api/health", nil)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindTransport, apiErr.Kind)
	assert.NotNil(t, errors.Unwrap(apiErr))
}

func TestClient_ExtraHeader(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	c := New(ts.URL, WithHeader("Authorization", "Bearer token"))
	require.NoError(t, c.Get(context.Background(), "/", nil))
	assert.Equal(t, ts.URL, c.BaseURL())
}

func TestNotice_NonAPIError(t *testing.T) {
	assert.Equal(t, "Request failed", Notice(errors.New("plain")))
}
