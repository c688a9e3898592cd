package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostJSON(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"abc"}`))
	}))
	defer srv.Close()

	c := NewWithHTTPClient("svc", srv.URL+"/", srv.Client())

	var out struct {
		ID string `json:"id"`
	}
	err := c.PostJSON(context.Background(), "api/keys/", "tok", map[string]string{"name": "k"}, &out)
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "/api/keys/", gotPath)
	assert.Equal(t, "k", gotBody["name"])
	assert.Equal(t, "abc", out.ID)
}

func TestPostJSONWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewWithHTTPClient("svc", srv.URL, srv.Client())
	var out map[string]any
	require.NoError(t, c.PostJSON(context.Background(), "/login", "", struct{}{}, &out))
	assert.Nil(t, out)
}

func TestPostJSONAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"detail":"already exists"}`))
	}))
	defer srv.Close()

	c := NewWithHTTPClient("svc", srv.URL, srv.Client())
	err := c.PostJSON(context.Background(), "api/users/", "tok", struct{}{}, nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Contains(t, apiErr.Body, "already exists")
	assert.True(t, IsStatus(err, http.StatusConflict))
	assert.False(t, IsStatus(err, http.StatusNotFound))
}

func TestPostJSONTruncatesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(strings.Repeat("x", maxErrorBody*2)))
	}))
	defer srv.Close()

	c := NewWithHTTPClient("svc", srv.URL, srv.Client())
	err := c.PostJSON(context.Background(), "x", "", struct{}{}, nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Len(t, apiErr.Body, maxErrorBody)
}

func TestPostJSONBadResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := NewWithHTTPClient("svc", srv.URL, srv.Client())
	var out map[string]any
	err := c.PostJSON(context.Background(), "x", "", struct{}{}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse response")
}

func TestPostJSONNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New("svc", Config{BaseURL: url, Timeout: time.Second})
	err := c.PostJSON(context.Background(), "x", "", struct{}{}, nil)

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, url+"/x", netErr.URL)
}

func TestURL(t *testing.T) {
	c := New("svc", Config{BaseURL: "https://host:8443/"})
	assert.Equal(t, "https://host:8443/api/v1/vault/keys2", c.URL("api/v1/vault/keys2"))
	assert.Equal(t, "https://host:8443/api/users/", c.URL("/api/users/"))
}
