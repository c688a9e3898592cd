package tests

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// FakeService answers every POST with a resource echoing the requested name.
type FakeService struct {
	*httptest.Server

	mu    sync.Mutex
	calls map[string]int
	seq   atomic.Int64
}

func (f *FakeService) Calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

type replyFunc func(f *FakeService, path string, body map[string]any) map[string]any

func newFakeService(t *testing.T, authPath string, auth map[string]any, token string, reply replyFunc) *FakeService {
	t.Helper()

	f := &FakeService{calls: make(map[string]int)}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls[r.URL.Path]++
		f.mu.Unlock()

		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		resp := auth
		if r.URL.Path != authPath {
			if r.Header.Get("Authorization") != "Bearer "+token {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if resp = reply(f, r.URL.Path, body); resp == nil {
				w.WriteHeader(http.StatusNotFound)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *FakeService) nextID() string {
	return fmt.Sprintf("%d", f.seq.Add(1))
}

func str(body map[string]any, key string) string {
	s, _ := body[key].(string)
	return s
}

// NewKeyManager fakes the key, user and policy manager.
func NewKeyManager(t *testing.T) *FakeService {
	auth := map[string]any{"jwt": "km-token"}
	return newFakeService(t, "/api/v1/auth/tokens/", auth, "km-token", func(f *FakeService, path string, body map[string]any) map[string]any {
		switch {
		case path == "/api/v1/usermgmt/users":
			return map[string]any{"user_id": "local|" + str(body, "username"), "username": str(body, "username")}
		case path == "/api/v1/vault/keys2":
			return map[string]any{"id": f.nextID(), "name": str(body, "name")}
		case path == "/api/v1/client-management/regtokens":
			return map[string]any{"id": f.nextID(), "token": "reg-" + f.nextID()}
		case strings.HasPrefix(path, "/api/v1/client-management/profiles"),
			strings.HasPrefix(path, "/api/v1/transparent-encryption/"):
			return map[string]any{"id": f.nextID(), "name": str(body, "name")}
		}
		return nil
	})
}

// NewTokenVault fakes the tokenization manager.
func NewTokenVault(t *testing.T) *FakeService {
	auth := map[string]any{"token": "tv-token"}
	return newFakeService(t, "/api/api-token-auth/", auth, "tv-token", func(f *FakeService, path string, body map[string]any) map[string]any {
		switch path {
		case "/api/users/":
			return map[string]any{"id": f.nextID(), "username": str(body, "username"), "email": str(body, "email")}
		case "/api/keys/", "/api/tokengroups/":
			return map[string]any{"id": f.nextID(), "name": str(body, "name")}
		case "/api/permissions/token/users/", "/api/permissions/crypto/users/":
			return map[string]any{"id": f.nextID()}
		case "/api/tokentemplates/":
			return map[string]any{"id": f.nextID(), "name": str(body, "name"), "tenant": str(body, "tenant")}
		}
		return nil
	})
}
