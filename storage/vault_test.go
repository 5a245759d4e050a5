package storage

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeVault serves the subset of the KV v2 API used by VaultBackend.
type fakeVault struct {
	mu      sync.Mutex
	secrets map[string]map[string]interface{}
	token   string
}

func newFakeVault(token string) *httptest.Server {
	fv := &fakeVault{secrets: make(map[string]map[string]interface{}), token: token}
	return httptest.NewServer(fv)
}

func (fv *fakeVault) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/v1/sys/health" {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"initialized": true, "sealed": false, "standby": false})
		return
	}

	if r.Header.Get("X-Vault-Token") != fv.token {
		http.Error(w, `{"errors":["permission denied"]}`, http.StatusForbidden)
		return
	}

	fv.mu.Lock()
	defer fv.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/v1/")
	switch {
	case strings.HasPrefix(path, "secret/data/"):
		key := strings.TrimPrefix(path, "secret/data/")
		switch r.Method {
		case http.MethodGet:
			data, ok := fv.secrets[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"errors":[]}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": map[string]interface{}{
					"data":     data,
					"metadata": map[string]interface{}{"version": 1},
				},
			})
		case http.MethodPut, http.MethodPost:
			var body struct {
				Data map[string]interface{} `json:"data"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			fv.secrets[key] = body.Data
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{"version": 1}})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case strings.HasPrefix(path, "secret/metadata/") && r.Method == http.MethodDelete:
		delete(fv.secrets, strings.TrimPrefix(path, "secret/metadata/"))
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestVaultBackend(t *testing.T) {
	server := newFakeVault("test-token")
	defer server.Close()

	backend, err := NewVaultBackend(server.URL, "secret", "vigil", "test-token", testLogger())
	require.NoError(t, err)
	testRecordBackend(t, backend)
}

func TestVaultBackend_Unauthorized(t *testing.T) {
	server := newFakeVault("test-token")
	defer server.Close()

	backend, err := NewVaultBackend(server.URL, "secret", "vigil", "wrong-token", testLogger())
	require.NoError(t, err)

	err = backend.DeleteRecord(t.Context(), testSecretID())
	require.Error(t, err)
}
