package credentials

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/engine/pkg/config"
)

func newTestClient(server *httptest.Server, token string) Client {
	cfg := &config.VaultYAMLConfig{BaseURL: server.URL, TokenEnv: "TEST_VAULT_TOKEN"}
	lookup := func(string) string { return token }
	return NewClient(cfg, lookup)
}

func TestVaultClient_Get_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(vaultResponse{
			OwnerID:              "owner-1",
			ConnectionDescriptor: ConnectionDescriptor{Kind: "postgres", DSN: "postgres://x"},
		})
	}))
	defer server.Close()

	c := newTestClient(server, "test-token")
	desc, err := c.Get(context.Background(), "owner-1", "db-main")
	require.NoError(t, err)
	assert.Equal(t, "postgres", desc.Kind)
	assert.Equal(t, "postgres://x", desc.DSN)
}

func TestVaultClient_Get_SendsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(vaultResponse{OwnerID: "owner-1"})
	}))
	defer server.Close()

	c := newTestClient(server, "secret-token")
	_, err := c.Get(context.Background(), "owner-1", "db-main")
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", gotAuth)
}

func TestVaultClient_Get_CrossOwnerRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(vaultResponse{OwnerID: "someone-else"})
	}))
	defer server.Close()

	c := newTestClient(server, "")
	_, err := c.Get(context.Background(), "owner-1", "db-main")
	require.ErrorIs(t, err, ErrCrossOwnerAccess)
}

func TestVaultClient_Get_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient(server, "")
	_, err := c.Get(context.Background(), "owner-1", "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestVaultClient_Get_VaultForbidden(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := newTestClient(server, "")
	_, err := c.Get(context.Background(), "owner-1", "someone-elses-ref")
	require.ErrorIs(t, err, ErrCrossOwnerAccess)
}
