// Package credentials implements the Credential Client (spec §4.3 / C3): a
// read-only, owner-scoped lookup of decrypted connection descriptors from an
// external vault service. The engine never decrypts or stores secrets
// itself — it is a keyed secret store consumer, nothing more (spec
// Non-goals: "Credential vault internals").
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/skillforge/engine/pkg/config"
)

// ErrCrossOwnerAccess is returned when a credential_ref resolves to a
// secret owned by a different owner_id than the caller supplied.
var ErrCrossOwnerAccess = errors.New("credentials: cross-owner access denied")

// ErrNotFound is returned when credential_ref does not resolve to any
// secret visible to owner_id.
var ErrNotFound = errors.New("credentials: not found")

// ConnectionDescriptor is the decrypted, ready-to-use connection
// information returned by the vault for one credential_ref. Its shape is
// deliberately opaque beyond the fields every data_query/http_call/script
// consumer needs; callers type-assert Extra for anything source-specific.
type ConnectionDescriptor struct {
	Kind     string         `json:"kind"` // "postgres" | "mysql" | "sqlite" | "mongodb" | "api_key" | "bearer" | "basic"
	DSN      string         `json:"dsn,omitempty"`
	Token    string         `json:"token,omitempty"`
	Username string         `json:"username,omitempty"`
	Password string         `json:"password,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// Client is the read-only interface the rest of the engine depends on.
// Implementations must be safe for concurrent use by many goroutines (spec
// §5 shared-resource policy: "Credential client is read-only, safely
// shared across goroutines/threads").
type Client interface {
	Get(ctx context.Context, ownerID, credentialRef string) (*ConnectionDescriptor, error)
}

// vaultClient is the HTTP-backed implementation, grounded on the teacher's
// GitHubClient (pkg/runbook/github.go): a thin http.Client wrapper with a
// bearer token attached per request.
type vaultClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *slog.Logger
}

// NewClient builds a Client from the engine's credential_vault config
// block. token is read from the environment variable named by
// cfg.TokenEnv (empty TokenEnv means no Authorization header is sent,
// matching a vault deployed behind network-level auth only).
func NewClient(cfg *config.VaultYAMLConfig, tokenLookup func(string) string) Client {
	var token string
	if cfg.TokenEnv != "" && tokenLookup != nil {
		token = tokenLookup(cfg.TokenEnv)
	}
	return &vaultClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    cfg.BaseURL,
		token:      token,
		logger:     slog.Default().With("component", "credentials"),
	}
}

type vaultResponse struct {
	OwnerID string `json:"owner_id"`
	ConnectionDescriptor
}

// Get resolves credentialRef to a ConnectionDescriptor scoped to ownerID.
// The vault is expected to expose GET {base_url}/credentials/{ref} and
// echo the owning owner_id in its response body so the engine can refuse
// to hand back a secret it didn't ask for (defense against a
// misconfigured or compromised vault, not just a client-side filter).
func (c *vaultClient) Get(ctx context.Context, ownerID, credentialRef string) (*ConnectionDescriptor, error) {
	url := fmt.Sprintf("%s/credentials/%s?owner_id=%s", c.baseURL, credentialRef, ownerID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch credential %q: %w", credentialRef, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, credentialRef)
	case http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", ErrCrossOwnerAccess, credentialRef)
	default:
		return nil, fmt.Errorf("vault returned HTTP %d for %s", resp.StatusCode, credentialRef)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read vault response: %w", err)
	}

	var v vaultResponse
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("decode vault response: %w", err)
	}

	if v.OwnerID != "" && v.OwnerID != ownerID {
		c.logger.Warn("vault returned a credential for a different owner",
			"credential_ref", credentialRef, "requested_owner", ownerID, "actual_owner", v.OwnerID)
		return nil, fmt.Errorf("%w: %s", ErrCrossOwnerAccess, credentialRef)
	}

	return &v.ConnectionDescriptor, nil
}

func (c *vaultClient) setAuthHeader(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
