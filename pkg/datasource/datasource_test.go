package datasource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skillforge/engine/pkg/credentials"
)

func TestPositionalArgs_OrdersByNumericKey(t *testing.T) {
	args := positionalArgs(map[string]any{"2": "b", "1": "a", "3": "c"})
	assert.Equal(t, []any{"a", "b", "c"}, args)
}

func TestPositionalArgs_IgnoresNonNumericKeys(t *testing.T) {
	args := positionalArgs(map[string]any{"1": "a", "status": "open"})
	assert.Equal(t, []any{"a"}, args)
}

func TestPositionalArgs_EmptyReturnsNil(t *testing.T) {
	assert.Nil(t, positionalArgs(nil))
}

func TestNormalizeSQLValue_BytesToString(t *testing.T) {
	assert.Equal(t, "hello", normalizeSQLValue([]byte("hello")))
	assert.Equal(t, 42, normalizeSQLValue(42))
}

func TestRouter_Query_UnsupportedKind(t *testing.T) {
	r := NewRouter()
	_, err := r.Query(t.Context(), &credentials.ConnectionDescriptor{Kind: "redis"}, "SELECT 1", nil)
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}

type fakeCredClient struct {
	desc *credentials.ConnectionDescriptor
	err  error
}

func (f *fakeCredClient) Get(_ context.Context, _, _ string) (*credentials.ConnectionDescriptor, error) {
	return f.desc, f.err
}

func TestRouter_ResolveAndQuery_NilCredentialClientErrors(t *testing.T) {
	r := NewRouter()
	_, err := r.ResolveAndQuery(t.Context(), nil, "owner-1", "postgres", "ref", "select 1", nil)
	assert.Error(t, err)
}

func TestRouter_ResolveAndQuery_PropagatesCredentialLookupError(t *testing.T) {
	r := NewRouter()
	cred := &fakeCredClient{err: credentials.ErrNotFound}
	_, err := r.ResolveAndQuery(t.Context(), cred, "owner-1", "postgres", "ref", "select 1", nil)
	assert.ErrorIs(t, err, credentials.ErrNotFound)
}

func TestRouter_ResolveAndQuery_BadQueryTemplateErrorsBeforeDispatch(t *testing.T) {
	r := NewRouter()
	cred := &fakeCredClient{desc: &credentials.ConnectionDescriptor{Kind: "redis", DSN: "x"}}
	_, err := r.ResolveAndQuery(t.Context(), cred, "owner-1", "redis", "ref", "select {unterminated", nil)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupportedKind) // never reaches Query/dispatch
}
