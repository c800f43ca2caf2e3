// Package datasource executes parameterized queries against the connection
// a ConnectionDescriptor describes. It is shared by the Action Executor's
// data_query sub-handler (C7) and the Data Pipeline Sub-Engine's query step
// (C8) so both dispatch through one set of driver connectors instead of
// duplicating SQL/Mongo plumbing.
package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql" // registers "mysql" under database/sql
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" under database/sql
	_ "modernc.org/sqlite"             // registers "sqlite" under database/sql

	"github.com/skillforge/engine/pkg/credentials"
	"github.com/skillforge/engine/pkg/template"
)

// ErrUnsupportedKind is returned when a ConnectionDescriptor.Kind has no
// registered connector.
var ErrUnsupportedKind = errors.New("datasource: unsupported source kind")

// Result is the outcome of a Query call: row_count plus the decoded rows,
// matching the {query_result, row_count} shape spec §4.6 requires of
// data_query and the equivalent pipeline query step output.
type Result struct {
	Rows     []map[string]any
	RowCount int
}

// Querier executes one parameterized query against a described connection.
type Querier interface {
	Query(ctx context.Context, desc *credentials.ConnectionDescriptor, query string, params map[string]any) (*Result, error)
}

// Resolver is the credential-aware entry point data_query and the pipeline
// query step share: resolve a credential_ref, render the query template,
// then Query. Implemented by *Router.
type Resolver interface {
	ResolveAndQuery(ctx context.Context, credClient credentials.Client, ownerID, source, credentialRef, queryTemplate string, resolvedInputs map[string]any) (*Result, error)
}

// Router dispatches Query calls to the connector registered for
// desc.Kind. It is safe for concurrent use: every call opens (and closes)
// its own connection rather than pooling across requests, since
// credential_ref-scoped descriptors can point at arbitrarily many distinct
// databases over the engine's lifetime.
type Router struct{}

// NewRouter builds a datasource Router.
func NewRouter() *Router { return &Router{} }

func (r *Router) Query(ctx context.Context, desc *credentials.ConnectionDescriptor, query string, params map[string]any) (*Result, error) {
	if desc == nil {
		return nil, fmt.Errorf("datasource: connection descriptor is required")
	}
	switch desc.Kind {
	case "postgres":
		return querySQL(ctx, "pgx", desc.DSN, query, params)
	case "mysql":
		return querySQL(ctx, "mysql", desc.DSN, query, params)
	case "sqlite":
		return querySQL(ctx, "sqlite", desc.DSN, query, params)
	case "mongodb":
		return queryMongo(ctx, desc, query, params)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, desc.Kind)
	}
}

// querySQL covers the three database/sql-backed kinds. query is expected to
// use the driver's native positional placeholder convention ($1.../?);
// named parameters from params are substituted into the already-rendered
// query string upstream (pkg/template), so params here is only consulted
// when the caller passes positional args under numeric-string keys ("1",
// "2", ...ordered ascending).
func querySQL(ctx context.Context, driverName, dsn, query string, params map[string]any) (*Result, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("datasource: open %s: %w", driverName, err)
	}
	defer db.Close()

	args := positionalArgs(params)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("datasource: query %s: %w", driverName, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("datasource: read columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("datasource: scan row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = normalizeSQLValue(vals[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("datasource: row iteration: %w", err)
	}

	return &Result{Rows: out, RowCount: len(out)}, nil
}

// normalizeSQLValue turns driver-returned []byte (the common representation
// for TEXT/VARCHAR columns across pgx/mysql/sqlite's database/sql drivers)
// into a string so JSON-encoding downstream doesn't base64 it.
func normalizeSQLValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// ResolveAndQuery is the data_query/pipeline-query shared call path (spec
// §4.6.2 / §4.7): fetch the credential tenanted to ownerID, render the
// query template against resolvedInputs, dispatch through r. Shared by
// pkg/executor/actionexec's data_query sub-handler and pkg/pipeline's
// query step so both resolve a data_query identically.
func (r *Router) ResolveAndQuery(ctx context.Context, credClient credentials.Client, ownerID, source, credentialRef, queryTemplate string, resolvedInputs map[string]any) (*Result, error) {
	if credClient == nil {
		return nil, fmt.Errorf("datasource: no credential client configured")
	}
	desc, err := credClient.Get(ctx, ownerID, credentialRef)
	if err != nil {
		return nil, fmt.Errorf("fetch credential %q: %w", credentialRef, err)
	}
	if desc.Kind == "" {
		desc.Kind = source
	}
	rendered, err := template.Render(queryTemplate, resolvedInputs)
	if err != nil {
		return nil, fmt.Errorf("render query template: %w", err)
	}
	return r.Query(ctx, desc, rendered, resolvedInputs)
}

// positionalArgs orders params by its numeric-string keys ("1", "2", ...)
// into a positional arg slice; non-numeric keys are ignored, since the SQL
// connectors only support positional placeholders.
func positionalArgs(params map[string]any) []any {
	if len(params) == 0 {
		return nil
	}
	max := 0
	for k := range params {
		var n int
		if _, err := fmt.Sscanf(k, "%d", &n); err == nil && n > max {
			max = n
		}
	}
	args := make([]any, max)
	for k, v := range params {
		var n int
		if _, err := fmt.Sscanf(k, "%d", &n); err == nil && n >= 1 && n <= max {
			args[n-1] = v
		}
	}
	return args
}
