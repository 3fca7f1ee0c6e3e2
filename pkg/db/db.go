package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/cuemby/burrow/pkg/log"
)

// Pool wraps the shared Postgres connection pool. Tenant isolation happens at
// handle acquisition time, never at pool construction time, so one pool serves
// every namespace.
type Pool struct {
	db *sqlx.DB
}

// Open connects to Postgres via the pgx stdlib driver and verifies the
// connection.
func Open(ctx context.Context, databaseURL string) (*Pool, error) {
	sqlxDB, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := sqlxDB.PingContext(ctx); err != nil {
		sqlxDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.WithComponent("db").Info().Msg("Connected to database")
	return &Pool{db: sqlxDB}, nil
}

// NewFromDB wraps an existing database handle. Tests use it with sqlmock.
func NewFromDB(raw *sql.DB, driverName string) *Pool {
	return &Pool{db: sqlx.NewDb(raw, driverName)}
}

// Close releases the pool.
func (p *Pool) Close() error {
	return p.db.Close()
}

// Acquire checks out one connection bound to a tenant namespace. The
// connection's search_path is set to the namespace with public as fallback,
// so unqualified table names resolve inside the tenant and shared tables
// stay reachable. Callers must Release the handle.
func (p *Pool) Acquire(ctx context.Context, namespace string) (*Handle, error) {
	ns := NormalizeNamespace(namespace)
	if ns == "" {
		return nil, fmt.Errorf("empty tenant namespace")
	}

	conn, err := p.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET search_path TO %s, public", QuoteIdentifier(ns))); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set search_path for %s: %w", ns, err)
	}
	return &Handle{conn: conn, namespace: ns}, nil
}

// NormalizeNamespace lowercases a tenant name and replaces every character
// that cannot appear in an unquoted Postgres schema name with an underscore.
// "Acme-Corp" and "acme.corp" both map to acme_corp.
func NormalizeNamespace(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// QuoteIdentifier double-quotes a SQL identifier, escaping embedded quotes.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
