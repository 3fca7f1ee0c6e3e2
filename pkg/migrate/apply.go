package migrate

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/singleflight"

	"github.com/cuemby/burrow/pkg/db"
	"github.com/cuemby/burrow/pkg/id57"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
)

const migrationsTableDDL = `CREATE TABLE IF NOT EXISTS %s.migrations (
    hash VARCHAR(64) PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// Runner applies pending migrations to tenant namespaces. Each namespace is
// ensured at most once per process; concurrent first contact on the same
// namespace collapses into a single application via singleflight.
type Runner struct {
	pool *db.Pool
	dir  string

	group singleflight.Group

	mu      sync.Mutex
	ensured map[string]bool
}

// NewRunner wires a runner over the shared pool and migrations directory.
func NewRunner(pool *db.Pool, migrationsDir string) *Runner {
	return &Runner{pool: pool, dir: migrationsDir, ensured: make(map[string]bool)}
}

// EnsureNamespace creates the namespace and its migrations table if missing
// and applies every pending migration. Repeat calls for an already-ensured
// namespace return immediately.
func (r *Runner) EnsureNamespace(ctx context.Context, namespace string) error {
	ns := db.NormalizeNamespace(namespace)
	if ns == "" {
		return fmt.Errorf("empty tenant namespace")
	}

	r.mu.Lock()
	done := r.ensured[ns]
	r.mu.Unlock()
	if done {
		return nil
	}

	_, err, _ := r.group.Do(ns, func() (any, error) {
		if err := r.apply(ctx, ns); err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.ensured[ns] = true
		metrics.TenantsKnown.Set(float64(len(r.ensured)))
		r.mu.Unlock()
		return nil, nil
	})
	return err
}

func (r *Runner) apply(ctx context.Context, ns string) error {
	handle, err := r.pool.Acquire(ctx, ns)
	if err != nil {
		return err
	}
	defer handle.Release(ctx)

	quoted := db.QuoteIdentifier(ns)
	if _, err := handle.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoted); err != nil {
		return fmt.Errorf("failed to create namespace %s: %w", ns, err)
	}
	if _, err := handle.Exec(ctx, fmt.Sprintf(migrationsTableDDL, quoted)); err != nil {
		return fmt.Errorf("failed to create migrations table for %s: %w", ns, err)
	}
	if _, err := handle.Exec(ctx, fmt.Sprintf(migrationsTableDDL, "public")); err != nil {
		return fmt.Errorf("failed to create public migrations table: %w", err)
	}

	files, err := ListMigrations(r.dir)
	if err != nil {
		return err
	}

	logger := log.WithTenant(ns)
	for _, file := range files {
		raw, err := os.ReadFile(filepath.Join(r.dir, file))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file, err)
		}
		hash := ContentHash(raw)
		tenantStmts, publicStmts := splitByNamespace(string(raw))

		if len(tenantStmts) > 0 {
			applied, err := r.recorded(ctx, handle, quoted, hash)
			if err != nil {
				return err
			}
			if !applied {
				logger.Info().Str("migration", file).Msg("Applying migration")
				if err := r.runStatements(ctx, handle, quoted, file, hash, tenantStmts); err != nil {
					return err
				}
			}
		}

		if len(publicStmts) > 0 {
			applied, err := r.recorded(ctx, handle, "public", hash)
			if err != nil {
				return err
			}
			if !applied {
				logger.Info().Str("migration", file).Msg("Applying public migration")
				if err := r.runStatements(ctx, handle, "public", file, hash, publicStmts); err != nil {
					return err
				}
			}
		}
	}
	return r.recordTenant(ctx, handle, ns)
}

// recordTenant upserts the namespace into the shared customer registry on
// first contact. The default namespace is not a tenant and the registry only
// exists once the customers migration has been applied, so both cases skip.
func (r *Runner) recordTenant(ctx context.Context, handle *db.Handle, ns string) error {
	if ns == "public" {
		return nil
	}

	var regclass *string
	if err := handle.Get(ctx, &regclass, "SELECT to_regclass('public.customers')"); err != nil {
		return fmt.Errorf("failed to probe customer registry: %w", err)
	}
	if regclass == nil {
		return nil
	}

	_, err := handle.Exec(ctx,
		"INSERT INTO public.customers (id, name, created_at) VALUES ($1, $2, $3) ON CONFLICT (name) DO NOTHING",
		id57.Generate(), ns, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record tenant %s: %w", ns, err)
	}
	return nil
}

func (r *Runner) recorded(ctx context.Context, handle *db.Handle, schemaIdent, hash string) (bool, error) {
	var count int
	err := handle.Get(ctx, &count,
		fmt.Sprintf("SELECT COUNT(*) FROM %s.migrations WHERE hash = $1", schemaIdent), hash)
	if err != nil {
		return false, fmt.Errorf("failed to check migration state: %w", err)
	}
	return count > 0, nil
}

// runStatements executes one migration's statements and records its hash in
// one transaction, so a failed statement leaves no partial application.
func (r *Runner) runStatements(ctx context.Context, handle *db.Handle, schemaIdent, name, hash string, stmts []string) error {
	err := handle.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migration %s: statement failed: %w", name, err)
			}
		}
		_, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s.migrations (hash, name) VALUES ($1, $2)", schemaIdent),
			hash, name)
		if err != nil {
			return fmt.Errorf("migration %s: failed to record: %w", name, err)
		}
		return nil
	})
	if err == nil {
		metrics.MigrationsApplied.WithLabelValues(strings.Trim(schemaIdent, `"`)).Inc()
	}
	return err
}

// splitByNamespace separates a migration's statements into tenant-local ones
// and those targeting the shared public namespace. Comment lines are dropped.
func splitByNamespace(text string) (tenant, public []string) {
	var cleaned []string
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		cleaned = append(cleaned, line)
	}
	for _, stmt := range SplitStatements(strings.Join(cleaned, "\n")) {
		if targetsPublic(stmt) {
			public = append(public, stmt)
		} else {
			tenant = append(tenant, stmt)
		}
	}
	return tenant, public
}

// targetsPublic reports whether a statement operates on a public-qualified
// object. A tenant table whose foreign key merely references a public table
// stays tenant-side.
func targetsPublic(stmt string) bool {
	return strings.Contains(stmt, "TABLE public.") ||
		strings.Contains(stmt, "EXISTS public.") ||
		strings.Contains(stmt, "ON public.")
}

// ContentHash returns the sha256 hex digest of a migration file's bytes.
func ContentHash(raw []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(raw))
}
