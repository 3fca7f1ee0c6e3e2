package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/cuemby/burrow/pkg/apperrors"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
)

// Handle is one pooled connection pinned to a tenant namespace for the life
// of a request. All statements it runs resolve unqualified tables inside
// that namespace.
type Handle struct {
	conn      *sqlx.Conn
	namespace string
}

// Namespace returns the tenant namespace the handle is bound to.
func (h *Handle) Namespace() string {
	return h.namespace
}

// Exec runs a statement that returns no rows.
func (h *Handle) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.QueryDuration, "exec")
	return h.conn.ExecContext(ctx, query, args...)
}

// Query runs a statement and returns its rows.
func (h *Handle) Query(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.QueryDuration, "query")
	return h.conn.QueryxContext(ctx, query, args...)
}

// QueryRow runs a statement expected to return at most one row.
func (h *Handle) QueryRow(ctx context.Context, query string, args ...any) *sqlx.Row {
	return h.conn.QueryRowxContext(ctx, query, args...)
}

// Get scans a single row into dest.
func (h *Handle) Get(ctx context.Context, dest any, query string, args ...any) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.QueryDuration, "get")
	return h.conn.GetContext(ctx, dest, query, args...)
}

// Select scans all rows into dest.
func (h *Handle) Select(ctx context.Context, dest any, query string, args ...any) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.QueryDuration, "select")
	return h.conn.SelectContext(ctx, dest, query, args...)
}

// WithTx runs fn inside a transaction, committing on nil and rolling back on
// error or panic.
func (h *Handle) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := h.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.WithComponent("db").Error().Err(rbErr).Msg("Rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Begin opens the request-scoped transaction. The pipeline brackets every
// handler with Begin/Commit or Begin/Rollback on the same pinned connection,
// so ORM statements issued through the handle run inside it.
func (h *Handle) Begin(ctx context.Context) error {
	_, err := h.conn.ExecContext(ctx, "BEGIN")
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	return nil
}

// Commit commits the request-scoped transaction.
func (h *Handle) Commit(ctx context.Context) error {
	_, err := h.conn.ExecContext(ctx, "COMMIT")
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback discards the request-scoped transaction.
func (h *Handle) Rollback(ctx context.Context) error {
	_, err := h.conn.ExecContext(ctx, "ROLLBACK")
	if err != nil {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

// Release resets the connection's search_path and returns it to the pool.
func (h *Handle) Release(ctx context.Context) error {
	if _, err := h.conn.ExecContext(ctx, "SET search_path TO public"); err != nil {
		// The connection may be broken; closing still returns it for disposal.
		log.WithComponent("db").Warn().Err(err).Msg("Failed to reset search_path")
	}
	return h.conn.Close()
}

// TranslateError maps low-level database failures onto the application error
// taxonomy. Unique violations become duplicate-resource errors and empty
// results become not-found; anything else passes through for the pipeline's
// catch-all.
func TranslateError(err error, resource string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.ResourceNotFound(resource)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperrors.DuplicateResource(resource)
	}
	return err
}
