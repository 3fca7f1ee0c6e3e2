package orm

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/cuemby/burrow/pkg/apperrors"

	"github.com/cuemby/burrow/pkg/appctx"
	"github.com/cuemby/burrow/pkg/db"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/schema"
)

// Options shape a FetchMany query.
type Options struct {
	// Fields restricts the selected columns; empty selects *.
	Fields []string
	// Include names relationships to materialise on each result.
	Include []string
	OrderBy string
	Limit   int
	Filters map[string]any
}

// Insert persists a new record and assigns its returned primary key. Values
// come from the record's set fields, descriptor defaults included. Unique
// violations surface as duplicate-resource errors. An audit event is emitted
// unless the entity is the audit entity itself.
func Insert(ctx context.Context, r *Record) error {
	handle := appctx.Handle(ctx)
	if handle == nil {
		return fmt.Errorf("no database handle in context")
	}

	pk := r.def.PrimaryKey().Name
	var cols []string
	var args []any
	for _, col := range r.def.ColumnNames() {
		if v, ok := r.values[col]; ok {
			cols = append(cols, col)
			args = append(args, v)
		}
	}

	var query string
	if len(cols) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s",
			r.def.QualifiedTable(), pk)
	} else {
		placeholders := make([]string, len(cols))
		for i := range cols {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			r.def.QualifiedTable(), strings.Join(cols, ", "),
			strings.Join(placeholders, ", "), pk)
	}

	var id any
	if err := handle.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return db.TranslateError(err, r.def.Name)
	}
	if b, ok := id.([]byte); ok {
		id = string(b)
	}
	r.values[pk] = id
	r.markClean()

	emitAudit(ctx, "create", r)
	return nil
}

// Update persists the dirty set. A clean record is a no-op.
func Update(ctx context.Context, r *Record) error {
	if !r.Dirty() {
		return nil
	}
	handle := appctx.Handle(ctx)
	if handle == nil {
		return fmt.Errorf("no database handle in context")
	}

	pk := r.def.PrimaryKey().Name
	dirty := r.DirtyFields()
	assignments := make([]string, len(dirty))
	args := make([]any, 0, len(dirty)+1)
	for i, col := range dirty {
		assignments[i] = fmt.Sprintf("%s = $%d", col, i+1)
		args = append(args, r.values[col])
	}
	args = append(args, r.values[pk])

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		r.def.QualifiedTable(), strings.Join(assignments, ", "), pk, len(args))
	if _, err := handle.Exec(ctx, query, args...); err != nil {
		return db.TranslateError(err, r.def.Name)
	}
	r.markClean()

	emitAudit(ctx, "update", r)
	return nil
}

// Fetch returns the first record matching the filters, fully hydrated, or a
// not-found error.
func Fetch(ctx context.Context, def *schema.Definition, filters map[string]any) (*Record, error) {
	records, err := FetchMany(ctx, def, Options{Filters: filters, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, db.TranslateError(sql.ErrNoRows, def.Name)
	}
	return records[0], nil
}

// FetchMany returns every record matching the options, materialising any
// included relationships.
func FetchMany(ctx context.Context, def *schema.Definition, opts Options) ([]*Record, error) {
	handle := appctx.Handle(ctx)
	if handle == nil {
		return nil, fmt.Errorf("no database handle in context")
	}

	columns := "*"
	if len(opts.Fields) > 0 {
		columns = strings.Join(opts.Fields, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", columns, def.QualifiedTable())
	where, args := buildWhere(opts.Filters)
	b.WriteString(where)
	if opts.OrderBy != "" {
		fmt.Fprintf(&b, " ORDER BY %s", opts.OrderBy)
	}
	if opts.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", opts.Limit)
	}

	rows, err := handle.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, db.TranslateError(err, def.Name)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", def.Name, err)
		}
		records = append(records, hydrate(def, row))
	}
	if err := rows.Err(); err != nil {
		return nil, db.TranslateError(err, def.Name)
	}

	for _, name := range opts.Include {
		for _, r := range records {
			if err := materialise(ctx, r, name); err != nil {
				return nil, err
			}
		}
	}
	return records, nil
}

// FirstOrCreate fetches by the filters; when nothing matches it inserts a new
// record built from them. The second return reports whether a row was
// created.
func FirstOrCreate(ctx context.Context, def *schema.Definition, filters map[string]any) (*Record, bool, error) {
	existing, err := Fetch(ctx, def, filters)
	if err == nil {
		return existing, false, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, false, err
	}

	r := New(def)
	if err := r.Apply(filters); err != nil {
		return nil, false, err
	}
	if err := Insert(ctx, r); err != nil {
		return nil, false, err
	}
	return r, true, nil
}

// buildWhere renders filters in sorted key order so generated SQL is stable.
func buildWhere(filters map[string]any) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		clauses[i] = fmt.Sprintf("%s = $%d", k, i+1)
		args[i] = filters[k]
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// materialise loads one relationship onto a record.
func materialise(ctx context.Context, r *Record, name string) error {
	rel := r.def.Relationship(name)
	if rel == nil {
		return fmt.Errorf("entity %s has no relationship %s", r.def.Name, name)
	}
	target, ok := Registry.Lookup(rel.Target)
	if !ok {
		return fmt.Errorf("relationship %s targets unregistered entity %s", name, rel.Target)
	}

	switch rel.Kind {
	case schema.HasOne, schema.OwnsOne:
		fk := r.values[rel.ColumnName()]
		if fk == nil {
			return nil
		}
		found, err := Fetch(ctx, target, map[string]any{target.PrimaryKey().Name: fk})
		if err != nil {
			return err
		}
		r.relations[name] = found
	case schema.HasMany:
		opts := Options{
			Filters: map[string]any{r.def.Table + "_id": r.ID()},
			OrderBy: rel.OrderBy,
			Limit:   rel.Limit,
		}
		found, err := FetchMany(ctx, target, opts)
		if err != nil {
			return err
		}
		r.relations[name] = found
	}
	return nil
}

// Registry resolves relationship targets. Swappable so tests can use an
// isolated registry.
var Registry = schema.Default

// emitAudit publishes an AuditEvent for a persisted record. The audit entity
// itself is exempt, which breaks the would-be recursion when the audit
// listener persists its own row. Public entities are shared across tenants,
// so their writes never land in a tenant's audit log either.
func emitAudit(ctx context.Context, action string, r *Record) {
	if r.def.IsAudit() || r.def.Public {
		return
	}
	bus := appctx.Bus(ctx)
	if bus == nil {
		return
	}

	event, err := events.New(events.AuditEventName, map[string]any{
		"model":   r,
		"request": requestSnapshot(ctx),
		"meta": map[string]any{
			"action":      action,
			"object_type": r.def.Name,
			"tenant":      appctx.Tenant(ctx),
		},
	})
	if err != nil {
		log.WithComponent("orm").Error().Err(err).Msg("Failed to build audit event")
		return
	}
	bus.Dispatch(event)
}

// Subject is implemented by principal values that can identify the acting
// user. Records and verified token claims both qualify.
type Subject interface {
	SubjectID() any
}

// requestSnapshot captures the parts of the ambient request the audit
// listener needs: actor, location, method, and path.
func requestSnapshot(ctx context.Context) map[string]any {
	snapshot := map[string]any{}
	frame := appctx.From(ctx)
	if frame == nil {
		return snapshot
	}

	if actor, ok := frame.Principal.(Subject); ok {
		if id := actor.SubjectID(); id != nil {
			snapshot["user_id"] = id
		}
	}
	if req := frame.Request; req != nil {
		snapshot["method"] = req.Method
		snapshot["path"] = req.URL.Path
		location := req.Header.Get("X-Real-IP")
		if location == "" {
			location = req.Header.Get("X-Forwarded-For")
		}
		if location == "" {
			location = "unknown"
		}
		snapshot["location"] = location
	}
	return snapshot
}
