package orm

import (
	"fmt"
	"time"

	"github.com/cuemby/burrow/pkg/apperrors"
	"github.com/cuemby/burrow/pkg/schema"
)

// Record is one entity instance: a mapping of field name to current value
// plus the bookkeeping the store needs. Values set since the last persistence
// form the dirty set; values hydrated from storage form the loaded set.
type Record struct {
	def    *schema.Definition
	values map[string]any
	dirty  map[string]bool
	loaded map[string]bool

	// relations caches materialised relationship targets by name: *Record
	// for has-one and owns-one, []*Record for has-many.
	relations map[string]any

	allowPrivate bool
}

// New creates an in-memory record with descriptor defaults applied. Defaulted
// fields count as dirty so the first insert persists them.
func New(def *schema.Definition) *Record {
	r := &Record{
		def:       def,
		values:    make(map[string]any),
		dirty:     make(map[string]bool),
		loaded:    make(map[string]bool),
		relations: make(map[string]any),
	}
	for _, f := range def.Fields {
		if f.HasDefault() {
			r.values[f.Name] = f.DefaultValue()
			r.dirty[f.Name] = true
		}
	}
	return r
}

// Definition returns the entity definition backing this record.
func (r *Record) Definition() *schema.Definition {
	return r.def
}

// ID returns the primary key value, or nil before insert.
func (r *Record) ID() any {
	return r.values[r.def.PrimaryKey().Name]
}

// SubjectID identifies the record when it acts as a request principal.
func (r *Record) SubjectID() any {
	if r == nil {
		return nil
	}
	return r.ID()
}

// Get returns the current value for a field or relationship foreign key.
// Reading a private field fails unless private access is enabled.
func (r *Record) Get(name string) (any, error) {
	if f := r.def.Field(name); f != nil {
		if f.Private && !r.allowPrivate {
			return nil, apperrors.PrivateFieldAccess(r.def.Name, name)
		}
		return r.values[name], nil
	}
	if r.isRelationColumn(name) {
		return r.values[name], nil
	}
	return nil, fmt.Errorf("entity %s has no field %s", r.def.Name, name)
}

// MustGet is Get for fields known to exist and be readable.
func (r *Record) MustGet(name string) any {
	v, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return v
}

// Set assigns a field or relationship foreign key and marks it dirty. Field
// validators run before assignment.
func (r *Record) Set(name string, value any) error {
	if f := r.def.Field(name); f != nil {
		if f.Validate != nil {
			if err := f.Validate(value); err != nil {
				return err
			}
		}
		r.values[name] = value
		r.dirty[name] = true
		return nil
	}
	if r.isRelationColumn(name) {
		r.values[name] = value
		r.dirty[name] = true
		return nil
	}
	return fmt.Errorf("entity %s has no field %s", r.def.Name, name)
}

// Apply is the bulk setter: every assignment updates the dirty set.
func (r *Record) Apply(values map[string]any) error {
	for name, value := range values {
		if err := r.Set(name, value); err != nil {
			return err
		}
	}
	return nil
}

// Dirty reports whether any field changed since the last persistence.
func (r *Record) Dirty() bool {
	return len(r.dirty) > 0
}

// DirtyFields returns changed column names in declaration order.
func (r *Record) DirtyFields() []string {
	var out []string
	for _, col := range r.def.ColumnNames() {
		if r.dirty[col] {
			out = append(out, col)
		}
	}
	return out
}

// Loaded reports whether a field was hydrated from storage.
func (r *Record) Loaded(name string) bool {
	return r.loaded[name]
}

// Relation returns a materialised relationship target, or nil when the
// relationship has not been included.
func (r *Record) Relation(name string) any {
	return r.relations[name]
}

// ToDict projects the record to a JSON-shaped mapping following the
// descriptor list. Private fields are omitted unless includePrivate is true;
// materialised relationships project recursively.
func (r *Record) ToDict(includePrivate bool) map[string]any {
	out := make(map[string]any, len(r.def.Fields))
	for _, f := range r.def.Fields {
		if f.Private && !includePrivate {
			continue
		}
		out[f.Name] = projectValue(r.values[f.Name])
	}
	for _, rel := range r.def.Relationships {
		if col := rel.ColumnName(); col != "" {
			if v, ok := r.values[col]; ok {
				out[col] = projectValue(v)
			}
		}
		switch target := r.relations[rel.Name].(type) {
		case *Record:
			out[rel.Name] = target.ToDict(includePrivate)
		case []*Record:
			projected := make([]any, len(target))
			for i, t := range target {
				projected[i] = t.ToDict(includePrivate)
			}
			out[rel.Name] = projected
		}
	}
	return out
}

// Project implements events.Projector with private fields hidden.
func (r *Record) Project() map[string]any {
	return r.ToDict(false)
}

func projectValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v
}

func (r *Record) isRelationColumn(name string) bool {
	for _, rel := range r.def.Relationships {
		if rel.ColumnName() == name {
			return true
		}
	}
	return false
}

// hydrate installs a row's values, normalising driver byte slices, and marks
// every column loaded and clean.
func hydrate(def *schema.Definition, row map[string]any) *Record {
	r := &Record{
		def:       def,
		values:    make(map[string]any, len(row)),
		dirty:     make(map[string]bool),
		loaded:    make(map[string]bool, len(row)),
		relations: make(map[string]any),
	}
	for col, v := range row {
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		r.values[col] = v
		r.loaded[col] = true
	}
	return r
}

// markClean empties the dirty set and marks set values as loaded.
func (r *Record) markClean() {
	for name := range r.dirty {
		r.loaded[name] = true
	}
	r.dirty = make(map[string]bool)
}
