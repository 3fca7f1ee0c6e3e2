package schema

import "fmt"

// Definition is the declarative description of one entity: its table, its
// field descriptors in order, and its relationships. Definitions are built
// once at startup and registered; they are immutable afterwards.
type Definition struct {
	Name  string
	Table string

	// Public entities live in the shared public namespace; every tenant sees
	// the same rows.
	Public bool

	Fields        []*Field
	Relationships []*Relationship

	primary *Field
	audit   bool
}

// IsAudit reports whether this definition is the registered audit entity.
// Persisting the audit entity never emits further audit events.
func (d *Definition) IsAudit() bool {
	return d.audit
}

// QualifiedTable returns "public.<table>" for public entities, else the bare
// table name (resolved against the active tenant namespace at execution time).
func (d *Definition) QualifiedTable() string {
	if d.Public {
		return "public." + d.Table
	}
	return d.Table
}

// PrimaryKey returns the single primary key field.
func (d *Definition) PrimaryKey() *Field {
	return d.primary
}

// Field returns the descriptor for name, or nil.
func (d *Definition) Field(name string) *Field {
	for _, f := range d.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Relationship returns the descriptor for name, or nil.
func (d *Definition) Relationship(name string) *Relationship {
	for _, r := range d.Relationships {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// ColumnNames returns field columns followed by relationship foreign key
// columns, in declaration order.
func (d *Definition) ColumnNames() []string {
	cols := make([]string, 0, len(d.Fields)+len(d.Relationships))
	for _, f := range d.Fields {
		cols = append(cols, f.Name)
	}
	for _, r := range d.Relationships {
		if col := r.ColumnName(); col != "" {
			cols = append(cols, col)
		}
	}
	return cols
}

// validate enforces the entity invariants at registration time.
func (d *Definition) validate() error {
	if d.Name == "" || d.Table == "" {
		return fmt.Errorf("entity requires a name and a table")
	}

	seen := make(map[string]bool)
	var primary *Field
	for _, f := range d.Fields {
		if f.Name == "" {
			return fmt.Errorf("entity %s has an unnamed field", d.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("entity %s declares field %s twice", d.Name, f.Name)
		}
		seen[f.Name] = true

		if f.PrimaryKey {
			if primary != nil {
				return fmt.Errorf("entity %s declares multiple primary keys (%s, %s)",
					d.Name, primary.Name, f.Name)
			}
			primary = f
		}
		if f.AutoIncrement && f.Type != Integer {
			return fmt.Errorf("entity %s field %s: auto-increment requires an integer type",
				d.Name, f.Name)
		}
		if f.Type == Enum && len(f.EnumValues) == 0 {
			return fmt.Errorf("entity %s field %s: enum without values", d.Name, f.Name)
		}
	}
	if primary == nil {
		return fmt.Errorf("entity %s has no primary key", d.Name)
	}
	d.primary = primary

	for _, r := range d.Relationships {
		if r.Name == "" || r.Target == "" {
			return fmt.Errorf("entity %s has an incomplete relationship", d.Name)
		}
		if col := r.ColumnName(); col != "" && seen[col] {
			return fmt.Errorf("entity %s: relationship %s collides with field %s",
				d.Name, r.Name, col)
		}
	}
	return nil
}
