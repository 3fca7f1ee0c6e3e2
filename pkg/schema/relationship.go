package schema

// RelKind is the variant of a relationship descriptor.
type RelKind int

const (
	// HasOne stores a foreign key column named "<field>_id" on this record.
	HasOne RelKind = iota
	// HasMany is the reverse of a HasOne on the target; nothing is stored.
	HasMany
	// OwnsOne is a HasOne with delete cascade intent.
	OwnsOne
)

func (k RelKind) String() string {
	switch k {
	case HasOne:
		return "has-one"
	case HasMany:
		return "has-many"
	case OwnsOne:
		return "owns-one"
	default:
		return "unknown"
	}
}

// Relationship describes a link to another entity by name.
type Relationship struct {
	Name   string
	Kind   RelKind
	Target string

	// OrderBy and Limit apply to HasMany materialisation.
	OrderBy string
	Limit   int
}

// ColumnName returns the local foreign key column, or "" when this side
// stores nothing.
func (r *Relationship) ColumnName() string {
	if r.Kind == HasMany {
		return ""
	}
	return r.Name + "_id"
}

// ConstraintName returns the foreign key constraint name for the owning table.
func (r *Relationship) ConstraintName(table string) string {
	if r.Kind == HasMany {
		return ""
	}
	return "fk_" + table + "_" + r.ColumnName()
}
