package schema

import (
	"time"

	"github.com/cuemby/burrow/pkg/id57"
)

// Mixins are reusable descriptor bundles. Definitions merge them in
// declaration order, so mixin-contributed fields appear before the entity's
// own fields.

func utcNow() any {
	return time.Now().UTC()
}

// IDField is the standard 30-character base-57 timestamped primary key.
func IDField() *Field {
	return &Field{
		Name:        "id",
		Type:        String,
		Length:      id57.Length,
		PrimaryKey:  true,
		DefaultFunc: func() any { return id57.Generate() },
	}
}

// SerialIDField is an auto-increment integer primary key.
func SerialIDField() *Field {
	return &Field{
		Name:          "id",
		Type:          Integer,
		PrimaryKey:    true,
		AutoIncrement: true,
	}
}

// TimestampFields are the audit timestamps carried by most entities.
func TimestampFields() []*Field {
	return []*Field{
		{Name: "created_at", Type: Timestamp, DefaultFunc: utcNow},
		{Name: "updated_at", Type: Timestamp, Nullable: true},
	}
}

// SoftDeleteFields model row-level soft delete via deleted_at.
func SoftDeleteFields() []*Field {
	return []*Field{
		{Name: "deleted_at", Type: Timestamp, Nullable: true},
	}
}

// ActorRelationships link audit timestamps to the users who caused them.
func ActorRelationships() []*Relationship {
	return []*Relationship{
		{Name: "created_by", Kind: HasOne, Target: "Users"},
		{Name: "updated_by", Kind: HasOne, Target: "Users"},
		{Name: "deleted_by", Kind: HasOne, Target: "Users"},
	}
}

// AuditedFields is the common bundle: base-57 id, timestamps, soft delete.
func AuditedFields() []*Field {
	fields := []*Field{IDField()}
	fields = append(fields, TimestampFields()...)
	fields = append(fields, SoftDeleteFields()...)
	return fields
}

// Merge concatenates field bundles in declaration order.
func Merge(bundles ...[]*Field) []*Field {
	var out []*Field
	for _, b := range bundles {
		out = append(out, b...)
	}
	return out
}
