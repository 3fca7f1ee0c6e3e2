package schema

import "fmt"

// FieldType is the logical type of a field. The SQL mapping lives in
// pkg/migrate.
type FieldType int

const (
	String FieldType = iota
	Integer
	Float
	Boolean
	Timestamp
	Enum
)

func (t FieldType) String() string {
	switch t {
	case String:
		return "string"
	case Integer:
		return "integer"
	case Float:
		return "float"
	case Boolean:
		return "boolean"
	case Timestamp:
		return "timestamp"
	case Enum:
		return "enum"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// Field describes one column of an entity.
type Field struct {
	Name          string
	Type          FieldType
	Length        int
	PrimaryKey    bool
	AutoIncrement bool
	Unique        bool
	Nullable      bool
	Index         bool
	Private       bool

	// Default is a literal default; DefaultFunc a zero-argument producer.
	// DefaultFunc wins when both are set.
	Default     any
	DefaultFunc func() any

	// Validate rejects values on Set. Nil means no validation.
	Validate func(any) error

	// EnumName and EnumValues describe the user-defined type for Enum fields.
	EnumName   string
	EnumValues []string
}

// DefaultValue resolves the descriptor default for an unset field.
func (f *Field) DefaultValue() any {
	if f.DefaultFunc != nil {
		return f.DefaultFunc()
	}
	return f.Default
}

// HasDefault reports whether the descriptor carries any default.
func (f *Field) HasDefault() bool {
	return f.DefaultFunc != nil || f.Default != nil
}
