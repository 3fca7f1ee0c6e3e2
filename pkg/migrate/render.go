package migrate

import (
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/schema"
)

// Render produces the desired schema for every registered entity: enum types,
// CREATE TABLE statements in registration order, then foreign key constraints
// and indexes. Public entities render with a public. table prefix; tenant
// tables stay unqualified so they resolve against the active namespace.
func Render(registry *schema.Registry) string {
	var tables, constraints, indexes []string
	enums := renderEnums(registry)

	for _, def := range registry.All() {
		table := def.QualifiedTable()
		tables = append(tables, renderCreateTable(def, table))
		constraints = append(constraints, renderConstraints(registry, def, table)...)
		indexes = append(indexes, renderIndexes(def, table)...)
	}

	var b strings.Builder
	for _, stmt := range enums {
		b.WriteString(stmt)
		b.WriteString("\n")
	}
	for _, stmt := range tables {
		b.WriteString(stmt)
		b.WriteString("\n")
	}
	for _, stmt := range constraints {
		b.WriteString(stmt)
		b.WriteString("\n")
	}
	for _, stmt := range indexes {
		b.WriteString(stmt)
		b.WriteString("\n")
	}
	return b.String()
}

func renderEnums(registry *schema.Registry) []string {
	seen := make(map[string]bool)
	var stmts []string
	for _, def := range registry.All() {
		for _, f := range def.Fields {
			if f.Type != schema.Enum || seen[f.EnumName] {
				continue
			}
			seen[f.EnumName] = true
			quoted := make([]string, len(f.EnumValues))
			for i, v := range f.EnumValues {
				quoted[i] = "'" + v + "'"
			}
			stmts = append(stmts, fmt.Sprintf("CREATE TYPE %s AS ENUM (%s);",
				f.EnumName, strings.Join(quoted, ", ")))
		}
	}
	return stmts
}

func renderCreateTable(def *schema.Definition, table string) string {
	var lines []string
	for _, f := range def.Fields {
		lines = append(lines, "    "+f.Name+" "+columnDefinition(f))
	}
	for _, rel := range def.Relationships {
		if col := rel.ColumnName(); col != "" {
			lines = append(lines, fmt.Sprintf("    %s VARCHAR(30)", col))
		}
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n);", table, strings.Join(lines, ",\n"))
}

// columnDefinition maps one field descriptor to its SQL column definition.
func columnDefinition(f *schema.Field) string {
	if f.AutoIncrement {
		if f.PrimaryKey {
			return "SERIAL PRIMARY KEY"
		}
		return "SERIAL"
	}

	var b strings.Builder
	b.WriteString(sqlType(f))
	if f.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
		return b.String()
	}
	if !f.Nullable {
		b.WriteString(" NOT NULL")
	}
	if f.Unique {
		b.WriteString(" UNIQUE")
	}
	if lit := defaultLiteral(f); lit != "" {
		b.WriteString(" DEFAULT " + lit)
	}
	return b.String()
}

func sqlType(f *schema.Field) string {
	switch f.Type {
	case schema.String:
		if f.Length > 0 {
			return fmt.Sprintf("VARCHAR(%d)", f.Length)
		}
		return "VARCHAR(255)"
	case schema.Integer:
		return "INTEGER"
	case schema.Float:
		return "FLOAT"
	case schema.Boolean:
		return "BOOLEAN"
	case schema.Timestamp:
		return "TIMESTAMP"
	case schema.Enum:
		return f.EnumName
	default:
		return "VARCHAR(255)"
	}
}

// defaultLiteral renders a static default as SQL. Factory defaults are
// applied in the application, never in the schema.
func defaultLiteral(f *schema.Field) string {
	if f.Default == nil || f.DefaultFunc != nil {
		return ""
	}
	switch v := f.Default.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		return fmt.Sprintf("%g", v)
	case time.Time:
		return "'" + v.UTC().Format("2006-01-02 15:04:05") + "'"
	default:
		return ""
	}
}

func renderConstraints(registry *schema.Registry, def *schema.Definition, table string) []string {
	var stmts []string
	for _, rel := range def.Relationships {
		col := rel.ColumnName()
		if col == "" {
			continue
		}
		target, ok := registry.Lookup(rel.Target)
		if !ok {
			continue
		}
		cascade := ""
		if rel.Kind == schema.OwnsOne {
			cascade = " ON DELETE CASCADE"
		}
		stmts = append(stmts, fmt.Sprintf(
			"ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (id)%s;",
			table, rel.ConstraintName(def.Table), col, target.QualifiedTable(), cascade))
	}
	return stmts
}

func renderIndexes(def *schema.Definition, table string) []string {
	var stmts []string
	for _, f := range def.Fields {
		if !f.Index {
			continue
		}
		unique := ""
		if f.Unique {
			unique = "UNIQUE "
		}
		stmts = append(stmts, fmt.Sprintf("CREATE %sINDEX idx_%s_%s ON %s (%s);",
			unique, def.Table, f.Name, table, f.Name))
	}
	return stmts
}
