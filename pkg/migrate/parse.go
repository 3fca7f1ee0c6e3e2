package migrate

import (
	"strings"
)

// Column is one parsed column definition.
type Column struct {
	Name       string
	Definition string
}

// Table is one parsed CREATE TABLE statement with its columns in declaration
// order.
type Table struct {
	Name    string
	Columns []Column
	Raw     string
}

// Column returns the definition for name, or "" when absent.
func (t *Table) Column(name string) string {
	for _, c := range t.Columns {
		if c.Name == name {
			return c.Definition
		}
	}
	return ""
}

// Schema is the parsed form of a schema or migration file: tables keyed by
// name plus the constraint, index, and enum statements that accompany them.
type Schema struct {
	Order       []string
	Tables      map[string]*Table
	Constraints []string
	Indexes     []string
	Enums       []string
}

// Parse splits SQL text into statements and classifies each one. It
// understands exactly the SQL this package emits; it is not a general
// parser.
func Parse(text string) *Schema {
	s := &Schema{Tables: make(map[string]*Table)}
	for _, stmt := range SplitStatements(text) {
		upper := strings.ToUpper(stmt)
		switch {
		case strings.HasPrefix(upper, "CREATE TABLE"):
			table := parseCreateTable(stmt)
			s.Order = append(s.Order, table.Name)
			s.Tables[table.Name] = table
		case strings.HasPrefix(upper, "CREATE TYPE"):
			s.Enums = append(s.Enums, stmt)
		case strings.HasPrefix(upper, "CREATE INDEX"), strings.HasPrefix(upper, "CREATE UNIQUE INDEX"):
			s.Indexes = append(s.Indexes, stmt)
		case strings.HasPrefix(upper, "ALTER TABLE") && strings.Contains(upper, "ADD CONSTRAINT"):
			s.Constraints = append(s.Constraints, stmt)
		}
	}
	return s
}

// SplitStatements breaks SQL text into trimmed statements, each ending with a
// semicolon. Single-quoted strings are respected so literal semicolons do not
// split.
func SplitStatements(text string) []string {
	var stmts []string
	var b strings.Builder
	inString := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		b.WriteByte(ch)
		switch ch {
		case '\'':
			inString = !inString
		case ';':
			if !inString {
				stmt := strings.TrimSpace(b.String())
				if stmt != ";" && stmt != "" {
					stmts = append(stmts, stmt)
				}
				b.Reset()
			}
		}
	}
	if tail := strings.TrimSpace(b.String()); tail != "" {
		stmts = append(stmts, tail+";")
	}
	return stmts
}

func parseCreateTable(stmt string) *Table {
	open := strings.IndexByte(stmt, '(')
	close := strings.LastIndexByte(stmt, ')')
	header := strings.Fields(stmt[:open])
	name := header[len(header)-1]

	table := &Table{Name: name, Raw: stmt}
	body := stmt[open+1 : close]
	for _, line := range splitColumns(body) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		col := Column{Name: fields[0]}
		if len(fields) > 1 {
			col.Definition = strings.TrimSpace(fields[1])
		}
		table.Columns = append(table.Columns, col)
	}
	return table
}

// splitColumns splits a CREATE TABLE body on commas outside parentheses, so
// VARCHAR(30) and enum value lists stay intact.
func splitColumns(body string) []string {
	var parts []string
	depth := 0
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		ch := body[i]
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, b.String())
				b.Reset()
				continue
			}
		}
		b.WriteByte(ch)
	}
	if b.Len() > 0 {
		parts = append(parts, b.String())
	}
	return parts
}
