package migrate

import (
	"fmt"
	"strings"
)

// Plan holds the ordered operation groups of one migration. Pre-ops drop
// constraints and indexes that refer to columns the main group will change;
// post-ops add the new constraints and indexes afterwards.
type Plan struct {
	PreOps  []string
	Ops     []string
	PostOps []string
}

// Empty reports whether the plan contains no operations.
func (p *Plan) Empty() bool {
	return len(p.PreOps) == 0 && len(p.Ops) == 0 && len(p.PostOps) == 0
}

// Statements returns pre-ops, ops, and post-ops as one ordered list.
func (p *Plan) Statements() []string {
	out := make([]string, 0, len(p.PreOps)+len(p.Ops)+len(p.PostOps))
	out = append(out, p.PreOps...)
	out = append(out, p.Ops...)
	out = append(out, p.PostOps...)
	return out
}

// Diff computes the operations that transform the old schema into the new
// one.
func Diff(old, new *Schema) *Plan {
	plan := &Plan{}

	// Enum types only ever appear; altering enum membership in place is out
	// of scope for the differ.
	oldEnums := statementSet(old.Enums)
	for _, stmt := range new.Enums {
		if !oldEnums[stmt] {
			plan.Ops = append(plan.Ops, stmt)
		}
	}

	for _, name := range old.Order {
		if _, kept := new.Tables[name]; !kept {
			plan.Ops = append(plan.Ops, fmt.Sprintf("DROP TABLE IF EXISTS %s;", name))
		}
	}

	for _, name := range new.Order {
		after := new.Tables[name]
		before, existed := old.Tables[name]
		if !existed {
			plan.Ops = append(plan.Ops, after.Raw)
			continue
		}
		plan.Ops = append(plan.Ops, diffColumns(name, before, after)...)
	}

	// Constraints and indexes: drops first so the main group can remove the
	// columns they referenced, adds after so new columns exist.
	oldConstraints := statementSet(old.Constraints)
	newConstraints := statementSet(new.Constraints)
	for _, stmt := range old.Constraints {
		if !newConstraints[stmt] {
			plan.PreOps = append(plan.PreOps, dropConstraint(stmt))
		}
	}
	for _, stmt := range new.Constraints {
		if !oldConstraints[stmt] {
			plan.PostOps = append(plan.PostOps, stmt)
		}
	}

	oldIndexes := statementSet(old.Indexes)
	newIndexes := statementSet(new.Indexes)
	for _, stmt := range old.Indexes {
		if !newIndexes[stmt] {
			plan.PreOps = append(plan.PreOps, dropIndex(stmt))
		}
	}
	for _, stmt := range new.Indexes {
		if !oldIndexes[stmt] {
			plan.PostOps = append(plan.PostOps, stmt)
		}
	}

	return plan
}

func diffColumns(table string, before, after *Table) []string {
	var ops []string

	for _, col := range after.Columns {
		oldDef := before.Column(col.Name)
		switch {
		case oldDef == "":
			ops = append(ops, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s;",
				table, col.Name, col.Definition))
		case oldDef != col.Definition:
			ops = append(ops, alterColumn(table, col.Name, oldDef, col.Definition)...)
		}
	}

	for _, col := range before.Columns {
		if after.Column(col.Name) == "" {
			ops = append(ops, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", table, col.Name))
		}
	}
	return ops
}

// alterColumn emits type and nullability changes for a retained column.
func alterColumn(table, column, oldDef, newDef string) []string {
	var ops []string

	if oldType, newType := baseType(oldDef), baseType(newDef); oldType != newType {
		ops = append(ops, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s;",
			table, column, newType))
	}

	oldNotNull := strings.Contains(oldDef, "NOT NULL")
	newNotNull := strings.Contains(newDef, "NOT NULL")
	if oldNotNull != newNotNull {
		if newNotNull {
			ops = append(ops, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL;",
				table, column))
		} else {
			ops = append(ops, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL;",
				table, column))
		}
	}
	return ops
}

// baseType extracts the type portion of a column definition, dropping
// trailing modifiers.
func baseType(def string) string {
	for _, marker := range []string{" PRIMARY KEY", " NOT NULL", " UNIQUE", " DEFAULT"} {
		if idx := strings.Index(def, marker); idx >= 0 {
			def = def[:idx]
		}
	}
	return strings.TrimSpace(def)
}

func dropConstraint(addStmt string) string {
	// ALTER TABLE <t> ADD CONSTRAINT <name> ...
	fields := strings.Fields(addStmt)
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s;", fields[2], fields[5])
}

func dropIndex(createStmt string) string {
	// CREATE [UNIQUE] INDEX <name> ON ...
	fields := strings.Fields(createStmt)
	name := fields[2]
	if strings.EqualFold(fields[1], "UNIQUE") {
		name = fields[3]
	}
	return fmt.Sprintf("DROP INDEX IF EXISTS %s;", name)
}

func statementSet(stmts []string) map[string]bool {
	set := make(map[string]bool, len(stmts))
	for _, s := range stmts {
		set[s] = true
	}
	return set
}
