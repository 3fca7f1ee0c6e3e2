package migrate

import (
	"crypto/md5"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/schema"
)

// Extension marks migration files on disk.
const Extension = ".migration"

var slugPattern = regexp.MustCompile(`[^a-z0-9_]+`)

// Generator emits migration files by diffing the registry's desired schema
// against the cumulative schema recorded from previous runs.
type Generator struct {
	Registry      *schema.Registry
	MigrationsDir string
	SchemaFile    string

	// now is swappable for tests.
	now func() time.Time
}

// NewGenerator wires a generator for the given registry and paths.
func NewGenerator(registry *schema.Registry, migrationsDir, schemaFile string) *Generator {
	return &Generator{
		Registry:      registry,
		MigrationsDir: migrationsDir,
		SchemaFile:    schemaFile,
		now:           time.Now,
	}
}

// Generate diffs the current desired schema against the cumulative schema and
// writes a migration file named
// <UTC timestamp>_<8-char name hash>_<name>.migration. It returns the file
// name, or "" when nothing changed. A second migration with the same name
// hash is refused.
func (g *Generator) Generate(name string) (string, error) {
	slug := Slugify(name)
	if slug == "" {
		return "", fmt.Errorf("migration name %q reduces to an empty slug", name)
	}
	hash := NameHash(name)

	exists, err := g.hashExists(hash)
	if err != nil {
		return "", err
	}
	if exists {
		return "", fmt.Errorf("migration with hash %s already exists", hash)
	}

	previous, err := g.readCumulativeSchema()
	if err != nil {
		return "", err
	}
	desired := Render(g.Registry)

	plan := Diff(Parse(previous), Parse(desired))
	if plan.Empty() {
		log.WithComponent("migrate").Info().Msg("No schema changes detected")
		return "", nil
	}

	if err := os.MkdirAll(g.MigrationsDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create migrations dir: %w", err)
	}

	filename := fmt.Sprintf("%s_%s_%s%s",
		g.now().UTC().Format("2006_01_02_1504"), hash, slug, Extension)
	content := renderPlan(plan)
	if err := os.WriteFile(filepath.Join(g.MigrationsDir, filename), []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write migration %s: %w", filename, err)
	}

	if err := os.WriteFile(g.SchemaFile, []byte(desired), 0o644); err != nil {
		return "", fmt.Errorf("failed to update cumulative schema: %w", err)
	}

	log.WithComponent("migrate").Info().
		Str("file", filename).
		Int("statements", len(plan.Statements())).
		Msg("Generated migration")
	return filename, nil
}

func renderPlan(plan *Plan) string {
	var b strings.Builder
	writeGroup := func(comment string, stmts []string) {
		if len(stmts) == 0 {
			return
		}
		b.WriteString("-- " + comment + "\n")
		for _, stmt := range stmts {
			b.WriteString(stmt)
			b.WriteString("\n")
		}
	}
	writeGroup("pre", plan.PreOps)
	writeGroup("ops", plan.Ops)
	writeGroup("post", plan.PostOps)
	return b.String()
}

func (g *Generator) readCumulativeSchema() (string, error) {
	raw, err := os.ReadFile(g.SchemaFile)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read cumulative schema: %w", err)
	}
	return string(raw), nil
}

func (g *Generator) hashExists(hash string) (bool, error) {
	files, err := ListMigrations(g.MigrationsDir)
	if err != nil {
		return false, err
	}
	for _, f := range files {
		if strings.Contains(f, "_"+hash+"_") {
			return true, nil
		}
	}
	return false, nil
}

// ListMigrations returns migration file names in lexicographic order, which
// is also chronological given the timestamp prefix.
func ListMigrations(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), Extension) {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// NameHash returns the 8-character hash prefix derived from a migration name.
func NameHash(name string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(name)))[:8]
}

// Slugify lowercases a migration name and collapses anything unsafe for a
// file name into underscores.
func Slugify(name string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	return strings.Trim(slug, "_")
}
