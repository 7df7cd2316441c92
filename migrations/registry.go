package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	credentials "github.com/goliatone/go-credentials"
	persistence "github.com/goliatone/go-persistence-bun"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	rootPath = "data/sql/migrations"
)

// Source is the migration tree for one SQL dialect. Postgres files live at the
// root of the tree, sqlite files in its sqlite/ subdirectory.
type Source struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// RegisterFunc hands a dialect's migrations to a migrator.
type RegisterFunc func(ctx context.Context, source Source) error

// Sources resolves the linked_accounts migrations for both dialects. The
// embedded tree is used unless root is given.
func Sources(root ...fs.FS) ([]Source, error) {
	tree := credentials.GetMigrationsFS()
	if len(root) > 0 && root[0] != nil {
		tree = root[0]
	}
	base, err := fs.Sub(tree, rootPath)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", rootPath, err)
	}
	sqliteFS, err := fs.Sub(base, DialectSQLite)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite tree: %w", err)
	}

	sources := []Source{
		{Dialect: DialectPostgres, Path: rootPath, FS: base},
		{Dialect: DialectSQLite, Path: rootPath + "/" + DialectSQLite, FS: sqliteFS},
	}
	for _, source := range sources {
		ups, err := fs.Glob(source.FS, "*.up.sql")
		if err != nil {
			return nil, fmt.Errorf("migrations: list %s: %w", source.Path, err)
		}
		if len(ups) == 0 {
			return nil, fmt.Errorf("migrations: %s has no *.up.sql files", source.Path)
		}
	}
	return sources, nil
}

// SourceFor returns the embedded migrations of a single dialect.
func SourceFor(dialect string) (Source, error) {
	dialect = normalizeDialect(dialect)
	sources, err := Sources()
	if err != nil {
		return Source{}, err
	}
	for _, source := range sources {
		if source.Dialect == dialect {
			return source, nil
		}
	}
	return Source{}, fmt.Errorf("migrations: unsupported dialect %q", dialect)
}

// Register calls fn once per requested dialect, or for every dialect when
// none is given.
func Register(ctx context.Context, fn RegisterFunc, dialects ...string) error {
	if fn == nil {
		return fmt.Errorf("migrations: register function is required")
	}
	sources, err := Sources()
	if err != nil {
		return err
	}
	wanted := map[string]bool{}
	for _, dialect := range dialects {
		if dialect = normalizeDialect(dialect); dialect != "" {
			wanted[dialect] = true
		}
	}
	for dialect := range wanted {
		if dialect != DialectPostgres && dialect != DialectSQLite {
			return fmt.Errorf("migrations: unsupported dialect %q", dialect)
		}
	}
	for _, source := range sources {
		if len(wanted) > 0 && !wanted[source.Dialect] {
			continue
		}
		if err := fn(ctx, source); err != nil {
			return fmt.Errorf("migrations: register %s: %w", source.Dialect, err)
		}
	}
	return nil
}

// Apply registers the linked_accounts migrations for dialect on client and
// runs them.
func Apply(ctx context.Context, client *persistence.Client, dialect string) error {
	if client == nil {
		return fmt.Errorf("migrations: persistence client is required")
	}
	source, err := SourceFor(dialect)
	if err != nil {
		return err
	}
	client.RegisterSQLMigrations(source.FS)
	if err := client.Migrate(ctx); err != nil {
		return fmt.Errorf("migrations: apply %s: %w", source.Dialect, err)
	}
	return nil
}

// DialectForDriver maps a database/sql driver name to a migration dialect.
func DialectForDriver(driver string) (string, error) {
	switch normalizeDialect(driver) {
	case "postgres", "pgx", "postgresql":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("migrations: unsupported driver %q", driver)
	}
}

func normalizeDialect(value string) string {
	return strings.TrimSpace(strings.ToLower(value))
}
