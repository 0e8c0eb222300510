package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"aicoo/internal/db"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// Migration is one embedded schema step, named NNNN_description.sql.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
}

// Status compares the database with the embedded migrations.
type Status struct {
	Current int
	Latest  int
	Pending []Migration
}

// UpToDate reports whether every embedded migration has been applied.
func (s Status) UpToDate() bool { return len(s.Pending) == 0 }

// ErrSchemaAhead means the database was migrated by a newer binary.
var ErrSchemaAhead = errors.New("database schema is newer than this binary")

func loadMigrations() ([]Migration, error) {
	files, err := fs.ReadDir(migrationsFS, "sql")
	if err != nil {
		return nil, err
	}
	var migrations []Migration
	seen := map[int]string{}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".sql") {
			continue
		}
		var v int
		if _, err := fmt.Sscanf(f.Name(), "%d_", &v); err != nil {
			return nil, fmt.Errorf("invalid migration filename %s: %w", f.Name(), err)
		}
		if prev, dup := seen[v]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", prev, f.Name(), v)
		}
		seen[v] = f.Name()
		data, err := migrationsFS.ReadFile("sql/" + f.Name())
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, Migration{Version: v, Name: f.Name(), UpSQL: string(data)})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

const ledgerDDL = `CREATE TABLE IF NOT EXISTS schema_version(
  version INTEGER NOT NULL PRIMARY KEY,
  name TEXT NOT NULL,
  applied_at TEXT NOT NULL
)`

func currentVersion(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}) (int, error) {
	var v sql.NullInt64
	if err := q.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&v); err != nil {
		return 0, err
	}
	return int(v.Int64), nil
}

// Inspect reports the applied version and the migrations still to run.
// A database that was never migrated reports version 0.
func Inspect(ctx context.Context, conn *sql.DB) (Status, error) {
	migrations, err := loadMigrations()
	if err != nil {
		return Status{}, err
	}
	if _, err := conn.ExecContext(ctx, ledgerDDL); err != nil {
		return Status{}, fmt.Errorf("create schema_version: %w", err)
	}
	cur, err := currentVersion(ctx, conn)
	if err != nil {
		return Status{}, fmt.Errorf("read schema_version: %w", err)
	}
	return status(cur, migrations), nil
}

func status(cur int, migrations []Migration) Status {
	st := Status{Current: cur}
	for _, m := range migrations {
		st.Latest = m.Version
		if m.Version > cur {
			st.Pending = append(st.Pending, m)
		}
	}
	return st
}

// Apply runs pending migrations in one transaction and returns the ones it ran.
func Apply(ctx context.Context, conn *sql.DB, dialect db.Dialect) ([]Migration, error) {
	migrations, err := loadMigrations()
	if err != nil {
		return nil, err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, ledgerDDL); err != nil {
		return nil, fmt.Errorf("create schema_version: %w", err)
	}
	cur, err := currentVersion(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("read schema_version: %w", err)
	}
	st := status(cur, migrations)
	if st.Current > st.Latest {
		return nil, fmt.Errorf("%w: at %d, binary knows %d", ErrSchemaAhead, st.Current, st.Latest)
	}
	for _, m := range st.Pending {
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			return nil, fmt.Errorf("migration %s: %w", m.Name, err)
		}
		if _, err := tx.ExecContext(ctx, db.Rebind(dialect, `INSERT INTO schema_version(version,name,applied_at) VALUES (?,?,?)`),
			m.Version, m.Name, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return nil, fmt.Errorf("record %s: %w", m.Name, err)
		}
		slog.InfoContext(ctx, "migration applied", "version", m.Version, "name", m.Name)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return st.Pending, nil
}

// Migrate applies embedded migrations in order. The schema is portable across
// the sqlite and postgres dialects.
func Migrate(conn *sql.DB, dialect db.Dialect) error {
	_, err := Apply(context.Background(), conn, dialect)
	return err
}

// Version returns the applied schema version.
func Version(conn *sql.DB) (int, error) {
	st, err := Inspect(context.Background(), conn)
	return st.Current, err
}
