package db

import (
	"os"
	"testing"
)

func TestRebind(t *testing.T) {
	q := `SELECT id FROM tasks WHERE owner_email=? AND status=? AND title != '?'`
	if got := Rebind(SQLite, q); got != q {
		t.Fatalf("sqlite query rewritten: %s", got)
	}
	want := `SELECT id FROM tasks WHERE owner_email=$1 AND status=$2 AND title != '?'`
	if got := Rebind(Postgres, q); got != want {
		t.Fatalf("rebind = %s, want %s", got, want)
	}
}

func TestOpenSQLiteCreatesWorkspace(t *testing.T) {
	dir := t.TempDir()
	conn, err := Open(Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	if err := conn.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, err := os.Stat(Path(dir)); err != nil {
		t.Fatalf("db file missing: %v", err)
	}
}

func TestOpenPostgresRequiresDSN(t *testing.T) {
	if _, err := Open(Config{Driver: "postgres"}); err == nil {
		t.Fatalf("expected error without dsn")
	}
}
