package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"aicoo/internal/config"
	"aicoo/internal/db"
	"aicoo/internal/engine"
	"aicoo/internal/migrate"
	"aicoo/internal/planner"
)

// LoadConfig reads coo.yml from the workspace (or an explicit path), falls
// back to defaults when the file is missing, and fills blanks from the
// environment.
func LoadConfig(workspace, path string) (*config.Config, error) {
	if path == "" {
		path = config.Path(workspace)
	}
	cfg, err := config.LoadOptional(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if cfg.Database.Workspace == "" || cfg.Database.Workspace == "." {
		cfg.Database.Workspace = workspace
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func dialect(cfg *config.Config) db.Dialect {
	return db.Config{Driver: cfg.Database.Driver}.Dialect()
}

// OpenDB connects to the configured database without migrating it.
func OpenDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	conn, err := db.Open(db.Config{Driver: cfg.Database.Driver, Workspace: cfg.Database.Workspace, DSN: cfg.Database.DSN})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return conn, nil
}

// Migrate applies pending migrations and returns the schema status afterwards.
func Migrate(ctx context.Context, cfg *config.Config) ([]migrate.Migration, migrate.Status, error) {
	conn, err := OpenDB(ctx, cfg)
	if err != nil {
		return nil, migrate.Status{}, err
	}
	defer conn.Close()
	applied, err := migrate.Apply(ctx, conn, dialect(cfg))
	if err != nil {
		return nil, migrate.Status{}, err
	}
	st, err := migrate.Inspect(ctx, conn)
	return applied, st, err
}

// SchemaStatus reports pending migrations without applying them.
func SchemaStatus(ctx context.Context, cfg *config.Config) (migrate.Status, error) {
	conn, err := OpenDB(ctx, cfg)
	if err != nil {
		return migrate.Status{}, err
	}
	defer conn.Close()
	return migrate.Inspect(ctx, conn)
}

// Runtime holds an open database and the engine built on top of it.
type Runtime struct {
	Config *config.Config
	DB     *sql.DB
	Engine engine.Engine
}

// Open connects to the configured database, applies pending migrations and
// wires the planning provider into a new engine.
func Open(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	conn, err := OpenDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := migrate.Apply(ctx, conn, dialect(cfg)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	provider, err := planner.NewProvider(cfg.LLM)
	if err != nil {
		conn.Close()
		return nil, err
	}
	slog.Debug("runtime ready", "driver", cfg.Database.Driver, "llm_provider", provider.Name())
	p := planner.New(provider, cfg.LLM.Timeout, cfg.LLM.MaxTokens)
	return &Runtime{Config: cfg, DB: conn, Engine: engine.New(conn, cfg, p)}, nil
}

// Close waits for background task runs and closes the database.
func (r *Runtime) Close() error {
	r.Engine.Wait()
	return r.DB.Close()
}
