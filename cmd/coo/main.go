package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"aicoo/internal/app"
	"aicoo/internal/config"
	"aicoo/internal/db"
	"aicoo/internal/engine"
	"aicoo/internal/logging"
	"aicoo/internal/migrate"
	"aicoo/internal/server"
	"aicoo/internal/telemetry"
)

var rootCmd = &cobra.Command{
	Use:   "coo",
	Short: "AI-COO CLI",
	Long: `AI-COO keeps an operating picture of a company's work.
- Tasks: units of work owned by an email; running a task asks the configured LLM for a plan and falls back to a local template when the provider is unavailable.
- Prerequisites: a task may depend on one other task; next steps are derived from it and refreshed when it changes.
- Sprints: time boxes with issues; risk, alerts and coaching insights are recomputed from the issues on every read.
- Intelligence: portfolio analysis, project breakdowns, compliance reminders and department advisors.
Identity: commands act as the --as email (COO_AS); the API accepts bearer tokens, API keys or an identity cookie.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load(filepath.Join(viper.GetString("workspace"), ".env"))
		if _, err := logging.Setup(logging.Options{Level: viper.GetString("log-level"), Format: "text", Writer: os.Stderr}); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("COO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/coo.yml)")
	rootCmd.PersistentFlags().String("as", "owner@localhost", "email the command acts as")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level for CLI commands")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("as", rootCmd.PersistentFlags().Lookup("as"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(companyCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(sprintCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(analysisCmd())
	rootCmd.AddCommand(breakdownCmd())
	rootCmd.AddCommand(complianceCmd())
	rootCmd.AddCommand(advisorCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default coo.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func migrateCmd() *cobra.Command {
	var statusOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			var (
				applied []migrate.Migration
				st      migrate.Status
			)
			if statusOnly {
				st, err = app.SchemaStatus(cmd.Context(), cfg)
			} else {
				applied, st, err = app.Migrate(cmd.Context(), cfg)
			}
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				names := make([]string, 0, len(st.Pending))
				for _, m := range st.Pending {
					names = append(names, m.Name)
				}
				return printJSON(map[string]any{"current": st.Current, "latest": st.Latest, "pending": names, "applied": len(applied)})
			}
			for _, m := range applied {
				fmt.Printf("Applied %s\n", m.Name)
			}
			for _, m := range st.Pending {
				fmt.Printf("Pending %s\n", m.Name)
			}
			fmt.Printf("Database at schema version %d of %d (%s)\n", st.Current, st.Latest, cfg.Database.Driver)
			return nil
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "report pending migrations without applying them")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "apikey", Short: "Manage API keys for the --as email"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the key is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				plain, k, err := e.CreateAPIKey(ctx, actor(), name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": k.ID, "name": k.Name, "owner_email": k.OwnerEmail, "key": plain})
				}
				fmt.Printf("API key %s for %s:\n%s\n", k.ID, k.OwnerEmail, plain)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key label")
	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListAPIKeys(ctx, actor())
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, k := range items {
					rows = append(rows, table.Row{k.ID, k.Name, k.CreatedAt})
				}
				return printJSONOrTable(items, table.Row{"ID", "Name", "Created"}, rows)
			})
		},
	}
	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteAPIKey(ctx, actor(), args[0]); err != nil {
					return err
				}
				fmt.Printf("Revoked %s\n", args[0])
				return nil
			})
		},
	}
	keys.AddCommand(create, list, revoke)
	return keys
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for the --as email",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret (or COO_JWT_SECRET) is required to sign tokens")
			}
			token, err := server.SignToken(cfg.Auth.JWTSecret, actor(), ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if basePath != "" {
				cfg.Server.BasePath = basePath
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			tel, err := telemetry.Setup(ctx, cfg.Telemetry)
			if err != nil {
				return err
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tel.Shutdown(flushCtx); err != nil {
					slog.Error("telemetry shutdown", "error", err)
				}
			}()
			logger, err := logging.Setup(logging.Options{
				Level:       cfg.Log.Level,
				Format:      cfg.Log.Format,
				ServiceName: cfg.Telemetry.ServiceName,
				OTLP:        cfg.Telemetry.TracingEnabled(),
				Writer:      os.Stderr,
			})
			if err != nil {
				return err
			}

			rt, err := app.Open(ctx, cfg)
			if err != nil {
				return err
			}
			// runs after Shutdown returns so in-flight async task runs finish
			defer func() {
				if err := rt.Close(); err != nil {
					logger.Error("close runtime", "error", err)
				}
			}()
			e := rt.Engine

			var metrics http.Handler
			if cfg.Telemetry.Metrics {
				metrics, err = telemetry.InitMeterProvider(ctx, cfg.Telemetry.ServiceName)
				if err != nil {
					return err
				}
				if err := telemetry.InitMetricsWithTaskCount(ctx, e.Repo.CountTasksByStatus); err != nil {
					return err
				}
			}
			if cfg.Auth.JWTSecret == "" {
				logger.Warn("auth.jwt_secret is empty; bearer tokens are rejected")
			}
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: cfg.Server.BasePath,
				Auth: server.AuthConfig{
					JWTSecret:   cfg.Auth.JWTSecret,
					CookieName:  cfg.Auth.CookieName,
					AllowCookie: cfg.Auth.AllowCookie,
				},
				Metrics: metrics,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			drained := make(chan struct{})
			go func() {
				defer close(drained)
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			logger.Info("serving", "addr", cfg.Server.Addr, "base_path", cfg.Server.BasePath, "driver", cfg.Database.Driver)
			fmt.Printf("Serving AI-COO API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", cfg.Server.Addr, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			<-drained
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides server.base_path)")
	return cmd
}

// --- helpers ---

func actor() string {
	return strings.ToLower(strings.TrimSpace(viper.GetString("as")))
}

func loadConfig() (*config.Config, error) {
	return app.LoadConfig(viper.GetString("workspace"), viper.GetString("config"))
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt.Engine)
}

func printJSONOrTable(v any, header table.Row, rows []table.Row) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func parseDate(flag, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, fmt.Errorf("--%s must be YYYY-MM-DD: %w", flag, err)
	}
	return &t, nil
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
