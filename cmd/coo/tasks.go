package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"aicoo/internal/domain"
	"aicoo/internal/engine"
	coosdk "aicoo/sdk/go"
)

type taskFlags struct {
	metadata     string
	companyID    string
	squad        string
	prerequisite string
}

func (f *taskFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.metadata, "metadata", "", `metadata JSON, e.g. '{"impact":0.9,"dependencies":["legal"]}'`)
	cmd.Flags().StringVar(&f.companyID, "company", "", "company id")
	cmd.Flags().StringVar(&f.squad, "squad", "", "owning squad")
	cmd.Flags().StringVar(&f.prerequisite, "after", "", "prerequisite task id")
}

func (f *taskFlags) rawMetadata() (map[string]any, error) {
	if f.metadata == "" {
		return nil, nil
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(f.metadata), &raw); err != nil {
		return nil, fmt.Errorf("--metadata must be a JSON object: %w", err)
	}
	return raw, nil
}

func (f *taskFlags) options(title string) (engine.TaskCreateOptions, error) {
	raw, err := f.rawMetadata()
	if err != nil {
		return engine.TaskCreateOptions{}, err
	}
	return engine.TaskCreateOptions{
		Title:              title,
		Metadata:           domain.MetadataFromMap(raw),
		CompanyID:          f.companyID,
		Squad:              f.squad,
		PrerequisiteTaskID: f.prerequisite,
	}, nil
}

func taskCmd() *cobra.Command {
	tk := &cobra.Command{Use: "task", Short: "Manage tasks"}
	tk.AddCommand(taskCreateCmd())
	tk.AddCommand(taskRunCmd())
	tk.AddCommand(taskListCmd())
	tk.AddCommand(taskShowCmd())
	tk.AddCommand(taskUpdateCmd())
	tk.AddCommand(taskLogsCmd())
	tk.AddCommand(taskRecomputeCmd())
	return tk
}

func taskCreateCmd() *cobra.Command {
	var f taskFlags
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a pending task without planning it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.options(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, actor(), opts)
				if err != nil {
					return err
				}
				return printTaskDetail(t)
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func taskRunCmd() *cobra.Command {
	var f taskFlags
	cmd := &cobra.Command{
		Use:   "run <title>",
		Short: "Create a task and plan it with the configured LLM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.options(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.RunTask(ctx, actor(), opts)
				if err != nil {
					return err
				}
				return printTaskDetail(t)
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func taskListCmd() *cobra.Command {
	var opts engine.TaskListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListTasks(ctx, actor(), opts)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, t := range items {
					rows = append(rows, table.Row{t.ID, truncate(t.Title, 40), t.Status, t.Squad, t.PrerequisiteTaskID, t.ExternalProviderStatus})
				}
				return printJSONOrTable(items, table.Row{"ID", "Title", "Status", "Squad", "After", "Provider"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&opts.Squad, "squad", "", "squad filter")
	cmd.Flags().StringVar(&opts.CompanyID, "company", "", "company filter")
	cmd.Flags().IntVar(&opts.Limit, "limit", 100, "max tasks")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task with its dependency context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sum, err := e.SummarizeTask(ctx, actor(), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sum)
				}
				if err := printTaskDetail(sum.Task); err != nil {
					return err
				}
				if sum.DependsOn != nil {
					fmt.Printf("Depends on: %s %q [%s]\n", sum.DependsOn.ID, sum.DependsOn.Title, sum.DependsOn.Status)
				}
				for _, b := range sum.Blocks {
					fmt.Printf("Blocks: %s %q [%s]\n", b.ID, b.Title, b.Status)
				}
				return nil
			})
		},
	}
}

func taskUpdateCmd() *cobra.Command {
	var status, result, providerStatus, metadata, after string
	var clearAfter bool
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Patch task fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := engine.TaskPatch{
				Status:                 optionalString(status),
				ExternalProviderStatus: optionalString(providerStatus),
			}
			if cmd.Flags().Changed("result") {
				patch.ResultText = &result
			}
			if metadata != "" {
				var raw map[string]any
				if err := json.Unmarshal([]byte(metadata), &raw); err != nil {
					return fmt.Errorf("--metadata must be a JSON object: %w", err)
				}
				m := domain.MetadataFromMap(raw)
				patch.Metadata = &m
			}
			switch {
			case clearAfter && after != "":
				return fmt.Errorf("--after and --clear-after are mutually exclusive")
			case clearAfter:
				none := ""
				patch.PrerequisiteTaskID = &none
			case after != "":
				patch.PrerequisiteTaskID = &after
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.PatchTask(ctx, actor(), args[0], patch)
				if err != nil {
					return err
				}
				return printTaskDetail(t)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "pending|in_progress|completed|failed")
	cmd.Flags().StringVar(&result, "result", "", "result text")
	cmd.Flags().StringVar(&providerStatus, "provider-status", "", "ok|fallback_insufficient_quota|fallback_error")
	cmd.Flags().StringVar(&metadata, "metadata", "", "replacement metadata JSON")
	cmd.Flags().StringVar(&after, "after", "", "prerequisite task id")
	cmd.Flags().BoolVar(&clearAfter, "clear-after", false, "remove the prerequisite")
	return cmd
}

func taskLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs <task-id>",
		Short: "Show the task log, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				logs, err := e.TaskLogs(ctx, actor(), args[0])
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(logs))
				for _, l := range logs {
					rows = append(rows, table.Row{l.CreatedAt.Format(time.RFC3339), l.Event, l.OldStatus, l.NewStatus})
				}
				return printJSONOrTable(logs, table.Row{"At", "Event", "From", "To"}, rows)
			})
		},
	}
}

func taskRecomputeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute",
		Short: "Recompute next steps for all tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.RecomputeNextSteps(ctx, actor())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"ok": true, "updated": n})
				}
				fmt.Printf("Updated %d tasks\n", n)
				return nil
			})
		},
	}
}

func printTaskDetail(t domain.Task) error {
	if viper.GetBool("json") {
		return printJSON(t)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendRows([]table.Row{
		{"ID", t.ID},
		{"Title", t.Title},
		{"Status", t.Status},
		{"Squad", t.Squad},
		{"Prerequisite", t.PrerequisiteTaskID},
		{"Provider", t.ExternalProviderStatus},
	})
	tw.Render()
	if t.NextSteps != "" {
		fmt.Println("\nNext steps:\n" + t.NextSteps)
	}
	if t.ResultText != "" {
		fmt.Println("\nResult:\n" + t.ResultText)
	}
	return nil
}

// submitCmd queues a task on a running server instead of the local database.
func submitCmd() *cobra.Command {
	var f taskFlags
	var serverURL, apiKey, token, basePath string
	var wait bool
	var interval, timeout time.Duration
	cmd := &cobra.Command{
		Use:   "submit <title>",
		Short: "Submit a task to a running AI-COO server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := f.rawMetadata()
			if err != nil {
				return err
			}
			c := coosdk.New(serverURL)
			c.BasePath = basePath
			c.APIKey = apiKey
			c.BearerToken = token
			if apiKey == "" && token == "" {
				c.Email = actor()
			}
			ctx := cmd.Context()
			t, err := c.RunTaskAsync(ctx, coosdk.TaskRequest{
				Title:              args[0],
				MetadataJSON:       raw,
				CompanyID:          f.companyID,
				Squad:              f.squad,
				PrerequisiteTaskID: f.prerequisite,
			})
			if err != nil {
				return err
			}
			if !wait {
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Printf("Queued %s (%s)\n", t.ID, t.Status)
				return nil
			}
			waitCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			st, err := c.WaitForTask(waitCtx, t.ID, interval)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(st)
			}
			fmt.Printf("%s %s (%s)\n\n%s\n", st.ID, st.Status, st.ExternalProviderStatus, st.ResultText)
			return nil
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&serverURL, "server", "http://127.0.0.1:8080", "server URL")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("COO_API_KEY"), "API key")
	cmd.Flags().StringVar(&token, "token", os.Getenv("COO_TOKEN"), "bearer token")
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the task completes or fails")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "max time to wait")
	return cmd
}

func analysisCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analysis",
		Short: "Risk, load and execution analysis across your tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Analysis(ctx, actor())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				fmt.Printf("%d tasks analyzed. %s\n", a.TasksAnalyzed, a.ExecutionPlan.Summary)
				rows := make([]table.Row, 0, len(a.Risk))
				for _, r := range a.Risk {
					rows = append(rows, table.Row{r.ID, truncate(r.Title, 40), fmt.Sprintf("%.2f", r.RiskScore), r.RiskLevel, r.Priority, r.Status})
				}
				if err := printJSONOrTable(a.Risk, table.Row{"ID", "Title", "Risk", "Level", "Priority", "Status"}, rows); err != nil {
					return err
				}
				load := make([]table.Row, 0, len(a.LoadBalance))
				for _, l := range a.LoadBalance {
					load = append(load, table.Row{l.Squad, l.Active, l.Completed, l.Suggestion})
				}
				return printJSONOrTable(a.LoadBalance, table.Row{"Squad", "Active", "Completed", "Suggestion"}, load)
			})
		},
	}
}

func breakdownCmd() *cobra.Command {
	var squad string
	cmd := &cobra.Command{
		Use:   "breakdown <project title>",
		Short: "Split a project into standard delivery steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := engine.Engine{}.Breakdown(args[0], squad)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(b)
			}
			fmt.Printf("%s (%s, squad %s)\n", b.NormalizedTitle, b.InputLanguage, b.SuggestedSquad)
			rows := make([]table.Row, 0, len(b.Tasks))
			for i, t := range b.Tasks {
				rows = append(rows, table.Row{i + 1, t.Title, t.Status})
			}
			return printJSONOrTable(b.Tasks, table.Row{"#", "Task", "Status"}, rows)
		},
	}
	cmd.Flags().StringVar(&squad, "squad", "", "squad to suggest")
	return cmd
}

func complianceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compliance [company]",
		Short: "Recurring compliance actions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			company := ""
			if len(args) == 1 {
				company = args[0]
			}
			actions := engine.Engine{}.Compliance(company)
			if viper.GetBool("json") {
				return printJSON(map[string]any{"company": company, "actions": actions})
			}
			printSection("Compliance", actions)
			return nil
		},
	}
}

func advisorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "advisor <department>",
		Short: "Standing recommendation for a department",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			adv := engine.Engine{}.Advisor(args[0])
			if viper.GetBool("json") {
				return printJSON(adv)
			}
			fmt.Printf("%s: %s\n", adv.Department, adv.Recommendation)
			return nil
		},
	}
}
