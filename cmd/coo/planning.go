package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"aicoo/internal/domain"
	"aicoo/internal/engine"
)

func companyCmd() *cobra.Command {
	c := &cobra.Command{Use: "company", Short: "Manage companies"}
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				co, err := e.CreateCompany(ctx, actor(), args[0])
				if err != nil {
					return err
				}
				return printCompanies([]domain.Company{co})
			})
		},
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List companies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListCompanies(ctx, actor())
				if err != nil {
					return err
				}
				return printCompanies(items)
			})
		},
	}
	c.AddCommand(create, list)
	return c
}

func printCompanies(items []domain.Company) error {
	rows := make([]table.Row, 0, len(items))
	for _, c := range items {
		rows = append(rows, table.Row{c.ID, c.Name, c.CreatedAt.Format("2006-01-02")})
	}
	return printJSONOrTable(items, table.Row{"ID", "Name", "Created"}, rows)
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	var companyID, jiraKey string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create project under a company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if companyID == "" {
				return fmt.Errorf("--company required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, actor(), companyID, args[0], jiraKey)
				if err != nil {
					return err
				}
				return printProjects([]domain.Project{p})
			})
		},
	}
	create.Flags().StringVar(&companyID, "company", "", "company id")
	create.Flags().StringVar(&jiraKey, "jira-key", "", "issue key prefix, e.g. PAY")

	var listCompany string
	list := &cobra.Command{
		Use:   "list",
		Short: "List projects of a company",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listCompany == "" {
				return fmt.Errorf("--company required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListProjects(ctx, actor(), listCompany)
				if err != nil {
					return err
				}
				return printProjects(items)
			})
		},
	}
	list.Flags().StringVar(&listCompany, "company", "", "company id")
	prj.AddCommand(create, list)
	return prj
}

func printProjects(items []domain.Project) error {
	rows := make([]table.Row, 0, len(items))
	for _, p := range items {
		rows = append(rows, table.Row{p.ID, p.Name, p.JiraKey, p.CompanyID})
	}
	return printJSONOrTable(items, table.Row{"ID", "Name", "Jira Key", "Company"}, rows)
}

func sprintCmd() *cobra.Command {
	sp := &cobra.Command{Use: "sprint", Short: "Manage sprints and their issues"}
	sp.AddCommand(sprintCreateCmd())
	sp.AddCommand(sprintListCmd())
	sp.AddCommand(sprintShowCmd())
	sp.AddCommand(sprintRiskCmd())
	sp.AddCommand(sprintAlertsCmd())
	sp.AddCommand(sprintInsightsCmd())
	sp.AddCommand(sprintIssueCmd())
	sp.AddCommand(sprintCollaborateCmd())
	return sp
}

func sprintCreateCmd() *cobra.Command {
	var projectID, owner, start, end, baseline string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create sprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" {
				return fmt.Errorf("--project required")
			}
			opts := engine.SprintCreateOptions{ProjectID: projectID, Name: args[0], OwnerEmail: owner}
			var err error
			if opts.StartDate, err = parseDate("start", start); err != nil {
				return err
			}
			if opts.EndDate, err = parseDate("end", end); err != nil {
				return err
			}
			if opts.BaselineDate, err = parseDate("baseline", baseline); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.CreateSprint(ctx, actor(), opts)
				if err != nil {
					return err
				}
				return printSprints([]domain.Sprint{s})
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&owner, "owner", "", "sprint owner email")
	cmd.Flags().StringVar(&start, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "end date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&baseline, "baseline", "", "baseline date (YYYY-MM-DD)")
	return cmd
}

func sprintListCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sprints of a project with fresh risk",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" {
				return fmt.Errorf("--project required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListSprints(ctx, actor(), projectID)
				if err != nil {
					return err
				}
				return printSprints(items)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	return cmd
}

func printSprints(items []domain.Sprint) error {
	rows := make([]table.Row, 0, len(items))
	for _, s := range items {
		rows = append(rows, table.Row{
			s.ID, s.Name,
			s.StartDate.Format("2006-01-02"), s.EndDate.Format("2006-01-02"),
			fmt.Sprintf("%.2f", s.RiskScore), strings.ToUpper(string(s.RiskLevel)),
		})
	}
	return printJSONOrTable(items, table.Row{"ID", "Name", "Start", "End", "Risk", "Level"}, rows)
}

func sprintShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <sprint-id>",
		Short: "Show sprint with issues",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.GetSprint(ctx, actor(), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Printf("%s (%s → %s) risk %.2f %s\n", s.Name, s.StartDate.Format("2006-01-02"), s.EndDate.Format("2006-01-02"), s.RiskScore, strings.ToUpper(string(s.RiskLevel)))
				return printIssues(s.Issues)
			})
		},
	}
}

func printIssues(items []domain.Issue) error {
	rows := make([]table.Row, 0, len(items))
	for _, i := range items {
		blocker := ""
		if i.IsBlocker {
			blocker = "yes"
		}
		rows = append(rows, table.Row{i.ID, i.Key, truncate(i.Title, 48), i.Status, i.Assignee, blocker})
	}
	return printJSONOrTable(items, table.Row{"ID", "Key", "Title", "Status", "Assignee", "Blocker"}, rows)
}

func sprintRiskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "risk <sprint-id>",
		Short: "Explain the sprint risk score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				r, err := e.SprintRisk(ctx, actor(), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(r)
				}
				fmt.Println(r.Explanation)
				return nil
			})
		},
	}
}

func sprintAlertsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "alerts <sprint-id>",
		Short: "List sprint alerts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				alerts, err := e.SprintAlerts(ctx, actor(), args[0])
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(alerts))
				for _, a := range alerts {
					rows = append(rows, table.Row{a.Type, a.Level, a.Message})
				}
				return printJSONOrTable(alerts, table.Row{"Type", "Level", "Message"}, rows)
			})
		},
	}
}

func sprintInsightsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "insights <sprint-id>",
		Short: "Coaching insights for a sprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ins, err := e.SprintInsights(ctx, actor(), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ins)
				}
				fmt.Printf("%s: %d/%d tasks done, %d risks open, %d days active\n",
					ins.Label, ins.Snapshot.TasksCompleted, ins.Snapshot.TasksTotal, ins.Snapshot.RisksOpen, ins.Snapshot.DaysActive)
				printSection("Next steps", ins.NextSteps)
				printSection("Risks", ins.TriggeredRisks)
				printSection("Data needed", ins.DataNeeded)
				return nil
			})
		},
	}
}

func printSection(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Println(title + ":")
	for _, it := range items {
		fmt.Println("  - " + it)
	}
}

func sprintIssueCmd() *cobra.Command {
	is := &cobra.Command{Use: "issue", Short: "Manage sprint issues"}

	var key, status, assignee string
	var blocker bool
	add := &cobra.Command{
		Use:   "add <sprint-id> <title>",
		Short: "Add an issue to a sprint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				issue, err := e.AddIssue(ctx, actor(), args[0], engine.IssueCreateOptions{
					Key:       key,
					Title:     args[1],
					Status:    status,
					Assignee:  assignee,
					IsBlocker: blocker,
				})
				if err != nil {
					return err
				}
				return printIssues([]domain.Issue{issue})
			})
		},
	}
	add.Flags().StringVar(&key, "key", "", "issue key (generated when empty)")
	add.Flags().StringVar(&status, "status", "", "issue status (default open)")
	add.Flags().StringVar(&assignee, "assignee", "", "assignee")
	add.Flags().BoolVar(&blocker, "blocker", false, "mark as blocker")

	var newStatus, newAssignee string
	var setBlocker, clearBlocker bool
	update := &cobra.Command{
		Use:   "update <sprint-id> <issue-id>",
		Short: "Update an issue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.IssueUpdateOptions{Status: optionalString(newStatus)}
			if cmd.Flags().Changed("assignee") {
				opts.Assignee = &newAssignee
			}
			switch {
			case setBlocker && clearBlocker:
				return fmt.Errorf("--blocker and --unblock are mutually exclusive")
			case setBlocker:
				opts.IsBlocker = &setBlocker
			case clearBlocker:
				v := false
				opts.IsBlocker = &v
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				issue, err := e.UpdateIssue(ctx, actor(), args[0], args[1], opts)
				if err != nil {
					return err
				}
				return printIssues([]domain.Issue{issue})
			})
		},
	}
	update.Flags().StringVar(&newStatus, "status", "", "new status")
	update.Flags().StringVar(&newAssignee, "assignee", "", "new assignee (empty clears)")
	update.Flags().BoolVar(&setBlocker, "blocker", false, "mark as blocker")
	update.Flags().BoolVar(&clearBlocker, "unblock", false, "clear the blocker flag")

	list := &cobra.Command{
		Use:   "list <sprint-id>",
		Short: "List issues of a sprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListIssues(ctx, actor(), args[0])
				if err != nil {
					return err
				}
				return printIssues(items)
			})
		},
	}
	is.AddCommand(add, update, list)
	return is
}

func sprintCollaborateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collaborate <sprint-id> [email]",
		Short: "Add a collaborator, or list collaborators when no email is given",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var (
					items []domain.SprintCollaborator
					err   error
				)
				if len(args) == 2 {
					items, err = e.AddCollaborator(ctx, actor(), args[0], args[1])
				} else {
					items, err = e.ListCollaborators(ctx, actor(), args[0])
				}
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, c := range items {
					rows = append(rows, table.Row{c.Email, c.CreatedAt.Format("2006-01-02")})
				}
				return printJSONOrTable(items, table.Row{"Email", "Added"}, rows)
			})
		},
	}
}
