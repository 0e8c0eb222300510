package engine

import (
	"context"
	"strings"

	"aicoo/internal/insight"
	"aicoo/internal/repo"
)

// Analysis scores every task the actor owns.
func (e Engine) Analysis(ctx context.Context, actor string) (insight.Analysis, error) {
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{OwnerEmail: actor})
	if err != nil {
		return insight.Analysis{}, err
	}
	return insight.Analyze(tasks), nil
}

func (e Engine) Breakdown(title, squad string) (insight.Breakdown, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return insight.Breakdown{}, invalid("title", "is required")
	}
	return insight.ProjectBreakdown(title, strings.TrimSpace(squad)), nil
}

func (e Engine) Compliance(company string) []string {
	return insight.ComplianceActions(strings.TrimSpace(company))
}

func (e Engine) Advisor(department string) insight.Advisor {
	if e.Advisors == nil {
		return insight.NewAdvisors().For(department)
	}
	return e.Advisors.For(department)
}
