package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"aicoo/internal/domain"
	"aicoo/internal/insight"
	"aicoo/internal/repo"
	"aicoo/internal/telemetry"
)

type SprintCreateOptions struct {
	ProjectID    string
	Name         string
	OwnerEmail   string
	StartDate    *time.Time
	EndDate      *time.Time
	BaselineDate *time.Time
}

// CreateSprint adds a sprint to a project owned by actor. Missing dates default to now.
func (e Engine) CreateSprint(ctx context.Context, actor string, opts SprintCreateOptions) (domain.Sprint, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Sprint{}, invalid("name", "is required")
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID, actor); err != nil {
		return domain.Sprint{}, scoped(err, "project", opts.ProjectID)
	}
	now := e.now()
	s := domain.Sprint{
		ID:           newID(),
		ProjectID:    opts.ProjectID,
		Name:         name,
		OwnerEmail:   strings.TrimSpace(opts.OwnerEmail),
		StartDate:    now,
		EndDate:      now,
		BaselineDate: opts.BaselineDate,
		RiskLevel:    domain.RiskLow,
		CreatedAt:    now,
	}
	if opts.StartDate != nil {
		s.StartDate = opts.StartDate.UTC()
	}
	if opts.EndDate != nil {
		s.EndDate = opts.EndDate.UTC()
	}
	if s.EndDate.Before(s.StartDate) {
		return domain.Sprint{}, invalid("end_date", "must not be before start_date")
	}
	if err := e.Repo.InsertSprint(ctx, s); err != nil {
		return domain.Sprint{}, err
	}
	return s, nil
}

// ListSprints returns the project's visible sprints with freshly computed
// risk fields. Issues are loaded for scoring but not returned.
func (e Engine) ListSprints(ctx context.Context, actor, projectID string) ([]domain.Sprint, error) {
	sprints, err := e.Repo.ListSprints(ctx, repo.SprintFilters{Email: actor, ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	for i := range sprints {
		issues, err := e.Repo.ListIssues(ctx, sprints[i].ID)
		if err != nil {
			return nil, err
		}
		sprints[i].Issues = issues
		if err := e.score(ctx, &sprints[i]); err != nil {
			return nil, err
		}
		sprints[i].Issues = nil
	}
	return sprints, nil
}

// score recomputes and persists the risk fields of a sprint whose issues are loaded.
func (e Engine) score(ctx context.Context, s *domain.Sprint) error {
	insight.ScoreSprint(s, e.now())
	if err := e.Repo.UpdateSprintRisk(ctx, *s); err != nil {
		return err
	}
	telemetry.RecordSprintEvaluation(ctx, string(s.RiskLevel))
	slog.DebugContext(ctx, "sprint evaluated", "sprint_id", s.ID, "risk_score", s.RiskScore, "risk_level", s.RiskLevel)
	return nil
}

// evaluate loads a sprint, recomputes its risk and persists it. The returned
// time is the evaluation stamp from before this call.
func (e Engine) evaluate(ctx context.Context, actor, id string) (domain.Sprint, *time.Time, error) {
	s, err := e.Repo.GetSprint(ctx, id, actor)
	if err != nil {
		return s, nil, scoped(err, "sprint", id)
	}
	previous := s.LastEvaluatedAt
	if err := e.score(ctx, &s); err != nil {
		return s, nil, err
	}
	return s, previous, nil
}

// GetSprint returns the sprint with freshly computed risk fields.
func (e Engine) GetSprint(ctx context.Context, actor, id string) (domain.Sprint, error) {
	s, _, err := e.evaluate(ctx, actor, id)
	return s, err
}

func (e Engine) SprintRisk(ctx context.Context, actor, id string) (insight.RiskReport, error) {
	s, _, err := e.evaluate(ctx, actor, id)
	if err != nil {
		return insight.RiskReport{}, err
	}
	return insight.SprintRiskReport(s), nil
}

func (e Engine) SprintAlerts(ctx context.Context, actor, id string) ([]insight.Alert, error) {
	s, _, err := e.evaluate(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return insight.SprintAlerts(s, e.now()), nil
}

// SprintInsights scores the sprint first, then measures activity against the
// evaluation that preceded this read so the read itself does not count as activity.
func (e Engine) SprintInsights(ctx context.Context, actor, id string) (insight.Insights, error) {
	s, previous, err := e.evaluate(ctx, actor, id)
	if err != nil {
		return insight.Insights{}, err
	}
	s.LastEvaluatedAt = previous
	return insight.SprintInsights(s, e.now()), nil
}

type IssueCreateOptions struct {
	Key       string
	Title     string
	Status    string
	Assignee  string
	IsBlocker bool
}

// AddIssue appends an issue, generating the next sprint-scoped key when none is given.
func (e Engine) AddIssue(ctx context.Context, actor, sprintID string, opts IssueCreateOptions) (domain.Issue, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Issue{}, invalid("title", "is required")
	}
	s, err := e.Repo.GetSprint(ctx, sprintID, actor)
	if err != nil {
		return domain.Issue{}, scoped(err, "sprint", sprintID)
	}
	p, err := e.Repo.GetProjectByID(ctx, s.ProjectID)
	if err != nil {
		return domain.Issue{}, err
	}
	status := strings.TrimSpace(opts.Status)
	if status == "" {
		status = "open"
	}
	now := e.now()
	issue := domain.Issue{
		ID:        newID(),
		SprintID:  s.ID,
		Key:       strings.TrimSpace(opts.Key),
		Title:     title,
		Status:    status,
		Assignee:  strings.TrimSpace(opts.Assignee),
		IsBlocker: opts.IsBlocker,
		CreatedAt: &now,
		UpdatedAt: &now,
	}
	return e.Repo.InsertIssue(ctx, issue, issueKeyPrefix(p, s))
}

// issueKeyPrefix prefers the project's Jira key, then the sprint name initials.
func issueKeyPrefix(p domain.Project, s domain.Sprint) string {
	if p.JiraKey != "" {
		return p.JiraKey
	}
	var b strings.Builder
	for _, word := range strings.Fields(s.Name) {
		for _, r := range word {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(unicode.ToUpper(r))
				break
			}
		}
	}
	if b.Len() == 0 {
		return "ISS"
	}
	return b.String()
}

type IssueUpdateOptions struct {
	Status    *string
	Assignee  *string
	IsBlocker *bool
}

func (e Engine) UpdateIssue(ctx context.Context, actor, sprintID, issueID string, opts IssueUpdateOptions) (domain.Issue, error) {
	if _, err := e.Repo.GetSprint(ctx, sprintID, actor); err != nil {
		return domain.Issue{}, scoped(err, "sprint", sprintID)
	}
	issue, err := e.Repo.GetIssue(ctx, sprintID, issueID)
	if err != nil {
		return issue, scoped(err, "issue", issueID)
	}
	if opts.Status != nil {
		status := strings.TrimSpace(*opts.Status)
		if status == "" {
			return issue, invalid("status", "must not be empty")
		}
		issue.Status = status
	}
	if opts.Assignee != nil {
		issue.Assignee = strings.TrimSpace(*opts.Assignee)
	}
	if opts.IsBlocker != nil {
		issue.IsBlocker = *opts.IsBlocker
	}
	now := e.now()
	issue.UpdatedAt = &now
	if err := e.Repo.UpdateIssue(ctx, issue); err != nil {
		return issue, err
	}
	return issue, nil
}

func (e Engine) ListIssues(ctx context.Context, actor, sprintID string) ([]domain.Issue, error) {
	s, err := e.Repo.GetSprint(ctx, sprintID, actor)
	if err != nil {
		return nil, scoped(err, "sprint", sprintID)
	}
	return s.Issues, nil
}

// AddCollaborator grants email access to the sprint. Adding twice is a no-op.
func (e Engine) AddCollaborator(ctx context.Context, actor, sprintID, email string) ([]domain.SprintCollaborator, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, invalid("email", "must be an email address")
	}
	if _, err := e.Repo.GetSprint(ctx, sprintID, actor); err != nil {
		return nil, scoped(err, "sprint", sprintID)
	}
	c := domain.SprintCollaborator{ID: newID(), SprintID: sprintID, Email: email, CreatedAt: e.now()}
	if err := e.Repo.AddCollaborator(ctx, c); err != nil {
		return nil, err
	}
	return e.Repo.ListCollaborators(ctx, sprintID)
}

func (e Engine) ListCollaborators(ctx context.Context, actor, sprintID string) ([]domain.SprintCollaborator, error) {
	if _, err := e.Repo.GetSprint(ctx, sprintID, actor); err != nil {
		return nil, scoped(err, "sprint", sprintID)
	}
	return e.Repo.ListCollaborators(ctx, sprintID)
}
