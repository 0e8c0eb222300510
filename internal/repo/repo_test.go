package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"aicoo/internal/db"
	"aicoo/internal/domain"
	"aicoo/internal/migrate"
)

var testNow = time.Date(2024, 1, 6, 9, 30, 0, 0, time.UTC)

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn, db.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return Repo{DB: conn, Dialect: db.SQLite}
}

func seedSprint(t *testing.T, r Repo) domain.Sprint {
	t.Helper()
	ctx := context.Background()
	if err := r.InsertCompany(ctx, domain.Company{ID: "c1", Name: "Acme", OwnerEmail: "owner@x.com", CreatedAt: testNow}); err != nil {
		t.Fatalf("company: %v", err)
	}
	if err := r.InsertProject(ctx, domain.Project{ID: "p1", CompanyID: "c1", Name: "Payments", OwnerEmail: "owner@x.com", CreatedAt: testNow}); err != nil {
		t.Fatalf("project: %v", err)
	}
	s := domain.Sprint{
		ID:        "s1",
		ProjectID: "p1",
		Name:      "Sprint One",
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC),
		RiskLevel: domain.RiskLow,
		CreatedAt: testNow,
	}
	if err := r.InsertSprint(ctx, s); err != nil {
		t.Fatalf("sprint: %v", err)
	}
	return s
}

func TestCompanyAndProjectScoping(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedSprint(t, r)

	if _, err := r.GetCompany(ctx, "c1", "owner@x.com"); err != nil {
		t.Fatalf("get company: %v", err)
	}
	if _, err := r.GetCompany(ctx, "c1", "other@x.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for foreign owner, got %v", err)
	}
	projects, err := r.ListProjects(ctx, "c1", "owner@x.com")
	if err != nil || len(projects) != 1 {
		t.Fatalf("list projects = %v, %v", projects, err)
	}
	if projects[0].JiraKey != "" {
		t.Fatalf("jira key = %q", projects[0].JiraKey)
	}
}

func TestSprintAccessIncludesCollaborators(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedSprint(t, r)

	if _, err := r.GetSprint(ctx, "s1", "guest@x.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found before collaboration, got %v", err)
	}
	c := domain.SprintCollaborator{ID: "col1", SprintID: "s1", Email: "guest@x.com", CreatedAt: testNow}
	if err := r.AddCollaborator(ctx, c); err != nil {
		t.Fatalf("add collaborator: %v", err)
	}
	c.ID = "col2"
	if err := r.AddCollaborator(ctx, c); err != nil {
		t.Fatalf("add collaborator twice: %v", err)
	}
	collabs, err := r.ListCollaborators(ctx, "s1")
	if err != nil || len(collabs) != 1 {
		t.Fatalf("collaborators = %v, %v", collabs, err)
	}
	s, err := r.GetSprint(ctx, "s1", "guest@x.com")
	if err != nil {
		t.Fatalf("get sprint as collaborator: %v", err)
	}
	if !s.StartDate.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("start date = %v", s.StartDate)
	}
	list, err := r.ListSprints(ctx, SprintFilters{Email: "guest@x.com", ProjectID: "p1"})
	if err != nil || len(list) != 1 {
		t.Fatalf("list sprints = %v, %v", list, err)
	}
}

func TestInsertIssueGeneratesSequentialKeys(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedSprint(t, r)

	var keys []string
	for i, id := range []string{"i1", "i2"} {
		created := testNow.Add(time.Duration(i) * time.Minute)
		issue, err := r.InsertIssue(ctx, domain.Issue{ID: id, SprintID: "s1", Title: "work", Status: "open", CreatedAt: &created}, "SO")
		if err != nil {
			t.Fatalf("insert issue: %v", err)
		}
		keys = append(keys, issue.Key)
	}
	if keys[0] != "SO-1" || keys[1] != "SO-2" {
		t.Fatalf("keys = %v", keys)
	}

	updated := testNow.Add(time.Hour)
	if err := r.UpdateIssue(ctx, domain.Issue{ID: "i2", SprintID: "s1", Title: "work", Status: "Done", IsBlocker: true, Assignee: "a@x.com", UpdatedAt: &updated}); err != nil {
		t.Fatalf("update issue: %v", err)
	}
	got, err := r.GetIssue(ctx, "s1", "i2")
	if err != nil {
		t.Fatalf("get issue: %v", err)
	}
	if !got.IsBlocker || got.Assignee != "a@x.com" || got.Status != "Done" || got.UpdatedAt == nil {
		t.Fatalf("unexpected issue %+v", got)
	}
	if err := r.UpdateIssue(ctx, domain.Issue{ID: "missing", SprintID: "s1"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateSprintRisk(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	s := seedSprint(t, r)

	evaluated := testNow
	s.RiskScore = 0.85
	s.RiskLevel = domain.RiskHigh
	s.LastEvaluatedAt = &evaluated
	if err := r.UpdateSprintRisk(ctx, s); err != nil {
		t.Fatalf("update risk: %v", err)
	}
	got, err := r.GetSprint(ctx, "s1", "owner@x.com")
	if err != nil {
		t.Fatalf("get sprint: %v", err)
	}
	if got.RiskScore != 0.85 || got.RiskLevel != domain.RiskHigh || got.LastEvaluatedAt == nil || !got.LastEvaluatedAt.Equal(evaluated) {
		t.Fatalf("risk not persisted: %+v", got)
	}
}

func TestTaskRoundTripAndFilters(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedSprint(t, r)

	impact := 0.9
	parent := domain.Task{
		ID: "t1", Title: "Write PRD", Status: domain.TaskPending, OwnerEmail: "owner@x.com", Squad: "growth",
		CompanyID: "c1", Metadata: domain.Metadata{Impact: &impact, Extra: map[string]any{"channel": "web"}},
		CreatedAt: testNow, UpdatedAt: testNow,
	}
	child := domain.Task{
		ID: "t2", Title: "Build checkout", Status: domain.TaskInProgress, OwnerEmail: "owner@x.com",
		PrerequisiteTaskID: "t1", CreatedAt: testNow.Add(time.Minute), UpdatedAt: testNow.Add(time.Minute),
	}
	for _, task := range []domain.Task{parent, child} {
		if err := r.InsertTask(ctx, nil, task); err != nil {
			t.Fatalf("insert task: %v", err)
		}
	}

	got, err := r.GetOwnedTask(ctx, "t1", "owner@x.com")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Metadata.ImpactOrDefault() != 0.9 || got.Metadata.Extra["channel"] != "web" {
		t.Fatalf("metadata lost: %+v", got.Metadata)
	}
	if _, err := r.GetOwnedTask(ctx, "t1", "other@x.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	all, err := r.ListTasks(ctx, TaskFilters{OwnerEmail: "owner@x.com"})
	if err != nil || len(all) != 2 {
		t.Fatalf("list = %v, %v", all, err)
	}
	if all[0].ID != "t2" {
		t.Fatalf("expected newest first, got %s", all[0].ID)
	}
	growth, err := r.ListTasks(ctx, TaskFilters{OwnerEmail: "owner@x.com", Squad: "growth"})
	if err != nil || len(growth) != 1 || growth[0].ID != "t1" {
		t.Fatalf("squad filter = %v, %v", growth, err)
	}
	limited, err := r.ListTasks(ctx, TaskFilters{OwnerEmail: "owner@x.com", Limit: 1})
	if err != nil || len(limited) != 1 {
		t.Fatalf("limit = %v, %v", limited, err)
	}

	deps, err := r.ListDependents(ctx, "t1")
	if err != nil || len(deps) != 1 || deps[0].ID != "t2" {
		t.Fatalf("dependents = %v, %v", deps, err)
	}
	prereq, err := r.PrerequisiteOf(ctx, "t2")
	if err != nil || prereq != "t1" {
		t.Fatalf("prerequisite = %q, %v", prereq, err)
	}

	counts, err := r.CountTasksByStatus(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts["pending"] != 1 || counts["in_progress"] != 1 {
		t.Fatalf("counts = %v", counts)
	}

	got.Status = domain.TaskCompleted
	got.ResultText = "done"
	got.ExternalProviderStatus = domain.ProviderOK
	got.UpdatedAt = testNow.Add(time.Hour)
	if err := r.UpdateTask(ctx, nil, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	reloaded, err := r.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != domain.TaskCompleted || reloaded.ExternalProviderStatus != domain.ProviderOK {
		t.Fatalf("update lost: %+v", reloaded)
	}
}

func TestListTaskLogsOrdersAscending(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	task := domain.Task{ID: "t1", Title: "x", Status: domain.TaskPending, CreatedAt: testNow, UpdatedAt: testNow}
	if err := r.InsertTask(ctx, nil, task); err != nil {
		t.Fatalf("insert task: %v", err)
	}
	rows := []struct {
		id, event string
		at        time.Time
	}{
		{"l2", domain.EventStatusChange, testNow.Add(time.Second)},
		{"l1", domain.EventCreated, testNow},
	}
	for _, row := range rows {
		if _, err := r.exec(ctx, nil, `INSERT INTO task_logs(id,task_id,event,old_status,new_status,result_text,created_at) VALUES (?,?,?,?,?,?,?)`,
			row.id, "t1", row.event, nil, "pending", nil, formatTime(row.at)); err != nil {
			t.Fatalf("insert log: %v", err)
		}
	}
	logs, err := r.ListTaskLogs(ctx, "t1")
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 2 || logs[0].Event != domain.EventCreated || logs[1].Event != domain.EventStatusChange {
		t.Fatalf("logs = %+v", logs)
	}
	if logs[0].OldStatus != "" || logs[0].NewStatus != domain.TaskPending {
		t.Fatalf("statuses = %+v", logs[0])
	}
}

func TestAPIKeys(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	hash := HashAPIKey(" secret ")
	if hash != HashAPIKey("secret") {
		t.Fatalf("hash should ignore surrounding space")
	}
	if err := r.InsertAPIKey(ctx, domain.APIKey{ID: "k1", OwnerEmail: "owner@x.com", KeyHash: hash}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	key, err := r.GetAPIKeyByHash(ctx, hash)
	if err != nil || key.OwnerEmail != "owner@x.com" {
		t.Fatalf("get = %+v, %v", key, err)
	}
	keys, err := r.ListAPIKeys(ctx, "owner@x.com")
	if err != nil || len(keys) != 1 {
		t.Fatalf("list = %v, %v", keys, err)
	}
	if err := r.DeleteAPIKey(ctx, "k1", "other@x.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found deleting foreign key, got %v", err)
	}
	if err := r.DeleteAPIKey(ctx, "k1", "owner@x.com"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := r.GetAPIKeyByHash(ctx, hash); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
