package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"aicoo/internal/domain"
	"aicoo/internal/insight"
	"aicoo/internal/repo"
	"aicoo/internal/telemetry"
)

const defaultTaskLimit = 100

// PlaceholderResult is stored on tasks that have no plan text yet.
func PlaceholderResult(title string) string {
	return "AI-COO processed task: " + title
}

type TaskCreateOptions struct {
	Title              string
	Metadata           domain.Metadata
	CompanyID          string
	Squad              string
	PrerequisiteTaskID string
}

// CreateTask stores a pending task owned by actor and logs its creation.
func (e Engine) CreateTask(ctx context.Context, actor string, opts TaskCreateOptions) (domain.Task, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Task{}, invalid("title", "is required")
	}
	if opts.CompanyID != "" {
		if _, err := e.Repo.GetCompany(ctx, opts.CompanyID, actor); err != nil {
			return domain.Task{}, scoped(err, "company", opts.CompanyID)
		}
	}
	squad := strings.TrimSpace(opts.Squad)
	if squad == "" {
		squad = opts.Metadata.Squad
	}
	now := e.now()
	t := domain.Task{
		ID:                 newID(),
		Title:              title,
		Status:             domain.TaskPending,
		Metadata:           opts.Metadata,
		CompanyID:          opts.CompanyID,
		Squad:              squad,
		OwnerEmail:         actor,
		PrerequisiteTaskID: strings.TrimSpace(opts.PrerequisiteTaskID),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	var prereq *domain.Task
	if t.PrerequisiteTaskID != "" {
		p, err := e.ownedPrerequisite(ctx, actor, t.PrerequisiteTaskID)
		if err != nil {
			return domain.Task{}, err
		}
		if err := e.ensureNoCycle(ctx, t.ID, p.ID); err != nil {
			return domain.Task{}, err
		}
		prereq = &p
	}
	t.NextSteps = insight.NextSteps(t, prereq)
	t.ResultText = PlaceholderResult(title)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if _, err := e.Events.Append(ctx, tx, domain.TaskLog{
		TaskID:     t.ID,
		Event:      domain.EventCreated,
		NewStatus:  t.Status,
		ResultText: t.ResultText,
		CreatedAt:  now,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	telemetry.RecordTaskOp(ctx, "create", "ok")
	return t, nil
}

func (e Engine) ownedPrerequisite(ctx context.Context, actor, id string) (domain.Task, error) {
	p, err := e.Repo.GetOwnedTask(ctx, id, actor)
	if errors.Is(err, repo.ErrNotFound) {
		return p, invalid("prerequisite_task_id", fmt.Sprintf("task %s not found", id))
	}
	return p, err
}

// ensureNoCycle walks the prerequisite chain starting at prereqID and fails if
// it reaches taskID. Dangling references end the walk.
func (e Engine) ensureNoCycle(ctx context.Context, taskID, prereqID string) error {
	seen := map[string]bool{}
	cur := prereqID
	for cur != "" {
		if cur == taskID || seen[cur] {
			return ErrPrerequisiteCycle
		}
		seen[cur] = true
		next, err := e.Repo.PrerequisiteOf(ctx, cur)
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		cur = next
	}
	return nil
}

// prerequisite loads the direct prerequisite of t, or nil when none is set or it no longer exists.
func (e Engine) prerequisite(ctx context.Context, t domain.Task) (*domain.Task, error) {
	if t.PrerequisiteTaskID == "" {
		return nil, nil
	}
	p, err := e.Repo.GetTask(ctx, t.PrerequisiteTaskID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type TaskListOptions struct {
	Status    string
	Squad     string
	CompanyID string
	Limit     int
}

func (e Engine) ListTasks(ctx context.Context, actor string, opts TaskListOptions) ([]domain.Task, error) {
	if opts.Status != "" && !domain.TaskStatus(opts.Status).IsValid() {
		return nil, invalid("status", fmt.Sprintf("unknown status %q", opts.Status))
	}
	if opts.Limit < 0 {
		return nil, invalid("limit", "must not be negative")
	}
	if opts.Limit == 0 {
		opts.Limit = defaultTaskLimit
	}
	return e.Repo.ListTasks(ctx, repo.TaskFilters{
		OwnerEmail: actor,
		Status:     opts.Status,
		Squad:      opts.Squad,
		CompanyID:  opts.CompanyID,
		Limit:      opts.Limit,
	})
}

func (e Engine) GetTask(ctx context.Context, actor, id string) (domain.Task, error) {
	t, err := e.Repo.GetOwnedTask(ctx, id, actor)
	return t, scoped(err, "task", id)
}

// TaskPatch lists the mutable task fields. Nil fields are left alone; an empty
// PrerequisiteTaskID clears the prerequisite.
type TaskPatch struct {
	Status                 *string
	ResultText             *string
	Metadata               *domain.Metadata
	ExternalProviderStatus *string
	PrerequisiteTaskID     *string
}

func (e Engine) PatchTask(ctx context.Context, actor, id string, patch TaskPatch) (domain.Task, error) {
	t, err := e.GetTask(ctx, actor, id)
	if err != nil {
		return t, err
	}
	oldStatus := t.Status
	if patch.Status != nil {
		s := domain.TaskStatus(strings.TrimSpace(*patch.Status))
		if !s.IsValid() {
			return t, invalid("status", fmt.Sprintf("unknown status %q", *patch.Status))
		}
		t.Status = s
	}
	if patch.ExternalProviderStatus != nil {
		ps := domain.ProviderStatus(strings.TrimSpace(*patch.ExternalProviderStatus))
		if ps != "" && !ps.IsValid() {
			return t, invalid("external_provider_status", fmt.Sprintf("unknown provider status %q", ps))
		}
		t.ExternalProviderStatus = ps
	}
	if patch.ResultText != nil {
		t.ResultText = *patch.ResultText
	}
	if patch.Metadata != nil {
		t.Metadata = *patch.Metadata
	}
	if patch.PrerequisiteTaskID != nil {
		next := strings.TrimSpace(*patch.PrerequisiteTaskID)
		if next != "" && next != t.PrerequisiteTaskID {
			if next == t.ID {
				return t, ErrPrerequisiteCycle
			}
			if _, err := e.ownedPrerequisite(ctx, actor, next); err != nil {
				return t, err
			}
			if err := e.ensureNoCycle(ctx, t.ID, next); err != nil {
				return t, err
			}
		}
		t.PrerequisiteTaskID = next
	}
	prereq, err := e.prerequisite(ctx, t)
	if err != nil {
		return t, err
	}
	t.NextSteps = insight.NextSteps(t, prereq)
	t.UpdatedAt = e.now()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if t.Status != oldStatus {
		if _, err := e.Events.Append(ctx, tx, domain.TaskLog{
			TaskID:     t.ID,
			Event:      domain.EventStatusChange,
			OldStatus:  oldStatus,
			NewStatus:  t.Status,
			ResultText: t.ResultText,
			CreatedAt:  t.UpdatedAt,
		}); err != nil {
			return t, err
		}
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	if t.Status != oldStatus {
		if err := e.refreshDependents(ctx, t); err != nil {
			return t, err
		}
	}
	telemetry.RecordTaskOp(ctx, "patch", "ok")
	return t, nil
}

// refreshDependents rewrites the next steps of tasks blocked on t.
func (e Engine) refreshDependents(ctx context.Context, t domain.Task) error {
	deps, err := e.Repo.ListDependents(ctx, t.ID)
	if err != nil {
		return err
	}
	for _, d := range deps {
		steps := insight.NextSteps(d, &t)
		if steps == d.NextSteps {
			continue
		}
		if err := e.Repo.UpdateNextSteps(ctx, d.ID, steps); err != nil {
			return err
		}
	}
	return nil
}

// TaskRef is the short form of a related task.
type TaskRef struct {
	ID     string            `json:"id"`
	Title  string            `json:"title"`
	Status domain.TaskStatus `json:"status"`
}

func refOf(t domain.Task) TaskRef {
	return TaskRef{ID: t.ID, Title: t.Title, Status: t.Status}
}

type TaskSummary struct {
	Task      domain.Task `json:"task"`
	NextSteps string      `json:"next_steps"`
	DependsOn *TaskRef    `json:"depends_on,omitempty"`
	Blocks    []TaskRef   `json:"blocks"`
}

// SummarizeTask returns the task with its dependency neighbourhood and live next steps.
func (e Engine) SummarizeTask(ctx context.Context, actor, id string) (TaskSummary, error) {
	t, err := e.GetTask(ctx, actor, id)
	if err != nil {
		return TaskSummary{}, err
	}
	prereq, err := e.prerequisite(ctx, t)
	if err != nil {
		return TaskSummary{}, err
	}
	deps, err := e.Repo.ListDependents(ctx, t.ID)
	if err != nil {
		return TaskSummary{}, err
	}
	sum := TaskSummary{Task: t, NextSteps: insight.NextSteps(t, prereq), Blocks: make([]TaskRef, 0, len(deps))}
	if prereq != nil {
		ref := refOf(*prereq)
		sum.DependsOn = &ref
	}
	for _, d := range deps {
		sum.Blocks = append(sum.Blocks, refOf(d))
	}
	return sum, nil
}

// TaskLogs returns the task's history oldest first. A task without history is reported as not found.
func (e Engine) TaskLogs(ctx context.Context, actor, id string) ([]domain.TaskLog, error) {
	if _, err := e.GetTask(ctx, actor, id); err != nil {
		return nil, err
	}
	logs, err := e.Repo.ListTaskLogs(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, fmt.Errorf("no logs found for task %s: %w", id, repo.ErrNotFound)
	}
	return logs, nil
}

// RecomputeNextSteps refreshes next steps on every task actor owns and fills
// missing result text with the placeholder. It returns the number of tasks visited.
func (e Engine) RecomputeNextSteps(ctx context.Context, actor string) (int, error) {
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{OwnerEmail: actor})
	if err != nil {
		return 0, err
	}
	byID := make(map[string]domain.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	for _, t := range tasks {
		var prereq *domain.Task
		if t.PrerequisiteTaskID != "" {
			if p, ok := byID[t.PrerequisiteTaskID]; ok {
				prereq = &p
			} else if p, err := e.Repo.GetTaskTx(ctx, tx, t.PrerequisiteTaskID); err == nil {
				prereq = &p
			} else if !errors.Is(err, repo.ErrNotFound) {
				return 0, err
			}
		}
		t.NextSteps = insight.NextSteps(t, prereq)
		if t.ResultText == "" {
			t.ResultText = PlaceholderResult(t.Title)
		}
		if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	telemetry.RecordTaskOp(ctx, "recompute", "ok")
	slog.InfoContext(ctx, "next steps recomputed", "owner", actor, "tasks", len(tasks))
	return len(tasks), nil
}
