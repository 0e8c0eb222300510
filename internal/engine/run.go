package engine

import (
	"context"
	"log/slog"

	"aicoo/internal/domain"
	"aicoo/internal/insight"
	"aicoo/internal/telemetry"
)

// RunTask creates a task and drives it to completion before returning.
func (e Engine) RunTask(ctx context.Context, actor string, opts TaskCreateOptions) (domain.Task, error) {
	t, err := e.CreateTask(ctx, actor, opts)
	if err != nil {
		return t, err
	}
	return e.drive(ctx, t)
}

// RunTaskAsync creates a task and returns it while still pending. The plan is
// produced in the background; Wait blocks until it has been stored. Engines
// not built by New do not track their runs, so Wait returns immediately.
func (e Engine) RunTaskAsync(ctx context.Context, actor string, opts TaskCreateOptions) (domain.Task, error) {
	t, err := e.CreateTask(ctx, actor, opts)
	if err != nil {
		return t, err
	}
	bg := context.WithoutCancel(ctx)
	if e.runs != nil {
		e.runs.Add(1)
	}
	go func() {
		if e.runs != nil {
			defer e.runs.Done()
		}
		if _, err := e.drive(bg, t); err != nil {
			slog.ErrorContext(bg, "background run failed", "task_id", t.ID, "err", err)
		}
	}()
	return t, nil
}

// drive moves a task through in_progress to completed. Provider failures still
// complete the task with a fallback plan; only storage errors mark it failed.
func (e Engine) drive(ctx context.Context, t domain.Task) (domain.Task, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "engine.run_task")
	defer span.End()

	started, err := e.transition(ctx, t, domain.TaskInProgress, func(*domain.Task) {})
	if err != nil {
		e.fail(ctx, t)
		telemetry.RecordTaskOp(ctx, "run", string(domain.TaskFailed))
		return t, err
	}

	text, status := e.Planner.Plan(ctx, started.Title, started.Metadata)

	done, err := e.transition(ctx, started, domain.TaskCompleted, func(t *domain.Task) {
		t.ResultText = text
		t.ExternalProviderStatus = status
	})
	if err != nil {
		e.fail(ctx, started)
		telemetry.RecordTaskOp(ctx, "run", string(domain.TaskFailed))
		return started, err
	}
	if err := e.refreshDependents(ctx, done); err != nil {
		slog.WarnContext(ctx, "refresh dependents failed", "task_id", done.ID, "err", err)
	}
	telemetry.RecordTaskOp(ctx, "run", string(done.Status))
	slog.InfoContext(ctx, "task run finished", "task_id", done.ID, "provider_status", done.ExternalProviderStatus)
	return done, nil
}

// transition applies mutate, moves t to status and logs the change in one transaction.
func (e Engine) transition(ctx context.Context, t domain.Task, status domain.TaskStatus, mutate func(*domain.Task)) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	cur, err := e.Repo.GetTaskTx(ctx, tx, t.ID)
	if err != nil {
		return t, err
	}
	old := cur.Status
	mutate(&cur)
	cur.Status = status
	cur.UpdatedAt = e.now()
	var prereq *domain.Task
	if cur.PrerequisiteTaskID != "" {
		if p, err := e.Repo.GetTaskTx(ctx, tx, cur.PrerequisiteTaskID); err == nil {
			prereq = &p
		}
	}
	cur.NextSteps = insight.NextSteps(cur, prereq)
	if err := e.Repo.UpdateTask(ctx, tx, cur); err != nil {
		return t, err
	}
	if _, err := e.Events.Append(ctx, tx, domain.TaskLog{
		TaskID:     cur.ID,
		Event:      domain.EventStatusChange,
		OldStatus:  old,
		NewStatus:  status,
		ResultText: cur.ResultText,
		CreatedAt:  cur.UpdatedAt,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return cur, nil
}

// fail is best effort: the storage error that got us here may prevent it too.
func (e Engine) fail(ctx context.Context, t domain.Task) {
	if _, err := e.transition(ctx, t, domain.TaskFailed, func(*domain.Task) {}); err != nil {
		slog.ErrorContext(ctx, "mark task failed", "task_id", t.ID, "err", err)
	}
}
