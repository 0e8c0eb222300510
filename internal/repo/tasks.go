package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"aicoo/internal/domain"
)

const taskColumns = `id,title,status,metadata_json,result_text,external_provider_status,company_id,squad,owner_email,prerequisite_task_id,next_steps,created_at,updated_at`

func marshalMetadata(m domain.Metadata) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(data), nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	meta, err := marshalMetadata(t.Metadata)
	if err != nil {
		return err
	}
	_, err = r.exec(ctx, tx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, string(t.Status), meta, nullable(t.ResultText), nullable(string(t.ExternalProviderStatus)),
		nullable(t.CompanyID), nullable(t.Squad), nullable(t.OwnerEmail), nullable(t.PrerequisiteTaskID), nullable(t.NextSteps),
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	return err
}

// UpdateTask rewrites every mutable column of t.
func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	meta, err := marshalMetadata(t.Metadata)
	if err != nil {
		return err
	}
	res, err := r.exec(ctx, tx, `UPDATE tasks SET title=?, status=?, metadata_json=?, result_text=?, external_provider_status=?,
company_id=?, squad=?, prerequisite_task_id=?, next_steps=?, updated_at=? WHERE id=?`,
		t.Title, string(t.Status), meta, nullable(t.ResultText), nullable(string(t.ExternalProviderStatus)),
		nullable(t.CompanyID), nullable(t.Squad), nullable(t.PrerequisiteTaskID), nullable(t.NextSteps), formatTime(t.UpdatedAt), t.ID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// UpdateNextSteps only touches the derived next_steps column.
func (r Repo) UpdateNextSteps(ctx context.Context, id, nextSteps string) error {
	res, err := r.exec(ctx, nil, `UPDATE tasks SET next_steps=? WHERE id=?`, nullable(nextSteps), id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var status, meta, created, updated string
	var result, providerStatus, companyID, squad, owner, prereq, nextSteps sql.NullString
	if err := row.Scan(&t.ID, &t.Title, &status, &meta, &result, &providerStatus, &companyID, &squad, &owner, &prereq, &nextSteps, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return t, ErrNotFound
		}
		return t, err
	}
	t.Status = domain.TaskStatus(status)
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &t.Metadata); err != nil {
			return t, fmt.Errorf("task %s metadata: %w", t.ID, err)
		}
	}
	t.ResultText = result.String
	t.ExternalProviderStatus = domain.ProviderStatus(providerStatus.String)
	t.CompanyID = companyID.String
	t.Squad = squad.String
	t.OwnerEmail = owner.String
	t.PrerequisiteTaskID = prereq.String
	t.NextSteps = nextSteps.String
	var err error
	if t.CreatedAt, err = parseTime(created); err != nil {
		return t, err
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return t, err
	}
	return t, nil
}

// GetTask returns a task by id regardless of owner.
func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return r.GetTaskTx(ctx, nil, id)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return scanTask(r.queryRow(ctx, tx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

// GetOwnedTask returns a task only if ownerEmail owns it.
func (r Repo) GetOwnedTask(ctx context.Context, id, ownerEmail string) (domain.Task, error) {
	return scanTask(r.queryRow(ctx, nil, `SELECT `+taskColumns+` FROM tasks WHERE id=? AND owner_email=?`, id, ownerEmail))
}

type TaskFilters struct {
	OwnerEmail string
	Status     string
	Squad      string
	CompanyID  string
	Limit      int
}

// ListTasks returns tasks newest first.
func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.OwnerEmail != "" {
		clauses = append(clauses, "owner_email=?")
		args = append(args, f.OwnerEmail)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Squad != "" {
		clauses = append(clauses, "squad=?")
		args = append(args, f.Squad)
	}
	if f.CompanyID != "" {
		clauses = append(clauses, "company_id=?")
		args = append(args, f.CompanyID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.query(ctx, nil, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ListDependents returns tasks naming taskID as their prerequisite.
func (r Repo) ListDependents(ctx context.Context, taskID string) ([]domain.Task, error) {
	rows, err := r.query(ctx, nil, `SELECT `+taskColumns+` FROM tasks WHERE prerequisite_task_id=? ORDER BY created_at, id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// PrerequisiteOf returns the prerequisite id of taskID, or "" when none is set.
func (r Repo) PrerequisiteOf(ctx context.Context, taskID string) (string, error) {
	var prereq sql.NullString
	err := r.queryRow(ctx, nil, `SELECT prerequisite_task_id FROM tasks WHERE id=?`, taskID).Scan(&prereq)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return prereq.String, nil
}

// CountTasksByStatus counts all tasks grouped by status.
func (r Repo) CountTasksByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.query(ctx, nil, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}
