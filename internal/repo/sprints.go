package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"aicoo/internal/domain"
)

const sprintColumns = `s.id,s.project_id,s.name,COALESCE(s.owner_email,''),s.start_date,s.end_date,s.baseline_date,s.risk_score,s.risk_level,s.last_evaluated_at,s.created_at`

// sprintAccess matches sprints visible to an email: project owner, sprint owner or collaborator.
// Collaborator emails are stored lower-cased; bind the third argument through accessArgs.
const sprintAccess = `(p.owner_email=? OR s.owner_email=? OR EXISTS (SELECT 1 FROM sprint_collaborators c WHERE c.sprint_id=s.id AND c.email=?))`

func accessArgs(email string) []any {
	return []any{email, email, strings.ToLower(strings.TrimSpace(email))}
}

func (r Repo) InsertSprint(ctx context.Context, s domain.Sprint) error {
	_, err := r.exec(ctx, nil, `INSERT INTO sprints(id,project_id,name,owner_email,start_date,end_date,baseline_date,risk_score,risk_level,last_evaluated_at,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.ProjectID, s.Name, nullable(s.OwnerEmail), formatTime(s.StartDate), formatTime(s.EndDate), nullableTime(s.BaselineDate),
		s.RiskScore, string(s.RiskLevel), nullableTime(s.LastEvaluatedAt), formatTime(s.CreatedAt))
	return err
}

func scanSprint(row rowScanner) (domain.Sprint, error) {
	var s domain.Sprint
	var start, end, created, level string
	var baseline, evaluated sql.NullString
	if err := row.Scan(&s.ID, &s.ProjectID, &s.Name, &s.OwnerEmail, &start, &end, &baseline, &s.RiskScore, &level, &evaluated, &created); err != nil {
		if err == sql.ErrNoRows {
			return s, ErrNotFound
		}
		return s, err
	}
	s.RiskLevel = domain.RiskLevel(level)
	var err error
	if s.StartDate, err = parseTime(start); err != nil {
		return s, fmt.Errorf("sprint %s start_date: %w", s.ID, err)
	}
	if s.EndDate, err = parseTime(end); err != nil {
		return s, fmt.Errorf("sprint %s end_date: %w", s.ID, err)
	}
	if s.CreatedAt, err = parseTime(created); err != nil {
		return s, err
	}
	if s.BaselineDate, err = parseNullTime(baseline); err != nil {
		return s, err
	}
	if s.LastEvaluatedAt, err = parseNullTime(evaluated); err != nil {
		return s, err
	}
	return s, nil
}

// GetSprint returns the sprint with its issues if email may access it.
func (r Repo) GetSprint(ctx context.Context, id, email string) (domain.Sprint, error) {
	s, err := scanSprint(r.queryRow(ctx, nil, `SELECT `+sprintColumns+` FROM sprints s JOIN projects p ON p.id=s.project_id WHERE s.id=? AND `+sprintAccess,
		append([]any{id}, accessArgs(email)...)...))
	if err != nil {
		return s, err
	}
	issues, err := r.ListIssues(ctx, s.ID)
	if err != nil {
		return s, err
	}
	s.Issues = issues
	return s, nil
}

type SprintFilters struct {
	Email     string
	ProjectID string
}

// ListSprints returns sprints without issues.
func (r Repo) ListSprints(ctx context.Context, f SprintFilters) ([]domain.Sprint, error) {
	clauses := []string{sprintAccess}
	args := accessArgs(f.Email)
	if f.ProjectID != "" {
		clauses = append(clauses, "s.project_id=?")
		args = append(args, f.ProjectID)
	}
	rows, err := r.query(ctx, nil, `SELECT `+sprintColumns+` FROM sprints s JOIN projects p ON p.id=s.project_id WHERE `+
		strings.Join(clauses, " AND ")+` ORDER BY s.start_date DESC, s.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Sprint
	for rows.Next() {
		s, err := scanSprint(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// UpdateSprintRisk persists the derived risk fields. Concurrent writers are last-write-wins.
func (r Repo) UpdateSprintRisk(ctx context.Context, s domain.Sprint) error {
	res, err := r.exec(ctx, nil, `UPDATE sprints SET risk_score=?, risk_level=?, last_evaluated_at=? WHERE id=?`,
		s.RiskScore, string(s.RiskLevel), nullableTime(s.LastEvaluatedAt), s.ID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

const issueColumns = `id,sprint_id,issue_key,title,status,COALESCE(assignee,''),is_blocker,created_at,updated_at`

func scanIssue(row rowScanner) (domain.Issue, error) {
	var i domain.Issue
	var blocker int64
	var created, updated sql.NullString
	if err := row.Scan(&i.ID, &i.SprintID, &i.Key, &i.Title, &i.Status, &i.Assignee, &blocker, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return i, ErrNotFound
		}
		return i, err
	}
	i.IsBlocker = blocker != 0
	var err error
	if i.CreatedAt, err = parseNullTime(created); err != nil {
		return i, err
	}
	if i.UpdatedAt, err = parseNullTime(updated); err != nil {
		return i, err
	}
	return i, nil
}

func (r Repo) ListIssues(ctx context.Context, sprintID string) ([]domain.Issue, error) {
	rows, err := r.query(ctx, nil, `SELECT `+issueColumns+` FROM issues WHERE sprint_id=? ORDER BY created_at, issue_key`, sprintID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Issue
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, i)
	}
	return res, rows.Err()
}

func (r Repo) GetIssue(ctx context.Context, sprintID, issueID string) (domain.Issue, error) {
	return scanIssue(r.queryRow(ctx, nil, `SELECT `+issueColumns+` FROM issues WHERE sprint_id=? AND id=?`, sprintID, issueID))
}

// InsertIssue assigns the next sequential key for the sprint inside one transaction.
func (r Repo) InsertIssue(ctx context.Context, i domain.Issue, keyPrefix string) (domain.Issue, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return i, err
	}
	defer tx.Rollback()
	var count int
	if err := r.queryRow(ctx, tx, `SELECT COUNT(*) FROM issues WHERE sprint_id=?`, i.SprintID).Scan(&count); err != nil {
		return i, err
	}
	if i.Key == "" {
		i.Key = fmt.Sprintf("%s-%d", keyPrefix, count+1)
	}
	if _, err := r.exec(ctx, tx, `INSERT INTO issues(id,sprint_id,issue_key,title,status,assignee,is_blocker,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		i.ID, i.SprintID, i.Key, i.Title, i.Status, nullable(i.Assignee), boolToInt(i.IsBlocker), nullableTime(i.CreatedAt), nullableTime(i.UpdatedAt)); err != nil {
		return i, err
	}
	return i, tx.Commit()
}

func (r Repo) UpdateIssue(ctx context.Context, i domain.Issue) error {
	res, err := r.exec(ctx, nil, `UPDATE issues SET title=?, status=?, assignee=?, is_blocker=?, updated_at=? WHERE id=? AND sprint_id=?`,
		i.Title, i.Status, nullable(i.Assignee), boolToInt(i.IsBlocker), nullableTime(i.UpdatedAt), i.ID, i.SprintID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// AddCollaborator is idempotent per (sprint, email).
func (r Repo) AddCollaborator(ctx context.Context, c domain.SprintCollaborator) error {
	_, err := r.exec(ctx, nil, `INSERT INTO sprint_collaborators(id,sprint_id,email,created_at) VALUES (?,?,?,?)
ON CONFLICT(sprint_id,email) DO NOTHING`, c.ID, c.SprintID, c.Email, formatTime(c.CreatedAt))
	return err
}

func (r Repo) ListCollaborators(ctx context.Context, sprintID string) ([]domain.SprintCollaborator, error) {
	rows, err := r.query(ctx, nil, `SELECT id,sprint_id,email,created_at FROM sprint_collaborators WHERE sprint_id=? ORDER BY created_at, email`, sprintID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SprintCollaborator
	for rows.Next() {
		var c domain.SprintCollaborator
		var created string
		if err := rows.Scan(&c.ID, &c.SprintID, &c.Email, &created); err != nil {
			return nil, err
		}
		t, err := parseTime(created)
		if err != nil {
			return nil, err
		}
		c.CreatedAt = t
		res = append(res, c)
	}
	return res, rows.Err()
}

