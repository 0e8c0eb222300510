package repo

import (
	"context"
	"database/sql"

	"aicoo/internal/domain"
)

func (r Repo) InsertCompany(ctx context.Context, c domain.Company) error {
	_, err := r.exec(ctx, nil, `INSERT INTO companies(id,name,owner_email,created_at) VALUES (?,?,?,?)`,
		c.ID, c.Name, c.OwnerEmail, formatTime(c.CreatedAt))
	return err
}

func scanCompany(row rowScanner) (domain.Company, error) {
	var c domain.Company
	var created string
	if err := row.Scan(&c.ID, &c.Name, &c.OwnerEmail, &created); err != nil {
		if err == sql.ErrNoRows {
			return c, ErrNotFound
		}
		return c, err
	}
	t, err := parseTime(created)
	if err != nil {
		return c, err
	}
	c.CreatedAt = t
	return c, nil
}

// GetCompany returns a company only if ownerEmail owns it.
func (r Repo) GetCompany(ctx context.Context, id, ownerEmail string) (domain.Company, error) {
	return scanCompany(r.queryRow(ctx, nil, `SELECT id,name,owner_email,created_at FROM companies WHERE id=? AND owner_email=?`, id, ownerEmail))
}

func (r Repo) ListCompanies(ctx context.Context, ownerEmail string) ([]domain.Company, error) {
	rows, err := r.query(ctx, nil, `SELECT id,name,owner_email,created_at FROM companies WHERE owner_email=? ORDER BY created_at, id`, ownerEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) InsertProject(ctx context.Context, p domain.Project) error {
	_, err := r.exec(ctx, nil, `INSERT INTO projects(id,company_id,name,jira_key,owner_email,created_at) VALUES (?,?,?,?,?,?)`,
		p.ID, p.CompanyID, p.Name, nullable(p.JiraKey), p.OwnerEmail, formatTime(p.CreatedAt))
	return err
}

const projectColumns = `id,company_id,name,COALESCE(jira_key,''),owner_email,created_at`

func scanProject(row rowScanner) (domain.Project, error) {
	var p domain.Project
	var created string
	if err := row.Scan(&p.ID, &p.CompanyID, &p.Name, &p.JiraKey, &p.OwnerEmail, &created); err != nil {
		if err == sql.ErrNoRows {
			return p, ErrNotFound
		}
		return p, err
	}
	t, err := parseTime(created)
	if err != nil {
		return p, err
	}
	p.CreatedAt = t
	return p, nil
}

// GetProject returns a project only if ownerEmail owns it.
func (r Repo) GetProject(ctx context.Context, id, ownerEmail string) (domain.Project, error) {
	return scanProject(r.queryRow(ctx, nil, `SELECT `+projectColumns+` FROM projects WHERE id=? AND owner_email=?`, id, ownerEmail))
}

// GetProjectByID is unscoped; callers check access through the sprint.
func (r Repo) GetProjectByID(ctx context.Context, id string) (domain.Project, error) {
	return scanProject(r.queryRow(ctx, nil, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

func (r Repo) ListProjects(ctx context.Context, companyID, ownerEmail string) ([]domain.Project, error) {
	rows, err := r.query(ctx, nil, `SELECT `+projectColumns+` FROM projects WHERE company_id=? AND owner_email=? ORDER BY created_at, id`, companyID, ownerEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
