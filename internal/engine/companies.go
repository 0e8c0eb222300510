package engine

import (
	"context"
	"strings"

	"aicoo/internal/domain"
)

func (e Engine) CreateCompany(ctx context.Context, owner, name string) (domain.Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Company{}, invalid("name", "is required")
	}
	c := domain.Company{ID: newID(), Name: name, OwnerEmail: owner, CreatedAt: e.now()}
	if err := e.Repo.InsertCompany(ctx, c); err != nil {
		return domain.Company{}, err
	}
	return c, nil
}

func (e Engine) ListCompanies(ctx context.Context, owner string) ([]domain.Company, error) {
	return e.Repo.ListCompanies(ctx, owner)
}

// CreateProject adds a project to a company owned by owner.
func (e Engine) CreateProject(ctx context.Context, owner, companyID, name, jiraKey string) (domain.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Project{}, invalid("name", "is required")
	}
	if _, err := e.Repo.GetCompany(ctx, companyID, owner); err != nil {
		return domain.Project{}, scoped(err, "company", companyID)
	}
	p := domain.Project{
		ID:         newID(),
		CompanyID:  companyID,
		Name:       name,
		JiraKey:    strings.ToUpper(strings.TrimSpace(jiraKey)),
		OwnerEmail: owner,
		CreatedAt:  e.now(),
	}
	if err := e.Repo.InsertProject(ctx, p); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) ListProjects(ctx context.Context, owner, companyID string) ([]domain.Project, error) {
	if _, err := e.Repo.GetCompany(ctx, companyID, owner); err != nil {
		return nil, scoped(err, "company", companyID)
	}
	return e.Repo.ListProjects(ctx, companyID, owner)
}
