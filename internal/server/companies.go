package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"aicoo/internal/domain"
	"aicoo/internal/engine"
)

func registerCompanies(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-company",
		Method:        http.MethodPost,
		Path:          "/companies",
		Summary:       "Create company",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateCompanyRequest `json:"body"`
	}) (*output[domain.Company], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateCompany(ctx, email, input.Body.Name)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-companies",
		Method:      http.MethodGet,
		Path:        "/companies",
		Summary:     "List companies",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*output[[]domain.Company], error) {
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListCompanies(ctx, email)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(nonNil(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/companies/{company_id}/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		CompanyID string               `path:"company_id"`
		Body      CreateProjectRequest `json:"body"`
	}) (*output[domain.Project], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, email, input.CompanyID, input.Body.Name, stringOrEmpty(input.Body.JiraKey))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/companies/{company_id}/projects",
		Summary:     "List projects of a company",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CompanyID string `path:"company_id"`
	}) (*output[[]domain.Project], error) {
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListProjects(ctx, email, input.CompanyID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(nonNil(items)), nil
	})
}
