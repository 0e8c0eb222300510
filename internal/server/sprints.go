package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"aicoo/internal/domain"
	"aicoo/internal/engine"
	"aicoo/internal/insight"
)

type sprintPath struct {
	SprintID string `path:"sprint_id"`
}

func registerSprints(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-sprint",
		Method:        http.MethodPost,
		Path:          "/sprints",
		Summary:       "Create sprint",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateSprintRequest `json:"body"`
	}) (*output[domain.Sprint], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.CreateSprint(ctx, email, engine.SprintCreateOptions{
			ProjectID:    input.Body.ProjectID,
			Name:         input.Body.Name,
			OwnerEmail:   stringOrEmpty(input.Body.OwnerEmail),
			StartDate:    input.Body.StartDate,
			EndDate:      input.Body.EndDate,
			BaselineDate: input.Body.BaselineDate,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sprints",
		Method:      http.MethodGet,
		Path:        "/sprints",
		Summary:     "List sprints",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
	}) (*output[[]domain.Sprint], error) {
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListSprints(ctx, email, input.ProjectID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(nonNil(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-sprint",
		Method:      http.MethodGet,
		Path:        "/sprints/{sprint_id}",
		Summary:     "Get sprint with recomputed risk",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *sprintPath) (*output[domain.Sprint], error) {
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.GetSprint(ctx, email, input.SprintID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sprint-risk",
		Method:      http.MethodGet,
		Path:        "/sprints/{sprint_id}/risk",
		Summary:     "Explain sprint risk",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *sprintPath) (*output[insight.RiskReport], error) {
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		r, err := e.SprintRisk(ctx, email, input.SprintID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(r), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sprint-alerts",
		Method:      http.MethodGet,
		Path:        "/sprints/{sprint_id}/alerts",
		Summary:     "Sprint alerts",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *sprintPath) (*output[[]insight.Alert], error) {
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		alerts, err := e.SprintAlerts(ctx, email, input.SprintID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(nonNil(alerts)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sprint-insights",
		Method:      http.MethodGet,
		Path:        "/sprints/{sprint_id}/insights",
		Summary:     "Sprint insights",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *sprintPath) (*output[insight.Insights], error) {
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ins, err := e.SprintInsights(ctx, email, input.SprintID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(ins), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-collaborator",
		Method:        http.MethodPost,
		Path:          "/sprints/{sprint_id}/collaborators",
		Summary:       "Share sprint with a collaborator",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SprintID string                 `path:"sprint_id"`
		Body     AddCollaboratorRequest `json:"body"`
	}) (*output[[]domain.SprintCollaborator], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.AddCollaborator(ctx, email, input.SprintID, input.Body.Email)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(nonNil(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-collaborators",
		Method:      http.MethodGet,
		Path:        "/sprints/{sprint_id}/collaborators",
		Summary:     "List sprint collaborators",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *sprintPath) (*output[[]domain.SprintCollaborator], error) {
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListCollaborators(ctx, email, input.SprintID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(nonNil(items)), nil
	})
}

func registerIssues(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-issue",
		Method:        http.MethodPost,
		Path:          "/sprints/{sprint_id}/issues",
		Summary:       "Add issue to sprint",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		SprintID string             `path:"sprint_id"`
		Body     CreateIssueRequest `json:"body"`
	}) (*output[domain.Issue], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		issue, err := e.AddIssue(ctx, email, input.SprintID, engine.IssueCreateOptions{
			Key:       stringOrEmpty(input.Body.Key),
			Title:     input.Body.Title,
			Status:    stringOrEmpty(input.Body.Status),
			Assignee:  stringOrEmpty(input.Body.Assignee),
			IsBlocker: input.Body.IsBlocker,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(issue), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-issues",
		Method:      http.MethodGet,
		Path:        "/sprints/{sprint_id}/issues",
		Summary:     "List sprint issues",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *sprintPath) (*output[[]domain.Issue], error) {
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListIssues(ctx, email, input.SprintID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(nonNil(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-issue",
		Method:      http.MethodPatch,
		Path:        "/sprints/{sprint_id}/issues/{issue_id}",
		Summary:     "Update issue",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SprintID string             `path:"sprint_id"`
		IssueID  string             `path:"issue_id"`
		Body     UpdateIssueRequest `json:"body"`
	}) (*output[domain.Issue], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		issue, err := e.UpdateIssue(ctx, email, input.SprintID, input.IssueID, engine.IssueUpdateOptions{
			Status:    input.Body.Status,
			Assignee:  input.Body.Assignee,
			IsBlocker: input.Body.IsBlocker,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(issue), nil
	})
}
