package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"aicoo/internal/engine"
	"aicoo/internal/insight"
)

func registerIntelligence(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "analysis",
		Method:      http.MethodGet,
		Path:        "/intelligence/analysis",
		Summary:     "Risk, load and execution analysis over the caller's tasks",
		Errors:      []int{http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*output[insight.Analysis], error) {
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.Analysis(ctx, email)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		a.Risk = nonNil(a.Risk)
		a.LoadBalance = nonNil(a.LoadBalance)
		return reply(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "breakdown",
		Method:      http.MethodPost,
		Path:        "/intelligence/breakdown",
		Summary:     "Split a project title into delivery steps",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body BreakdownRequest `json:"body"`
	}) (*output[insight.Breakdown], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		b, err := e.Breakdown(input.Body.Title, stringOrEmpty(input.Body.Squad))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(b), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "compliance",
		Method:      http.MethodGet,
		Path:        "/intelligence/compliance",
		Summary:     "Statutory compliance checklist",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Company string `query:"company"`
	}) (*output[ComplianceResponse], error) {
		return reply(ComplianceResponse{Company: input.Company, Actions: e.Compliance(input.Company)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "advisor",
		Method:      http.MethodGet,
		Path:        "/intelligence/advisors/{department}",
		Summary:     "Department advisor recommendation",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Department string `path:"department"`
	}) (*output[insight.Advisor], error) {
		return reply(e.Advisor(input.Department)), nil
	})
}
