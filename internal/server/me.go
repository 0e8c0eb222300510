package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"aicoo/internal/engine"
)

func registerAuth(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/auth/me",
		Summary:     "Current caller",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*output[WhoAmIResponse], error) {
		p, ok := principalFromContext(ctx)
		if !ok || p.Email == "" {
			return nil, notLoggedIn()
		}
		return reply(WhoAmIResponse{Email: p.Email, Source: p.Source}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/auth/api-keys",
		Summary:       "Issue an API key; the plaintext is only returned once",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body *CreateAPIKeyRequest `json:"body,omitempty" required:"false"`
	}) (*output[APIKeyResponse], error) {
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		name := ""
		if input.Body != nil {
			name = stringOrEmpty(input.Body.Name)
		}
		plain, key, err := e.CreateAPIKey(ctx, email, name)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(apiKeyResponse(key, plain)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/auth/api-keys",
		Summary:     "List the caller's API keys",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*output[[]APIKeyResponse], error) {
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.ListAPIKeys(ctx, email)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		out := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			out = append(out, apiKeyResponse(k, ""))
		}
		return reply(out), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-api-key",
		Method:        http.MethodDelete,
		Path:          "/auth/api-keys/{key_id}",
		Summary:       "Revoke an API key",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteAPIKey(ctx, email, input.KeyID); err != nil {
			return nil, handleError(ctx, err)
		}
		return nil, nil
	})
}
