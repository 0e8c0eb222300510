package planner

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"aicoo/internal/config"
)

type openaiProvider struct {
	client openai.Client
	model  string
}

func newOpenAIProvider(cfg config.LLMConfig) *openaiProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &openaiProvider{client: openai.NewClient(opts...), model: model}
}

func (p *openaiProvider) Name() string { return config.ProviderOpenAI }

func (p *openaiProvider) Generate(ctx context.Context, req Request) Result {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1200
	}
	params := openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt(req)),
		},
		MaxTokens: openai.Int(int64(maxTokens)),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "execution_plan",
					Description: openai.String("Execution plan for one task"),
					Schema:      GenerateSchema[planDocument](),
					Strict:      openai.Bool(true),
				},
			},
		},
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return classifyOpenAIError(err)
	}
	slog.DebugContext(ctx, "plan generated",
		"provider", p.Name(),
		"model", p.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return Failure("no choices in response")
	}
	content := resp.Choices[0].Message.Content
	var doc planDocument
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return failuref("unmarshal plan: %v", err)
	}
	return Success(renderPlan(doc))
}

func classifyOpenAIError(err error) Result {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.Code == "insufficient_quota" {
			return Quota(apiErr.Message)
		}
		return failuref("openai status %d: %s", apiErr.StatusCode, apiErr.Message)
	}
	return failuref("openai: %v", err)
}
