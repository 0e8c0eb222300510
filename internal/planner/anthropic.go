package planner

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"aicoo/internal/config"
)

type anthropicProvider struct {
	client anthropic.Client
	model  string
}

func newAnthropicProvider(cfg config.LLMConfig) *anthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	return &anthropicProvider{client: anthropic.NewClient(opts...), model: model}
}

func (p *anthropicProvider) Name() string { return config.ProviderAnthropic }

func (p *anthropicProvider) Generate(ctx context.Context, req Request) Result {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1200
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			{
				Role:    anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(userPrompt(req))},
			},
		},
	}

	start := time.Now()
	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return classifyAnthropicError(err)
	}
	slog.DebugContext(ctx, "plan generated",
		"provider", p.Name(),
		"model", p.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"stop_reason", resp.StopReason)

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return Success(planFromText(text.String()))
}

// planFromText renders a JSON answer in the standard layout and passes
// free-form answers through untouched.
func planFromText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	var doc planDocument
	if err := json.Unmarshal([]byte(strings.TrimSpace(trimmed)), &doc); err != nil || doc.Summary == "" {
		return strings.TrimSpace(raw)
	}
	return renderPlan(doc)
}

func classifyAnthropicError(err error) Result {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return Quota("anthropic rate limited")
		}
		return failuref("anthropic status %d", apiErr.StatusCode)
	}
	return failuref("anthropic: %v", err)
}
