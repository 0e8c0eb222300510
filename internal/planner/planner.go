package planner

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"aicoo/internal/domain"
	"aicoo/internal/telemetry"
)

const defaultTimeout = 30 * time.Second

// Planner makes a single provider attempt and falls back to a local plan.
type Planner struct {
	Provider  Provider
	Timeout   time.Duration
	MaxTokens int
}

func New(p Provider, timeout time.Duration, maxTokens int) *Planner {
	if p == nil {
		p = Disabled{}
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Planner{Provider: p, Timeout: timeout, MaxTokens: maxTokens}
}

// Plan returns the plan text and which path produced it. It never fails.
func (p *Planner) Plan(ctx context.Context, title string, meta domain.Metadata) (string, domain.ProviderStatus) {
	ctx, span := telemetry.Tracer().Start(ctx, "planner.plan")
	defer span.End()
	span.SetAttributes(attribute.String("provider", p.Provider.Name()))

	callCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	start := time.Now()
	res := p.Provider.Generate(callCtx, Request{Title: title, Metadata: meta, MaxTokens: p.MaxTokens})
	elapsed := time.Since(start)

	var status domain.ProviderStatus
	text := res.Text
	switch res.Kind {
	case Ok:
		status = domain.ProviderOK
		if text == "" {
			status = domain.ProviderFallbackError
			text = FallbackPlan(title, meta, status)
		}
	case QuotaExceeded:
		status = domain.ProviderFallbackInsufficientQuota
		text = FallbackPlan(title, meta, status)
	default:
		status = domain.ProviderFallbackError
		text = FallbackPlan(title, meta, status)
	}

	if status != domain.ProviderOK {
		span.SetStatus(codes.Error, res.Detail)
		slog.WarnContext(ctx, "plan provider failed, using fallback",
			"provider", p.Provider.Name(),
			"kind", res.Kind.String(),
			"detail", res.Detail)
	}
	span.SetAttributes(attribute.String("provider_status", string(status)))
	telemetry.RecordPlan(ctx, p.Provider.Name(), string(status), elapsed)
	return text, status
}
