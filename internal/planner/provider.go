package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"aicoo/internal/config"
	"aicoo/internal/domain"
)

// Kind classifies a provider call.
type Kind int

const (
	Ok Kind = iota
	QuotaExceeded
	OtherError
)

func (k Kind) String() string {
	switch k {
	case Ok:
		return "ok"
	case QuotaExceeded:
		return "quota_exceeded"
	default:
		return "other_error"
	}
}

type Request struct {
	Title     string
	Metadata  domain.Metadata
	MaxTokens int
}

// Result is the outcome of one provider call. Text is set only for Ok.
type Result struct {
	Kind   Kind
	Text   string
	Detail string
}

func Success(text string) Result { return Result{Kind: Ok, Text: text} }

func Quota(detail string) Result { return Result{Kind: QuotaExceeded, Detail: detail} }

func Failure(detail string) Result { return Result{Kind: OtherError, Detail: detail} }

func failuref(format string, args ...any) Result {
	return Failure(fmt.Sprintf(format, args...))
}

// Provider generates a plan. Implementations never return Go errors; every
// failure is folded into Result.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) Result
}

// Disabled is used when no provider is configured.
type Disabled struct{}

func (Disabled) Name() string { return config.ProviderNone }

func (Disabled) Generate(context.Context, Request) Result {
	return Failure("provider not configured")
}

// NewProvider returns the provider selected by cfg. A missing API key yields Disabled.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Disabled{}, nil
	}
	switch cfg.Provider {
	case config.ProviderNone, "":
		return Disabled{}, nil
	case config.ProviderOpenAI:
		return newOpenAIProvider(cfg), nil
	case config.ProviderAnthropic:
		return newAnthropicProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

// planDocument is the structured answer requested from providers.
type planDocument struct {
	Summary    string   `json:"summary" jsonschema:"description=Two or three sentences on what will be delivered"`
	Steps      []string `json:"steps" jsonschema:"description=Ordered execution steps"`
	Risks      []string `json:"risks" jsonschema:"description=Delivery risks to watch"`
	DataNeeded []string `json:"data_needed" jsonschema:"description=Data or inputs required to execute"`
	Note       string   `json:"note" jsonschema:"description=Anything the owner should know"`
}

// GenerateSchema reflects an inline JSON schema with additional properties disallowed.
func GenerateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

const systemPrompt = `You are the chief operating officer of a fast-growing company.
Turn the task you are given into a concise execution plan.
Answer only with JSON holding summary, steps, risks, data_needed and note.`

func userPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", req.Title)
	keys := req.Metadata.Keys()
	if len(keys) > 0 {
		meta := req.Metadata.Map()
		b.WriteString("Context:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, meta[k])
		}
	}
	return b.String()
}
