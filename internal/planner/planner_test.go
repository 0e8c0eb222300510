package planner_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"aicoo/internal/config"
	"aicoo/internal/domain"
	"aicoo/internal/planner"
)

type fakeProvider struct {
	result planner.Result
	block  bool
	calls  int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(ctx context.Context, _ planner.Request) planner.Result {
	f.calls++
	if f.block {
		<-ctx.Done()
		return planner.Failure(ctx.Err().Error())
	}
	return f.result
}

var _ = Describe("Planner", func() {
	meta := domain.Metadata{Team: "growth", DueDate: "2024-03-01"}

	It("returns provider text when the call succeeds", func() {
		p := planner.New(&fakeProvider{result: planner.Success("Summary:\nship it")}, time.Second, 0)
		text, status := p.Plan(context.Background(), "Launch referral program", meta)
		Expect(status).To(Equal(domain.ProviderOK))
		Expect(text).To(Equal("Summary:\nship it"))
	})

	DescribeTable("falls back on provider failure",
		func(res planner.Result, want domain.ProviderStatus) {
			fake := &fakeProvider{result: res}
			p := planner.New(fake, time.Second, 0)
			text, status := p.Plan(context.Background(), "Launch referral program", meta)
			Expect(status).To(Equal(want))
			Expect(text).To(ContainSubstring("Launch referral program"))
			Expect(fake.calls).To(Equal(1))
		},
		Entry("quota", planner.Quota("429 Too Many Requests"), domain.ProviderFallbackInsufficientQuota),
		Entry("other", planner.Failure("connection refused"), domain.ProviderFallbackError),
		Entry("empty success", planner.Success(""), domain.ProviderFallbackError),
	)

	It("treats a missing provider as a fallback error", func() {
		text, status := planner.New(nil, 0, 0).Plan(context.Background(), "Hire SDR", domain.Metadata{})
		Expect(status).To(Equal(domain.ProviderFallbackError))
		Expect(text).To(ContainSubstring("Hire SDR"))
	})

	It("bounds the provider call by the timeout", func() {
		p := planner.New(&fakeProvider{block: true}, 20*time.Millisecond, 0)
		start := time.Now()
		_, status := p.Plan(context.Background(), "Slow task", domain.Metadata{})
		Expect(status).To(Equal(domain.ProviderFallbackError))
		Expect(time.Since(start)).To(BeNumerically("<", time.Second))
	})
})

var _ = Describe("FallbackPlan", func() {
	It("fills defaults and keeps the fixed sections in order", func() {
		text := planner.FallbackPlan("Close Q3 books", domain.Metadata{}, domain.ProviderFallbackError)
		Expect(text).To(HavePrefix("Summary:\n"))
		Expect(text).To(ContainSubstring("cross-functional team at medium priority. Target date: not set."))
		Expect(text).To(ContainSubstring("budget in INR"))
		Expect(text).To(MatchRegexp(`(?s)Summary:.*Steps:.*Risks:.*DataNeeded:.*Note:`))
		Expect(text).To(HaveSuffix("the AI provider was unavailable."))
	})

	It("substitutes metadata", func() {
		meta := domain.Metadata{Team: "finance", Priority: "high", DueDate: "2024-09-30", Currency: "USD", Dependencies: []string{"auditor"}}
		text := planner.FallbackPlan("Close Q3 books", meta, domain.ProviderFallbackInsufficientQuota)
		Expect(text).To(ContainSubstring("finance team at high priority. Target date: 2024-09-30."))
		Expect(text).To(ContainSubstring("budget in USD"))
		Expect(text).To(ContainSubstring("- Waiting on: auditor."))
		Expect(text).To(ContainSubstring("quota is exhausted"))
	})
})

var _ = Describe("NewProvider", func() {
	It("disables providers without an API key", func() {
		p, err := planner.NewProvider(config.LLMConfig{Provider: config.ProviderOpenAI})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Name()).To(Equal(config.ProviderNone))
		Expect(p.Generate(context.Background(), planner.Request{}).Detail).To(Equal("provider not configured"))
	})

	It("rejects unknown providers", func() {
		_, err := planner.NewProvider(config.LLMConfig{Provider: "mistral", APIKey: "k"})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("OpenAI provider", func() {
	var srv *httptest.Server

	serve := func(status int, body string) planner.Provider {
		srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			fmt.Fprint(w, body)
		}))
		p, err := planner.NewProvider(config.LLMConfig{Provider: config.ProviderOpenAI, APIKey: "sk-test", BaseURL: srv.URL + "/v1/"})
		Expect(err).NotTo(HaveOccurred())
		return p
	}

	AfterEach(func() {
		if srv != nil {
			srv.Close()
		}
	})

	It("classifies an exhausted quota", func() {
		p := serve(http.StatusTooManyRequests, `{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`)
		res := p.Generate(context.Background(), planner.Request{Title: "Audit vendors"})
		Expect(res.Kind).To(Equal(planner.QuotaExceeded))
	})

	It("classifies other API errors", func() {
		p := serve(http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`)
		res := p.Generate(context.Background(), planner.Request{Title: "Audit vendors"})
		Expect(res.Kind).To(Equal(planner.OtherError))
		Expect(res.Detail).To(ContainSubstring("401"))
	})

	It("renders a structured answer", func() {
		content := `{\"summary\":\"Audit all vendors.\",\"steps\":[\"List vendors\",\"Check contracts\"],\"risks\":[],\"data_needed\":[\"Vendor ledger\"],\"note\":\"None.\"}`
		p := serve(http.StatusOK, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"`+content+`"}}],
"usage":{"prompt_tokens":10,"completion_tokens":20,"total_tokens":30}}`)
		res := p.Generate(context.Background(), planner.Request{Title: "Audit vendors"})
		Expect(res.Kind).To(Equal(planner.Ok))
		Expect(res.Text).To(Equal("Summary:\nAudit all vendors.\n\nSteps:\n1. List vendors\n2. Check contracts\n\nRisks:\n- none\n\nDataNeeded:\n- Vendor ledger\n\nNote:\nNone."))
	})
})

var _ = Describe("Anthropic provider", func() {
	var srv *httptest.Server

	serve := func(status int, body string) planner.Provider {
		srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			fmt.Fprint(w, body)
		}))
		p, err := planner.NewProvider(config.LLMConfig{Provider: config.ProviderAnthropic, APIKey: "sk-ant-test", BaseURL: srv.URL})
		Expect(err).NotTo(HaveOccurred())
		return p
	}

	AfterEach(func() {
		if srv != nil {
			srv.Close()
		}
	})

	It("classifies rate limiting as quota", func() {
		p := serve(http.StatusTooManyRequests, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
		Expect(p.Generate(context.Background(), planner.Request{Title: "Audit vendors"}).Kind).To(Equal(planner.QuotaExceeded))
	})

	It("passes free-form text through", func() {
		p := serve(http.StatusOK, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5",
"content":[{"type":"text","text":"Summary:\nCall every vendor."}],"stop_reason":"end_turn","usage":{"input_tokens":5,"output_tokens":7}}`)
		res := p.Generate(context.Background(), planner.Request{Title: "Audit vendors"})
		Expect(res.Kind).To(Equal(planner.Ok))
		Expect(res.Text).To(Equal("Summary:\nCall every vendor."))
	})
})
