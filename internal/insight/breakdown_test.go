package insight_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"aicoo/internal/domain"
	"aicoo/internal/insight"
)

var _ = Describe("DetectLanguage", func() {
	DescribeTable("matches hints in table order",
		func(text, want string) {
			Expect(insight.DetectLanguage(text)).To(Equal(want))
		},
		Entry("hindi", "Launch app kal tak", "hindi"),
		Entry("shared hint resolves to the first language", "Report KARNA", "hindi"),
		Entry("tamil", "Invoice venum", "tamil"),
		Entry("english hint", "Complete the onboarding task", "english"),
		Entry("no hint defaults to english", "Finish report", "english"),
	)
})

var _ = Describe("ProjectBreakdown", func() {
	It("normalizes non-english titles before splitting", func() {
		b := insight.ProjectBreakdown("Report aaj karna hai", "")
		Expect(b.InputLanguage).To(Equal("hindi"))
		Expect(b.NormalizedTitle).To(Equal("Report today must be done"))
		Expect(b.SuggestedSquad).To(Equal("cross-functional"))
		Expect(b.Tasks).To(HaveLen(8))
		Expect(b.Tasks[0]).To(Equal(insight.BreakdownTask{
			Title:  "Report today must be done – Define scope and success metrics",
			Status: domain.TaskPending,
		}))
		Expect(b.Tasks[7].Title).To(HaveSuffix("Publish learnings and next iteration plan"))
	})

	It("leaves english titles untouched", func() {
		b := insight.ProjectBreakdown("Finish report", "growth")
		Expect(b.NormalizedTitle).To(Equal("Finish report"))
		Expect(b.SuggestedSquad).To(Equal("growth"))
	})
})

var _ = Describe("ComplianceActions", func() {
	It("prefixes every action with the company", func() {
		actions := insight.ComplianceActions("Acme")
		Expect(actions).To(HaveLen(5))
		for _, a := range actions {
			Expect(a).To(HavePrefix("Acme: "))
		}
	})

	It("falls back to a generic subject", func() {
		Expect(insight.ComplianceActions("")[0]).To(Equal("the company: File monthly GST returns (GSTR-1/GSTR-3B) on time"))
	})
})

var _ = Describe("Advisors", func() {
	advisors := insight.NewAdvisors()

	It("looks departments up case-insensitively", func() {
		Expect(advisors.For("Finance").Recommendation).To(Equal("Monitor revenue leakage, reconcile payouts, and stay compliant with GST/TDS timelines."))
	})

	It("falls back to the generic advisor", func() {
		adv := advisors.For("legal")
		Expect(adv.Department).To(Equal("generic"))
		Expect(adv.Recommendation).To(Equal("Focus on clear ownership, measurable outcomes, and unblock dependencies early."))
	})
})
