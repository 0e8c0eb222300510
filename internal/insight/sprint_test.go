package insight_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"aicoo/internal/domain"
	"aicoo/internal/insight"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func openIssues(n int) []domain.Issue {
	issues := make([]domain.Issue, n)
	for i := range issues {
		issues[i] = domain.Issue{ID: string(rune('a' + i)), Key: "SP-" + string(rune('1'+i)), Title: "Build API", Status: "open", CreatedAt: ptr(date(2024, 1, 2))}
	}
	return issues
}

func tenDaySprint(issues []domain.Issue) domain.Sprint {
	return domain.Sprint{
		ID:        "s1",
		Name:      "Checkout",
		StartDate: date(2024, 1, 1),
		EndDate:   date(2024, 1, 11),
		Issues:    issues,
	}
}

var _ = Describe("ScoreSprint", func() {
	now := date(2024, 1, 6)

	It("scores an empty sprint as low risk", func() {
		s := tenDaySprint(nil)
		insight.ScoreSprint(&s, now)
		Expect(s.RiskScore).To(BeZero())
		Expect(s.RiskLevel).To(Equal(domain.RiskLow))
		Expect(s.LastEvaluatedAt).NotTo(BeNil())
		Expect(*s.LastEvaluatedAt).To(Equal(now))
	})

	It("combines open ratio, elapsed time and blockers", func() {
		issues := openIssues(4)
		issues[0].IsBlocker = true
		s := tenDaySprint(issues)
		insight.ScoreSprint(&s, now)
		Expect(s.RiskScore).To(BeNumerically("~", 0.85, 1e-9))
		Expect(s.RiskLevel).To(Equal(domain.RiskHigh))
	})

	It("only counts elapsed time when every issue is done", func() {
		issues := openIssues(2)
		issues[0].Status = "Done"
		issues[1].Status = "CLOSED"
		s := tenDaySprint(issues)
		insight.ScoreSprint(&s, now)
		Expect(s.RiskScore).To(BeNumerically("~", 0.15, 1e-9))
		Expect(s.RiskLevel).To(Equal(domain.RiskLow))
	})

	It("clamps scores pushed above one by blockers", func() {
		issues := openIssues(6)
		for i := range issues {
			issues[i].IsBlocker = true
		}
		s := tenDaySprint(issues)
		insight.ScoreSprint(&s, date(2024, 2, 1))
		Expect(s.RiskScore).To(Equal(1.0))
	})

	It("guards zero-length sprints", func() {
		s := domain.Sprint{StartDate: now, EndDate: now, Issues: openIssues(1)}
		insight.ScoreSprint(&s, now)
		Expect(s.RiskScore).To(BeNumerically("~", 0.9, 1e-9))
	})

	It("is idempotent for unchanged input", func() {
		issues := openIssues(3)
		issues[1].Status = "resolved"
		first := tenDaySprint(issues)
		second := tenDaySprint(issues)
		insight.ScoreSprint(&first, now)
		insight.ScoreSprint(&second, now)
		insight.ScoreSprint(&second, now)
		Expect(second.RiskScore).To(Equal(first.RiskScore))
		Expect(second.RiskLevel).To(Equal(first.RiskLevel))
	})

	DescribeTable("SprintRiskLevel thresholds",
		func(score float64, want domain.RiskLevel) {
			Expect(insight.SprintRiskLevel(score)).To(Equal(want))
		},
		Entry("zero", 0.0, domain.RiskLow),
		Entry("at medium boundary", 0.4, domain.RiskLow),
		Entry("just above 0.4", 0.41, domain.RiskMedium),
		Entry("at high boundary", 0.7, domain.RiskMedium),
		Entry("just above 0.7", 0.71, domain.RiskHigh),
		Entry("one", 1.0, domain.RiskHigh),
	)
})

var _ = Describe("SprintRiskReport", func() {
	It("explains the score", func() {
		issues := openIssues(4)
		issues[0].IsBlocker = true
		issues[2].Status = "done"
		issues[3].Status = "Closed"
		s := tenDaySprint(issues)
		insight.ScoreSprint(&s, date(2024, 1, 6))
		r := insight.SprintRiskReport(s)
		Expect(r.OpenIssues).To(Equal(2))
		Expect(r.TotalIssues).To(Equal(4))
		Expect(r.Blockers).To(Equal(1))
		Expect(r.Explanation).To(Equal("Sprint 'Checkout' is currently rated as MEDIUM risk with a score of 0.55. 2 out of 4 issues are still open, and 1 are marked as blockers. End date: 2024-01-11."))
	})
})

var _ = Describe("SprintAlerts", func() {
	now := date(2024, 1, 6)

	alertKinds := func(alerts []insight.Alert) []string {
		var out []string
		for _, a := range alerts {
			out = append(out, string(a.Type)+"/"+string(a.Level))
		}
		return out
	}

	It("reports a stale blocker on a high risk sprint as critical", func() {
		issues := openIssues(4)
		issues[0].IsBlocker = true
		issues[0].UpdatedAt = ptr(now.Add(-48 * time.Hour))
		s := tenDaySprint(issues)
		insight.ScoreSprint(&s, now)
		Expect(alertKinds(insight.SprintAlerts(s, now))).To(Equal([]string{"risk/critical", "blocker/critical"}))
	})

	It("warns on blockers younger than a day", func() {
		issues := openIssues(1)
		issues[0].IsBlocker = true
		issues[0].UpdatedAt = ptr(now.Add(-2 * time.Hour))
		s := tenDaySprint(issues)
		s.RiskLevel = domain.RiskLow
		Expect(alertKinds(insight.SprintAlerts(s, now))).To(Equal([]string{"blocker/warning"}))
	})

	It("treats blockers without timestamps as fresh", func() {
		issues := []domain.Issue{{Key: "SP-1", Title: "x", Status: "open", IsBlocker: true}}
		s := tenDaySprint(issues)
		Expect(alertKinds(insight.SprintAlerts(s, now))).To(Equal([]string{"blocker/warning"}))
	})

	It("ignores closed blockers", func() {
		issues := openIssues(1)
		issues[0].IsBlocker = true
		issues[0].Status = "Resolved"
		s := tenDaySprint(issues)
		Expect(insight.SprintAlerts(s, now)).To(BeEmpty())
	})

	It("warns close to the deadline and escalates once overdue", func() {
		s := tenDaySprint(openIssues(1))
		s.RiskLevel = domain.RiskLow
		Expect(alertKinds(insight.SprintAlerts(s, time.Date(2024, 1, 9, 12, 0, 0, 0, time.UTC)))).To(Equal([]string{"deadline/warning"}))
		Expect(alertKinds(insight.SprintAlerts(s, date(2024, 1, 13)))).To(Equal([]string{"deadline/critical"}))
	})

	It("skips the deadline alert when nothing is open", func() {
		issues := openIssues(1)
		issues[0].Status = "done"
		s := tenDaySprint(issues)
		Expect(insight.SprintAlerts(s, date(2024, 1, 13))).To(BeEmpty())
	})

	It("flags assignees with four or more open issues", func() {
		issues := openIssues(5)
		for i := range issues[:4] {
			issues[i].Assignee = "dev@x.com"
		}
		issues[4].Assignee = "qa@x.com"
		s := tenDaySprint(issues)
		s.RiskLevel = domain.RiskMedium
		alerts := insight.SprintAlerts(s, now)
		Expect(alertKinds(alerts)).To(Equal([]string{"risk/warning", "assignee/info"}))
		Expect(alerts[1].Message).To(ContainSubstring("dev@x.com"))
	})
})

var _ = Describe("SprintInsights", func() {
	It("derives steps, risks and data gaps for an active sprint", func() {
		issues := openIssues(4)
		issues[0].IsBlocker = true
		for i := range issues[1:] {
			issues[i+1].Assignee = "dev@x.com"
		}
		s := tenDaySprint(issues)
		now := date(2024, 1, 6)
		insight.ScoreSprint(&s, now)
		s.LastEvaluatedAt = nil

		ins := insight.SprintInsights(s, now)
		Expect(ins.NextSteps).To(HaveLen(2))
		Expect(ins.TriggeredRisks).To(Equal([]string{
			"Some issues have no assignee.",
			"Blocking issues are present.",
			"Sprint risk level is high.",
		}))
		Expect(ins.DataNeeded).To(HaveLen(2))
		Expect(ins.Snapshot).To(Equal(insight.Snapshot{TasksTotal: 4, TasksCompleted: 0, RisksOpen: 3, DaysActive: 5}))
		Expect(ins.Label).To(Equal("At risk"))
		Expect(s.RiskLevel).To(Equal(domain.RiskHigh))
	})

	It("flags stale sprints and analysis without data", func() {
		s := domain.Sprint{
			OwnerEmail: "owner@x.com",
			StartDate:  date(2024, 1, 1),
			EndDate:    date(2024, 1, 11),
			Issues: []domain.Issue{
				{Title: "Churn analysis", Status: "open", Assignee: "a@x.com", CreatedAt: ptr(date(2024, 1, 2))},
				{Title: "Setup", Status: "done", Assignee: "b@x.com", CreatedAt: ptr(date(2024, 1, 2))},
			},
			RiskLevel: domain.RiskLow,
		}
		ins := insight.SprintInsights(s, date(2024, 1, 20))
		Expect(ins.NextSteps).To(ContainElement("Post a status update; nothing has moved in the last 7 days."))
		Expect(ins.TriggeredRisks).To(Equal([]string{"No sprint activity for more than 10 days."}))
		Expect(ins.DataNeeded).To(ContainElement("Analysis work is planned but no data source is attached."))
		Expect(ins.Snapshot.RisksOpen).To(Equal(1))
		Expect(ins.Snapshot.DaysActive).To(Equal(19))
		Expect(ins.Label).To(Equal("On track"))
	})

	It("asks for KPIs on an empty sprint", func() {
		baseline := date(2024, 1, 11)
		s := domain.Sprint{OwnerEmail: "owner@x.com", StartDate: date(2024, 1, 1), EndDate: date(2024, 1, 11), BaselineDate: &baseline}
		now := date(2024, 1, 3)
		Expect(insight.LastActivity(s, now)).To(Equal(now))
		ins := insight.SprintInsights(s, now)
		Expect(ins.NextSteps).To(HaveLen(2))
		Expect(ins.DataNeeded[0]).To(Equal("Define the KPIs this sprint should move."))
		Expect(ins.DataNeeded).To(HaveLen(2))
		Expect(ins.Snapshot.TasksTotal).To(BeZero())
	})

	It("never reports negative active days", func() {
		s := tenDaySprint(nil)
		ins := insight.SprintInsights(s, date(2023, 12, 25))
		Expect(ins.Snapshot.DaysActive).To(BeZero())
	})
})
