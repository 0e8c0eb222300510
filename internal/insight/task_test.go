package insight_test

import (
	"fmt"
	"math"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"aicoo/internal/domain"
	"aicoo/internal/insight"
)

func weight(v float64) *float64 { return &v }

func ownedTasks(owner string, n int, status domain.TaskStatus) []domain.Task {
	tasks := make([]domain.Task, n)
	for i := range tasks {
		tasks[i] = domain.Task{ID: fmt.Sprintf("other-%d", i), Title: "Other", Status: status, OwnerEmail: owner}
	}
	return tasks
}

var _ = Describe("AssessTask", func() {
	It("adds overload risk for owners with more than three active tasks", func() {
		t := domain.Task{ID: "t0", Title: "Ship", Status: domain.TaskPending, OwnerEmail: "a@x.com"}
		related := append([]domain.Task{t}, ownedTasks("a@x.com", 5, domain.TaskInProgress)...)
		r := insight.AssessTask(t, related)
		Expect(r.OverloadRisk).To(BeNumerically("~", 0.4, 1e-9))
		Expect(r.Score).To(BeNumerically("~", 0.412, 1e-9))
		Expect(r.Level).To(Equal(domain.RiskMedium))
		Expect(r.Reasons).To(Equal([]string{"Owner has several active items; consider load balancing"}))
	})

	It("ignores completed tasks and other owners when measuring load", func() {
		t := domain.Task{ID: "t0", Title: "Ship", Status: domain.TaskPending, OwnerEmail: "a@x.com"}
		related := append(ownedTasks("a@x.com", 5, domain.TaskCompleted), ownedTasks("b@x.com", 5, domain.TaskPending)...)
		r := insight.AssessTask(t, related)
		Expect(r.OverloadRisk).To(BeZero())
		Expect(r.Reasons).To(Equal([]string{"No major risk signals detected; keep monitoring"}))
	})

	It("counts metadata dependencies and the prerequisite", func() {
		t := domain.Task{
			Title:              "Ship",
			Status:             domain.TaskCompleted,
			PrerequisiteTaskID: "p1",
			Metadata:           domain.Metadata{Dependencies: []string{"vendor", "legal"}},
		}
		Expect(insight.DependencyCount(t)).To(Equal(3))
		r := insight.AssessTask(t, nil)
		Expect(r.DependencyRisk).To(BeNumerically("~", 0.45, 1e-9))
		Expect(r.Reasons).To(ContainElement("Multiple dependencies could block delivery"))
	})

	It("flags verbose tasks as complex", func() {
		t := domain.Task{Title: "Plan", ResultText: strings.Repeat("word ", 70), Status: domain.TaskCompleted}
		r := insight.AssessTask(t, nil)
		Expect(r.Complexity).To(BeNumerically(">", 0.5))
		Expect(r.Reasons).To(Equal([]string{"Task description is lengthy/complex; buffer time recommended"}))
	})

	It("keeps scores within bounds", func() {
		t := domain.Task{
			ID:         "t0",
			Title:      strings.Repeat("long ", 200),
			Status:     domain.TaskPending,
			OwnerEmail: "a@x.com",
			Metadata:   domain.Metadata{Dependencies: []string{"a", "b", "c", "d", "e", "f", "g", "h"}},
		}
		r := insight.AssessTask(t, ownedTasks("a@x.com", 12, domain.TaskPending))
		Expect(r.Score).To(BeNumerically("<=", 1))
		Expect(r.DelayProbability).To(Equal(1.0))
		Expect(r.Level).To(Equal(domain.RiskCritical))
	})

	DescribeTable("TaskRiskLevel thresholds",
		func(score float64, want domain.RiskLevel) {
			Expect(insight.TaskRiskLevel(score)).To(Equal(want))
		},
		Entry("low", 0.24, domain.RiskLow),
		Entry("medium", 0.25, domain.RiskMedium),
		Entry("high", 0.5, domain.RiskHigh),
		Entry("critical", 0.75, domain.RiskCritical),
	)
})

var _ = Describe("ClassifyPriority", func() {
	DescribeTable("weighs metadata signals",
		func(meta domain.Metadata, prereq string, want domain.Priority) {
			t := domain.Task{Metadata: meta, PrerequisiteTaskID: prereq}
			Expect(insight.ClassifyPriority(t)).To(Equal(want))
		},
		Entry("defaults", domain.Metadata{}, "", domain.PriorityMedium),
		Entry("everything maxed", domain.Metadata{Impact: weight(1), Urgency: weight(1), OKRAlignment: weight(1), UserImportance: weight(1)}, "", domain.PriorityCritical),
		Entry("impact and urgency maxed", domain.Metadata{Impact: weight(1), Urgency: weight(1)}, "", domain.PriorityHigh),
		Entry("everything zero", domain.Metadata{Impact: weight(0), Urgency: weight(0), OKRAlignment: weight(0), UserImportance: weight(0)}, "", domain.PriorityLow),
		Entry("dependencies pull priority down",
			domain.Metadata{Impact: weight(1), Urgency: weight(1), OKRAlignment: weight(1), UserImportance: weight(1), Dependencies: []string{"x"}}, "p1", domain.PriorityHigh),
		Entry("non-finite strings fall back to defaults",
			domain.MetadataFromMap(map[string]any{"impact": "NaN", "urgency": "Inf", "okr_alignment": "-Inf"}), "", domain.PriorityMedium),
	)

	It("defaults malformed weights", func() {
		meta := domain.MetadataFromMap(map[string]any{"impact": "not a number", "urgency": "0.9"})
		t := domain.Task{Metadata: meta}
		Expect(insight.PriorityScore(t)).To(BeNumerically("~", 0.15+0.27+0.1+0.075, 1e-9))
	})

	It("keeps the score finite for NaN and Inf weights", func() {
		meta := domain.MetadataFromMap(map[string]any{"impact": "NaN", "urgency": "+Inf", "user_importance": math.Inf(1)})
		Expect(meta.Impact).To(BeNil())
		Expect(meta.Urgency).To(BeNil())
		Expect(meta.UserImportance).To(BeNil())
		Expect(insight.PriorityScore(domain.Task{Metadata: meta})).To(BeNumerically("~", 0.475, 1e-9))
	})
})

var _ = Describe("DetectPhase", func() {
	DescribeTable("classifies by keyword in priority order",
		func(text string, want domain.Phase) {
			Expect(insight.DetectPhase(text)).To(Equal(want))
		},
		Entry("spec beats test", "Write spec and test plan", domain.PhaseDesign),
		Entry("build", "Implement API", domain.PhaseBuild),
		Entry("test", "QA regression", domain.PhaseTest),
		Entry("launch phrase", "Go live with release", domain.PhaseLaunch),
		Entry("unknown", "Plan offsite", domain.PhaseUnknown),
	)
})

var _ = Describe("NextSteps", func() {
	It("describes an unblocked design task", func() {
		t := domain.Task{Title: "Draft PRD for onboarding"}
		Expect(insight.NextSteps(t, nil)).To(Equal(
			"No blocking prerequisites detected.\n" +
				"Operational next steps: finalize requirements, get stakeholder sign-off, then hand over to engineering."))
	})

	It("reports an incomplete prerequisite", func() {
		prereq := domain.Task{ID: "p1", Title: "Write PRD", Status: domain.TaskInProgress}
		t := domain.Task{Title: "Implement checkout", PrerequisiteTaskID: "p1"}
		Expect(insight.NextSteps(t, &prereq)).To(Equal(
			"This task is blocked by prerequisite task \"Write PRD\", which is not yet complete.\n" +
				"Operational next steps: assign an owner and complete the prerequisite task."))
	})

	It("falls through to the phase once the prerequisite completes", func() {
		prereq := domain.Task{ID: "p1", Title: "Write PRD", Status: domain.TaskCompleted}
		t := domain.Task{Title: "Implement checkout", PrerequisiteTaskID: "p1"}
		Expect(insight.NextSteps(t, &prereq)).To(HavePrefix("No blocking prerequisites detected.\nOperational next steps: confirm design/PRD"))
	})

	It("notes a dangling prerequisite reference", func() {
		t := domain.Task{Title: "Rollout pricing", PrerequisiteTaskID: "gone"}
		Expect(insight.NextSteps(t, nil)).To(Equal(
			"Prerequisite task reference is configured but could not be loaded.\n" +
				"Operational next steps: verify testing is complete, align on rollout plan, and monitor after deployment."))
	})

	It("prefers the KPI analysis step over phases", func() {
		t := domain.Task{Title: "KPI analysis for Q3 release"}
		Expect(insight.NextSteps(t, nil)).To(HaveSuffix("Operational next steps: attach KPI data and begin analysis."))
	})
})
