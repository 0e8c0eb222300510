package insight_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"aicoo/internal/domain"
	"aicoo/internal/insight"
)

var _ = Describe("Analyze", func() {
	tasks := []domain.Task{
		{ID: "t1", Title: "Ship", Status: domain.TaskCompleted, Squad: "growth", OwnerEmail: "a@x.com"},
		{ID: "t2", Title: "Build", Status: domain.TaskInProgress, OwnerEmail: "a@x.com", PrerequisiteTaskID: "t1"},
		{ID: "t3", Title: "Audit", Status: domain.TaskPending, Squad: "growth", OwnerEmail: "a@x.com"},
	}

	It("orders risk cards by score, highest first", func() {
		a := insight.Analyze(tasks)
		Expect(a.TasksAnalyzed).To(Equal(3))
		Expect(a.Risk).To(HaveLen(3))
		Expect(a.Risk[0].ID).To(Equal("t2"))
		Expect(a.Risk[2].ID).To(Equal("t1"))
		for i := 1; i < len(a.Risk); i++ {
			Expect(a.Risk[i-1].RiskScore).To(BeNumerically(">=", a.Risk[i].RiskScore))
		}
		Expect(a.Risk[0].Priority).To(Equal(domain.PriorityMedium))
	})

	It("groups load by squad in order of appearance", func() {
		Expect(insight.LoadBalance(tasks)).To(Equal([]insight.SquadLoad{
			{Squad: "growth", Active: 1, Completed: 1, Suggestion: "Load healthy"},
			{Squad: "unassigned", Active: 1, Completed: 0, Suggestion: "Load healthy"},
		}))
	})

	It("suggests rebalancing busy squads", func() {
		busy := ownedTasks("a@x.com", 6, domain.TaskPending)
		Expect(insight.LoadBalance(busy)[0].Suggestion).To(Equal("Rebalance work"))
	})

	It("summarizes execution progress", func() {
		plan := insight.BuildExecutionPlan(tasks)
		Expect(plan.Summary).To(Equal("1/3 tasks done; 1 currently in progress"))
		Expect(plan.Actionable).To(HaveLen(3))
	})

	It("reports green health when there is nothing to score", func() {
		h := insight.SprintHealth(nil)
		Expect(h.Status).To(Equal("green"))
		Expect(h.Message).To(Equal("No tasks found"))
		Expect(h.AvgRiskScore).To(BeNil())
	})

	It("averages task risk for health", func() {
		h := insight.SprintHealth([]domain.Task{{ID: "t1", Title: "Ship", Status: domain.TaskPending}})
		Expect(h.Status).To(Equal("low"))
		Expect(*h.AvgRiskScore).To(BeNumerically("~", 0.092, 1e-9))
		Expect(h.Notes).To(Equal("On track"))
	})

	It("asks for check-ins when average risk is high", func() {
		h := insight.SprintHealth(ownedTasks("a@x.com", 12, domain.TaskPending))
		Expect(h.Notes).To(Equal("Increase check-ins"))
	})
})
