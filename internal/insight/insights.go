package insight

import (
	"strings"
	"time"

	"aicoo/internal/domain"
)

type Snapshot struct {
	TasksTotal     int `json:"tasks_total"`
	TasksCompleted int `json:"tasks_completed"`
	RisksOpen      int `json:"risks_open"`
	DaysActive     int `json:"days_active"`
}

// Insights is coaching output for a sprint. It uses its own thresholds and is
// independent of SprintAlerts.
type Insights struct {
	NextSteps      []string `json:"next_steps"`
	TriggeredRisks []string `json:"triggered_risks"`
	DataNeeded     []string `json:"data_needed"`
	Snapshot       Snapshot `json:"snapshot"`
	Label          string   `json:"label"`
}

const (
	staleNextStepAfter = 7 * day
	staleRiskAfter     = 10 * day
	slowSprintAge      = 14 * day
	slowSprintPct      = 30.0
)

var (
	dataKeywords     = []string{"data", "dashboard", "report"}
	analysisKeywords = []string{"analysis", "investigation"}
)

// LastActivity is the latest of issue updates, issue creation, the last
// evaluation and the sprint start. A sprint with no issues and no evaluation
// counts as active now.
func LastActivity(s domain.Sprint, now time.Time) time.Time {
	if len(s.Issues) == 0 && s.LastEvaluatedAt == nil {
		return now
	}
	latest := s.StartDate
	later := func(t *time.Time) {
		if t != nil && t.After(latest) {
			latest = *t
		}
	}
	for _, i := range s.Issues {
		later(i.UpdatedAt)
		later(i.CreatedAt)
	}
	later(s.LastEvaluatedAt)
	return latest
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// SprintInsights derives next steps, triggered risks, data gaps and a snapshot.
// It reads the sprint's risk fields but never changes them.
func SprintInsights(s domain.Sprint, now time.Time) Insights {
	c := countIssues(s.Issues)
	lastActivity := LastActivity(s, now)
	idle := now.Sub(lastActivity)

	ins := Insights{
		NextSteps:      []string{},
		TriggeredRisks: []string{},
		DataNeeded:     []string{},
	}

	if s.OwnerEmail == "" {
		ins.NextSteps = append(ins.NextSteps, "Assign a sprint owner who is accountable for delivery.")
	}
	if c.total == 0 {
		ins.NextSteps = append(ins.NextSteps, "Add the sprint's issues so progress can be tracked.")
	}
	if c.open > 0 {
		ins.NextSteps = append(ins.NextSteps, "Review open issues and confirm an owner for each one.")
	}
	if c.blockers == 0 {
		ins.NextSteps = append(ins.NextSteps, "No blockers are flagged yet; identify risks and mark blocking issues.")
	}
	if idle > staleNextStepAfter {
		ins.NextSteps = append(ins.NextSteps, "Post a status update; nothing has moved in the last 7 days.")
	}

	completionPct := 0.0
	if c.total > 0 {
		completionPct = float64(c.completed) / float64(c.total) * 100
	}
	if !s.StartDate.IsZero() && now.Sub(s.StartDate) > slowSprintAge && completionPct < slowSprintPct {
		ins.TriggeredRisks = append(ins.TriggeredRisks, "Sprint has run for over 14 days with less than 30% of issues completed.")
	}
	unassigned := false
	for _, i := range s.Issues {
		if strings.TrimSpace(i.Assignee) == "" {
			unassigned = true
			break
		}
	}
	if unassigned {
		ins.TriggeredRisks = append(ins.TriggeredRisks, "Some issues have no assignee.")
	}
	if c.blockers > 0 {
		ins.TriggeredRisks = append(ins.TriggeredRisks, "Blocking issues are present.")
	}
	if s.RiskLevel == domain.RiskHigh {
		ins.TriggeredRisks = append(ins.TriggeredRisks, "Sprint risk level is high.")
	}
	if idle > staleRiskAfter {
		ins.TriggeredRisks = append(ins.TriggeredRisks, "No sprint activity for more than 10 days.")
	}

	hasData, hasAnalysis := false, false
	for _, i := range s.Issues {
		title := strings.ToLower(i.Title)
		if containsAny(title, dataKeywords) {
			hasData = true
		}
		if containsAny(title, analysisKeywords) {
			hasAnalysis = true
		}
	}
	if c.total == 0 {
		ins.DataNeeded = append(ins.DataNeeded, "Define the KPIs this sprint should move.")
	}
	if !hasData {
		ins.DataNeeded = append(ins.DataNeeded, "Link a data source, dashboard or report that measures sprint outcomes.")
	}
	if hasAnalysis && !hasData {
		ins.DataNeeded = append(ins.DataNeeded, "Analysis work is planned but no data source is attached.")
	}
	if !s.EndDate.IsZero() && s.BaselineDate == nil {
		ins.DataNeeded = append(ins.DataNeeded, "Set a baseline date to compare delivery against the plan.")
	}

	daysActive := 0
	if !s.StartDate.IsZero() {
		daysActive = max(0, floorDays(now.Sub(s.StartDate)))
	}
	ins.Snapshot = Snapshot{
		TasksTotal:     c.total,
		TasksCompleted: c.completed,
		RisksOpen:      len(ins.TriggeredRisks),
		DaysActive:     daysActive,
	}
	ins.Label = Label(s.RiskLevel)
	return ins
}

// Label is the short headline for a sprint risk level.
func Label(level domain.RiskLevel) string {
	switch level {
	case domain.RiskHigh, domain.RiskCritical:
		return "At risk"
	case domain.RiskMedium:
		return "Needs attention"
	default:
		return "On track"
	}
}
