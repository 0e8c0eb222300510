// Package insight holds the deterministic scoring rules for sprints and tasks.
// Every function is pure over its inputs except ScoreSprint, which writes the
// derived risk fields back onto the sprint it is given.
package insight

import (
	"fmt"
	"math"
	"time"

	"aicoo/internal/domain"
)

const day = 24 * time.Hour

// floorDays mirrors whole-day differences, rounding toward negative infinity.
func floorDays(d time.Duration) int {
	return int(math.Floor(float64(d) / float64(day)))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// SprintRiskLevel buckets a sprint risk score: high above 0.7, medium above 0.4.
func SprintRiskLevel(score float64) domain.RiskLevel {
	switch {
	case score > 0.7:
		return domain.RiskHigh
	case score > 0.4:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

type issueCounts struct {
	total, open, completed, blockers int
}

func countIssues(issues []domain.Issue) issueCounts {
	c := issueCounts{total: len(issues)}
	for _, i := range issues {
		if domain.IssueDone(i.Status) {
			c.completed++
		} else {
			c.open++
		}
		if i.IsBlocker {
			c.blockers++
		}
	}
	return c
}

// ScoreSprint recomputes RiskScore, RiskLevel and LastEvaluatedAt from the
// sprint's issues and dates. It never fails; degenerate spans count as one day.
func ScoreSprint(s *domain.Sprint, now time.Time) {
	evaluated := now
	s.LastEvaluatedAt = &evaluated
	c := countIssues(s.Issues)
	if c.total == 0 {
		s.RiskScore = 0
		s.RiskLevel = domain.RiskLow
		return
	}
	incompleteRatio := float64(c.open) / float64(c.total)

	totalDays := floorDays(s.EndDate.Sub(s.StartDate))
	if totalDays < 1 {
		totalDays = 1
	}
	daysLeft := floorDays(s.EndDate.Sub(now))
	progress := clamp01(float64(totalDays-daysLeft) / float64(totalDays))

	// Blockers are not capped before the final clamp.
	blockerFactor := 0.1 * float64(c.blockers)

	s.RiskScore = clamp01(incompleteRatio*0.6 + progress*0.3 + blockerFactor)
	s.RiskLevel = SprintRiskLevel(s.RiskScore)
}

// RiskReport is the human-readable risk view of a sprint.
type RiskReport struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	RiskLevel       domain.RiskLevel `json:"risk_level"`
	RiskScore       float64          `json:"risk_score"`
	OpenIssues      int              `json:"open_issues"`
	TotalIssues     int              `json:"total_issues"`
	Blockers        int              `json:"blockers"`
	LastEvaluatedAt *time.Time       `json:"last_evaluated_at,omitempty"`
	Explanation     string           `json:"explanation"`
}

// SprintRiskReport explains an already scored sprint.
func SprintRiskReport(s domain.Sprint) RiskReport {
	c := countIssues(s.Issues)
	return RiskReport{
		ID:              s.ID,
		Name:            s.Name,
		RiskLevel:       s.RiskLevel,
		RiskScore:       s.RiskScore,
		OpenIssues:      c.open,
		TotalIssues:     c.total,
		Blockers:        c.blockers,
		LastEvaluatedAt: s.LastEvaluatedAt,
		Explanation: fmt.Sprintf("Sprint '%s' is currently rated as %s risk with a score of %.2f. %d out of %d issues are still open, and %d are marked as blockers. End date: %s.",
			s.Name, s.RiskLevel.Upper(), s.RiskScore, c.open, c.total, c.blockers, s.EndDate.Format(time.DateOnly)),
	}
}

type Alert struct {
	Type    domain.AlertType  `json:"type" enum:"risk,blocker,deadline,assignee"`
	Level   domain.AlertLevel `json:"level" enum:"info,warning,critical"`
	Message string            `json:"message"`
}

// overloadThreshold is the number of open issues that marks an assignee as overloaded.
const overloadThreshold = 4

// SprintAlerts evaluates the alert rules in a fixed order: risk, blockers,
// deadline, assignee load. The sprint must already be scored.
func SprintAlerts(s domain.Sprint, now time.Time) []Alert {
	var alerts []Alert
	switch s.RiskLevel {
	case domain.RiskHigh:
		alerts = append(alerts, Alert{domain.AlertRisk, domain.AlertCritical,
			fmt.Sprintf("Sprint '%s' is at HIGH risk (score %.2f)", s.Name, s.RiskScore)})
	case domain.RiskMedium:
		alerts = append(alerts, Alert{domain.AlertRisk, domain.AlertWarning,
			fmt.Sprintf("Sprint '%s' is at MEDIUM risk (score %.2f)", s.Name, s.RiskScore)})
	}

	var open []domain.Issue
	for _, i := range s.Issues {
		if !domain.IssueDone(i.Status) {
			open = append(open, i)
		}
	}

	for _, i := range open {
		if !i.IsBlocker {
			continue
		}
		var age time.Duration
		switch {
		case i.UpdatedAt != nil:
			age = now.Sub(*i.UpdatedAt)
		case i.CreatedAt != nil:
			age = now.Sub(*i.CreatedAt)
		}
		if age >= day {
			alerts = append(alerts, Alert{domain.AlertBlocker, domain.AlertCritical,
				fmt.Sprintf("Blocker %s '%s' has not moved for %d day(s)", i.Key, i.Title, floorDays(age))})
		} else {
			alerts = append(alerts, Alert{domain.AlertBlocker, domain.AlertWarning,
				fmt.Sprintf("Blocker %s '%s' was flagged recently", i.Key, i.Title)})
		}
	}

	if len(open) > 0 {
		daysLeft := floorDays(s.EndDate.Sub(now))
		switch {
		case daysLeft < 0:
			alerts = append(alerts, Alert{domain.AlertDeadline, domain.AlertCritical,
				fmt.Sprintf("Sprint ended %d day(s) ago with %d open issue(s)", -daysLeft, len(open))})
		case daysLeft <= 2:
			alerts = append(alerts, Alert{domain.AlertDeadline, domain.AlertWarning,
				fmt.Sprintf("Sprint ends in %d day(s) with %d open issue(s)", daysLeft, len(open))})
		}
	}

	// Assignees are reported in order of first appearance; unassigned issues are not a person.
	var order []string
	load := map[string]int{}
	for _, i := range open {
		if i.Assignee == "" {
			continue
		}
		if _, seen := load[i.Assignee]; !seen {
			order = append(order, i.Assignee)
		}
		load[i.Assignee]++
	}
	for _, who := range order {
		if load[who] >= overloadThreshold {
			alerts = append(alerts, Alert{domain.AlertAssignee, domain.AlertInfo,
				fmt.Sprintf("%s has %d open issues in this sprint", who, load[who])})
		}
	}
	return alerts
}
