package insight

import (
	"fmt"
	"math"
	"strings"

	"aicoo/internal/domain"
)

// TaskRisk is the delay-risk profile of one task.
type TaskRisk struct {
	Score            float64          `json:"risk_score"`
	Level            domain.RiskLevel `json:"risk_level"`
	DelayProbability float64          `json:"delay_probability"`
	DependencyRisk   float64          `json:"dependency_risk"`
	OverloadRisk     float64          `json:"overload_risk"`
	Complexity       float64          `json:"complexity_estimate"`
	Reasons          []string         `json:"reasons"`
}

const (
	reasonDependencies = "Multiple dependencies could block delivery"
	reasonOverload     = "Owner has several active items; consider load balancing"
	reasonComplexity   = "Task description is lengthy/complex; buffer time recommended"
	reasonNone         = "No major risk signals detected; keep monitoring"
)

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// DependencyCount is the number of explicit dependency references: metadata
// dependencies plus the prerequisite task when one is set.
func DependencyCount(t domain.Task) int {
	n := len(t.Metadata.Dependencies)
	if t.PrerequisiteTaskID != "" {
		n++
	}
	return n
}

// Complexity is a verbosity proxy: words in title and result over 120, capped at 1.
func Complexity(t domain.Task) float64 {
	words := len(strings.Fields(t.Title + " " + t.ResultText))
	return clamp01(float64(words) / 120)
}

// ActiveOwnedBy counts tasks in related, other than t itself, that share t's
// owner and are not completed.
func ActiveOwnedBy(t domain.Task, related []domain.Task) int {
	if t.OwnerEmail == "" {
		return 0
	}
	n := 0
	for _, r := range related {
		if r.ID != "" && r.ID == t.ID {
			continue
		}
		if r.OwnerEmail == t.OwnerEmail && r.Status != domain.TaskCompleted {
			n++
		}
	}
	return n
}

// AssessTask scores delay risk for t against the tasks it competes with.
func AssessTask(t domain.Task, related []domain.Task) TaskRisk {
	dependencyRisk := clamp01(0.15 * float64(DependencyCount(t)))
	overloadRisk := 0.0
	if t.OwnerEmail != "" {
		overloadRisk = clamp01(0.2 * float64(max(0, ActiveOwnedBy(t, related)-3)))
	}
	statusPenalty := 0.05
	if t.Status == domain.TaskPending || t.Status == domain.TaskInProgress {
		statusPenalty = 0.15
	}
	complexity := Complexity(t)
	delay := clamp01(statusPenalty + dependencyRisk + overloadRisk + complexity*0.4)
	score := round3(delay*0.6 + overloadRisk*0.2 + dependencyRisk*0.2)

	var reasons []string
	if dependencyRisk > 0 {
		reasons = append(reasons, reasonDependencies)
	}
	if overloadRisk > 0 {
		reasons = append(reasons, reasonOverload)
	}
	if complexity > 0.5 {
		reasons = append(reasons, reasonComplexity)
	}
	if len(reasons) == 0 {
		reasons = append(reasons, reasonNone)
	}
	return TaskRisk{
		Score:            score,
		Level:            TaskRiskLevel(score),
		DelayProbability: round3(delay),
		DependencyRisk:   round3(dependencyRisk),
		OverloadRisk:     round3(overloadRisk),
		Complexity:       round3(complexity),
		Reasons:          reasons,
	}
}

// TaskRiskLevel buckets task scores, which unlike sprints include critical.
func TaskRiskLevel(score float64) domain.RiskLevel {
	switch {
	case score >= 0.75:
		return domain.RiskCritical
	case score >= 0.5:
		return domain.RiskHigh
	case score >= 0.25:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// PriorityScore weighs metadata signals; absent values default to 0.5.
func PriorityScore(t domain.Task) float64 {
	m := t.Metadata
	score := m.ImpactOrDefault()*0.3 +
		m.UrgencyOrDefault()*0.3 +
		m.OKRAlignmentOrDefault()*0.2 +
		m.UserImportanceOrDefault()*0.15 -
		0.1*float64(DependencyCount(t))
	return clamp01(score)
}

func ClassifyPriority(t domain.Task) domain.Priority {
	score := PriorityScore(t)
	switch {
	case score >= 0.8:
		return domain.PriorityCritical
	case score >= 0.6:
		return domain.PriorityHigh
	case score >= 0.35:
		return domain.PriorityMedium
	default:
		return domain.PriorityLow
	}
}

type phaseRule struct {
	phase    domain.Phase
	keywords []string
}

// Checked in order; the first phase with any keyword match wins.
var phaseRules = []phaseRule{
	{domain.PhaseDesign, []string{"prd", "spec", "design", "requirements", "architecture"}},
	{domain.PhaseBuild, []string{"implement", "develop", "build", "code", "integration"}},
	{domain.PhaseTest, []string{"test", "qa", "validate", "bug", "regression"}},
	{domain.PhaseLaunch, []string{"deploy", "release", "launch", "rollout", "go live"}},
}

// DetectPhase classifies free text by substring keyword match.
func DetectPhase(text string) domain.Phase {
	text = strings.ToLower(text)
	for _, rule := range phaseRules {
		if containsAny(text, rule.keywords) {
			return rule.phase
		}
	}
	return domain.PhaseUnknown
}

var phaseNextSteps = map[domain.Phase]string{
	domain.PhaseDesign:  "Operational next steps: finalize requirements, get stakeholder sign-off, then hand over to engineering.",
	domain.PhaseBuild:   "Operational next steps: confirm design/PRD is approved, break work into subtasks, and start implementation.",
	domain.PhaseTest:    "Operational next steps: coordinate with engineering, run test cases, capture bugs, and verify fixes.",
	domain.PhaseLaunch:  "Operational next steps: verify testing is complete, align on rollout plan, and monitor after deployment.",
	domain.PhaseUnknown: "Operational next steps: clarify owner, deadline, and success criteria for this task.",
}

// NextSteps renders the dependency and next-step block for t. prereq is the
// loaded prerequisite task, or nil when none is set or it could not be found.
// Only the single direct prerequisite is considered.
func NextSteps(t domain.Task, prereq *domain.Task) string {
	var lines []string
	blocked := prereq != nil && !domain.PrerequisiteDone(prereq.Status)
	switch {
	case blocked:
		lines = append(lines, fmt.Sprintf("This task is blocked by prerequisite task \"%s\", which is not yet complete.", prereq.Title))
	case prereq == nil && t.PrerequisiteTaskID != "":
		lines = append(lines, "Prerequisite task reference is configured but could not be loaded.")
	default:
		lines = append(lines, "No blocking prerequisites detected.")
	}

	text := strings.ToLower(t.Title + " " + t.ResultText)
	switch {
	case blocked:
		lines = append(lines, "Operational next steps: assign an owner and complete the prerequisite task.")
	case strings.Contains(text, "kpi") && strings.Contains(text, "analysis"):
		lines = append(lines, "Operational next steps: attach KPI data and begin analysis.")
	default:
		lines = append(lines, phaseNextSteps[DetectPhase(text)])
	}
	return strings.Join(lines, "\n")
}
