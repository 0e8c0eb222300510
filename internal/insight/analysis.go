package insight

import (
	"fmt"
	"sort"

	"aicoo/internal/domain"
)

type RiskCard struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	RiskScore float64           `json:"risk_score"`
	RiskLevel domain.RiskLevel  `json:"risk_level"`
	Reasons   []string          `json:"reasons"`
	Priority  domain.Priority   `json:"priority"`
	Status    domain.TaskStatus `json:"status"`
}

type SquadLoad struct {
	Squad      string `json:"squad"`
	Active     int    `json:"active"`
	Completed  int    `json:"completed"`
	Suggestion string `json:"suggestion"`
}

type ExecutionPlan struct {
	Summary    string   `json:"summary"`
	Actionable []string `json:"actionable"`
}

// Health summarizes average task risk. Empty task sets report green with a
// message instead of a score.
type Health struct {
	Status       string   `json:"status"`
	AvgRiskScore *float64 `json:"avg_risk_score,omitempty"`
	Notes        string   `json:"notes,omitempty"`
	Message      string   `json:"message,omitempty"`
}

type Analysis struct {
	TasksAnalyzed int           `json:"tasks_analyzed"`
	Risk          []RiskCard    `json:"risk"`
	LoadBalance   []SquadLoad   `json:"load_balance"`
	ExecutionPlan ExecutionPlan `json:"execution_plan"`
	SprintSummary Health        `json:"sprint_summary"`
}

const (
	defaultSquad      = "unassigned"
	rebalanceAbove    = 5
	checkInsAboveRisk = 0.5
)

// Analyze builds the intelligence view over one owner's tasks.
func Analyze(tasks []domain.Task) Analysis {
	return Analysis{
		TasksAnalyzed: len(tasks),
		Risk:          RiskCards(tasks),
		LoadBalance:   LoadBalance(tasks),
		ExecutionPlan: BuildExecutionPlan(tasks),
		SprintSummary: SprintHealth(tasks),
	}
}

// RiskCards scores every task against the whole set, highest risk first.
// Ties keep input order.
func RiskCards(tasks []domain.Task) []RiskCard {
	cards := make([]RiskCard, 0, len(tasks))
	for _, t := range tasks {
		r := AssessTask(t, tasks)
		cards = append(cards, RiskCard{
			ID:        t.ID,
			Title:     t.Title,
			RiskScore: r.Score,
			RiskLevel: r.Level,
			Reasons:   r.Reasons,
			Priority:  ClassifyPriority(t),
			Status:    t.Status,
		})
	}
	sort.SliceStable(cards, func(i, j int) bool { return cards[i].RiskScore > cards[j].RiskScore })
	return cards
}

// LoadBalance groups tasks by squad in order of first appearance.
func LoadBalance(tasks []domain.Task) []SquadLoad {
	var order []string
	bySquad := map[string]*SquadLoad{}
	for _, t := range tasks {
		squad := t.Squad
		if squad == "" {
			squad = defaultSquad
		}
		load, ok := bySquad[squad]
		if !ok {
			load = &SquadLoad{Squad: squad}
			bySquad[squad] = load
			order = append(order, squad)
		}
		if t.Status == domain.TaskCompleted {
			load.Completed++
		} else {
			load.Active++
		}
	}
	res := make([]SquadLoad, 0, len(order))
	for _, squad := range order {
		load := bySquad[squad]
		load.Suggestion = "Load healthy"
		if load.Active > rebalanceAbove {
			load.Suggestion = "Rebalance work"
		}
		res = append(res, *load)
	}
	return res
}

func BuildExecutionPlan(tasks []domain.Task) ExecutionPlan {
	completed, inProgress := 0, 0
	for _, t := range tasks {
		switch t.Status {
		case domain.TaskCompleted:
			completed++
		case domain.TaskInProgress:
			inProgress++
		}
	}
	return ExecutionPlan{
		Summary: fmt.Sprintf("%d/%d tasks done; %d currently in progress", completed, len(tasks), inProgress),
		Actionable: []string{
			"Focus on high-priority items first",
			"Resolve blockers with highest dependency risk",
			"Communicate ETAs to stakeholders daily",
		},
	}
}

func SprintHealth(tasks []domain.Task) Health {
	if len(tasks) == 0 {
		return Health{Status: "green", Message: "No tasks found"}
	}
	sum := 0.0
	for _, t := range tasks {
		sum += AssessTask(t, tasks).Score
	}
	avg := sum / float64(len(tasks))
	rounded := round3(avg)
	h := Health{
		Status:       string(TaskRiskLevel(avg)),
		AvgRiskScore: &rounded,
		Notes:        "On track",
	}
	if avg > checkInsAboveRisk {
		h.Notes = "Increase check-ins"
	}
	return h
}
