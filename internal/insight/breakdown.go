package insight

import (
	"strings"

	"aicoo/internal/domain"
)

type languageHints struct {
	language string
	hints    []string
}

// Order matters: the first language with any hint present wins, and several
// languages share hints.
var languageTable = []languageHints{
	{"hindi", []string{"kal", "tak", "karna", "hai", "karo", "aaj"}},
	{"tamil", []string{"amma", "illai", "venum", "pannunga", "seyyavendum"}},
	{"telugu", []string{"cheyali", "vundi", "ledu", "andi"}},
	{"kannada", []string{"maadi", "beku", "illa", "mugiyali"}},
	{"malayalam", []string{"cheyyuka", "illa", "venam", "kazhinju"}},
	{"bengali", []string{"korte", "hobe", "na", "ajke"}},
	{"marathi", []string{"karaycha", "aahe", "pahije"}},
	{"gujarati", []string{"karvu", "pade", "nahi"}},
	{"punjabi", []string{"karna", "zaroori", "kal", "ajj"}},
	{"odia", []string{"karibaku", "darkar"}},
	{"urdu", []string{"karna", "hai", "kal"}},
	{"english", []string{"task", "complete", "deadline"}},
}

const English = "english"

// DetectLanguage matches hints as substrings of the lower-cased text.
func DetectLanguage(text string) string {
	lowered := strings.ToLower(text)
	for _, l := range languageTable {
		if containsAny(lowered, l.hints) {
			return l.language
		}
	}
	return English
}

var normalizeReplacements = []struct{ from, to string }{
	{"kal", "tomorrow"},
	{"aaj", "today"},
	{"karna hai", "must be done"},
}

// Normalize returns the detected language and a lightly anglicized title.
// English text is returned unchanged.
func Normalize(text string) (language, normalized string) {
	language = DetectLanguage(text)
	if language == English {
		return language, text
	}
	normalized = text
	for _, r := range normalizeReplacements {
		normalized = strings.ReplaceAll(normalized, r.from, r.to)
	}
	return language, normalized
}

type BreakdownTask struct {
	Title  string            `json:"title"`
	Status domain.TaskStatus `json:"status"`
}

type Breakdown struct {
	InputLanguage   string          `json:"input_language"`
	NormalizedTitle string          `json:"normalized_title"`
	SuggestedSquad  string          `json:"suggested_squad"`
	Tasks           []BreakdownTask `json:"tasks"`
}

var breakdownSteps = []string{
	"Define scope and success metrics",
	"Draft PRD / requirements",
	"Design customer journey",
	"Set up analytics and logging",
	"Implement core experience",
	"QA with automation + manual checks",
	"Launch to pilot cohort",
	"Publish learnings and next iteration plan",
}

// ProjectBreakdown splits a project title into the standard delivery steps.
func ProjectBreakdown(title, squad string) Breakdown {
	language, normalized := Normalize(title)
	if squad == "" {
		squad = "cross-functional"
	}
	b := Breakdown{
		InputLanguage:   language,
		NormalizedTitle: normalized,
		SuggestedSquad:  squad,
		Tasks:           make([]BreakdownTask, 0, len(breakdownSteps)),
	}
	for _, step := range breakdownSteps {
		b.Tasks = append(b.Tasks, BreakdownTask{Title: normalized + " – " + step, Status: domain.TaskPending})
	}
	return b
}

var complianceActions = []string{
	"File monthly GST returns (GSTR-1/GSTR-3B) on time",
	"Reconcile TDS deductions and issue Form 16A to vendors",
	"Track MCA annual filings and board meeting minutes",
	"Validate Startup India registration benefits and renewals",
	"Ensure vendor payments follow agreed credit cycles",
}

func ComplianceActions(company string) []string {
	if company == "" {
		company = "the company"
	}
	out := make([]string, len(complianceActions))
	for i, a := range complianceActions {
		out[i] = company + ": " + a
	}
	return out
}

// Advisor gives one department's standing recommendation.
type Advisor struct {
	Department     string   `json:"department"`
	Specialties    []string `json:"specialties"`
	Recommendation string   `json:"recommendation"`
}

// Advisors is keyed by lower-case department name.
type Advisors map[string]Advisor

var genericAdvisor = Advisor{
	Department:     "generic",
	Specialties:    []string{},
	Recommendation: "Focus on clear ownership, measurable outcomes, and unblock dependencies early.",
}

// NewAdvisors builds the department registry. Callers own the map.
func NewAdvisors() Advisors {
	return Advisors{
		"engineering": {
			Department:     "engineering",
			Specialties:    []string{"velocity", "incidents", "quality"},
			Recommendation: "Prioritize blockers, ensure PRD readiness, and keep cycle time low.",
		},
		"product": {
			Department:     "product",
			Specialties:    []string{"discovery", "adoption", "launch"},
			Recommendation: "Validate user need, confirm acceptance criteria, and align launch messaging.",
		},
		"finance": {
			Department:     "finance",
			Specialties:    []string{"revenue", "cost", "compliance"},
			Recommendation: "Monitor revenue leakage, reconcile payouts, and stay compliant with GST/TDS timelines.",
		},
		"ops": {
			Department:     "ops",
			Specialties:    []string{"reliability", "support", "process"},
			Recommendation: "Stabilize processes, keep SLAs green, and broadcast changes to stakeholders.",
		},
	}
}

// For returns the advisor of a department, or the generic one.
func (a Advisors) For(department string) Advisor {
	if adv, ok := a[strings.ToLower(strings.TrimSpace(department))]; ok {
		return adv
	}
	return genericAdvisor
}
