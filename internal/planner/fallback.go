package planner

import (
	"fmt"
	"strings"

	"aicoo/internal/domain"
)

// FallbackPlan builds the local plan used when the provider is unavailable.
// The result always names the task title.
func FallbackPlan(title string, meta domain.Metadata, status domain.ProviderStatus) string {
	team := orDefault(meta.Team, "cross-functional")
	priority := orDefault(meta.Priority, "medium")
	due := orDefault(meta.DueDate, "not set")
	currency := orDefault(meta.Currency, "INR")

	doc := planDocument{
		Summary: fmt.Sprintf("Deliver %q with the %s team at %s priority. Target date: %s.", title, team, priority, due),
		Steps: []string{
			fmt.Sprintf("Confirm the owner, scope and success criteria for %q.", title),
			fmt.Sprintf("Break the work into weekly milestones and assign them within the %s team.", team),
			fmt.Sprintf("Agree the budget in %s and track spend against it.", currency),
			"Run a short daily check-in and escalate blockers the same day.",
			fmt.Sprintf("Review outcomes against the success criteria before %s.", due),
		},
		Risks: []string{
			"Unclear ownership slows decisions.",
			"Dependencies on other teams may delay milestones.",
			"Scope can grow without an agreed definition of done.",
		},
		DataNeeded: []string{
			"Baseline metrics the task is expected to move.",
			fmt.Sprintf("Approved budget in %s.", currency),
			"List of stakeholders and approvers.",
		},
		Note: fallbackNote(status),
	}
	if len(meta.Dependencies) > 0 {
		doc.Risks = append(doc.Risks, "Waiting on: "+strings.Join(meta.Dependencies, ", ")+".")
	}
	return renderPlan(doc)
}

func fallbackNote(status domain.ProviderStatus) string {
	if status == domain.ProviderFallbackInsufficientQuota {
		return "This plan was generated locally because the AI provider quota is exhausted."
	}
	return "This plan was generated locally because the AI provider was unavailable."
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// renderPlan lays a plan out under the Summary, Steps, Risks, DataNeeded and Note headers.
func renderPlan(doc planDocument) string {
	var b strings.Builder
	b.WriteString("Summary:\n")
	b.WriteString(strings.TrimSpace(doc.Summary))
	b.WriteString("\n\nSteps:\n")
	for i, s := range doc.Steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	writeList(&b, "Risks", doc.Risks)
	writeList(&b, "DataNeeded", doc.DataNeeded)
	b.WriteString("\nNote:\n")
	b.WriteString(strings.TrimSpace(doc.Note))
	return strings.TrimRight(b.String(), "\n")
}

func writeList(b *strings.Builder, header string, items []string) {
	fmt.Fprintf(b, "\n%s:\n", header)
	if len(items) == 0 {
		b.WriteString("- none\n")
		return
	}
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}
