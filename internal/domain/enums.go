package domain

import "strings"

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

func (s TaskStatus) String() string { return string(s) }

// IsValid reports whether s is a known task status.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are expected.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// ProviderStatus records which path produced a task's plan text.
type ProviderStatus string

const (
	ProviderOK                        ProviderStatus = "ok"
	ProviderFallbackInsufficientQuota ProviderStatus = "fallback_insufficient_quota"
	ProviderFallbackError             ProviderStatus = "fallback_error"
)

func (p ProviderStatus) String() string { return string(p) }

func (p ProviderStatus) IsValid() bool {
	switch p {
	case ProviderOK, ProviderFallbackInsufficientQuota, ProviderFallbackError:
		return true
	default:
		return false
	}
}

// RiskLevel buckets a continuous risk score. Sprints use low/medium/high,
// tasks additionally use critical.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

func (r RiskLevel) String() string { return string(r) }

// Upper is used in human-readable summaries.
func (r RiskLevel) Upper() string { return strings.ToUpper(string(r)) }

func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	default:
		return false
	}
}

// AlertType classifies a SprintAlert.
type AlertType string

const (
	AlertRisk     AlertType = "risk"
	AlertBlocker  AlertType = "blocker"
	AlertDeadline AlertType = "deadline"
	AlertAssignee AlertType = "assignee"
)

// AlertLevel is the severity of a SprintAlert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// Priority is the business-priority bucket of a task.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

func (p Priority) String() string { return string(p) }

// Phase is the delivery phase inferred from task text.
type Phase string

const (
	PhaseDesign  Phase = "design"
	PhaseBuild   Phase = "build"
	PhaseTest    Phase = "test"
	PhaseLaunch  Phase = "launch"
	PhaseUnknown Phase = "unknown"
)

var doneLikeIssueStatuses = map[string]struct{}{
	"done":     {},
	"resolved": {},
	"closed":   {},
}

// IssueDone reports whether an issue status counts as complete. Comparison is case-insensitive.
func IssueDone(status string) bool {
	_, ok := doneLikeIssueStatuses[strings.ToLower(status)]
	return ok
}

// PrerequisiteDone reports whether a prerequisite task status unblocks its dependents.
func PrerequisiteDone(status TaskStatus) bool {
	s := strings.ToLower(string(status))
	return s == "done" || s == string(TaskCompleted)
}
