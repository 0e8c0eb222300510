package domain

import "time"

type Company struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	OwnerEmail string    `json:"owner_email"`
	CreatedAt  time.Time `json:"created_at"`
}

type Project struct {
	ID         string    `json:"id"`
	CompanyID  string    `json:"company_id"`
	Name       string    `json:"name"`
	JiraKey    string    `json:"jira_key,omitempty"`
	OwnerEmail string    `json:"owner_email"`
	CreatedAt  time.Time `json:"created_at"`
}

// Sprint risk fields are derived; they are recomputed on every read that exposes them.
type Sprint struct {
	ID              string     `json:"id"`
	ProjectID       string     `json:"project_id"`
	Name            string     `json:"name"`
	OwnerEmail      string     `json:"owner_email,omitempty"`
	StartDate       time.Time  `json:"start_date"`
	EndDate         time.Time  `json:"end_date"`
	BaselineDate    *time.Time `json:"baseline_date,omitempty"`
	RiskScore       float64    `json:"risk_score"`
	RiskLevel       RiskLevel  `json:"risk_level" enum:"low,medium,high"`
	LastEvaluatedAt *time.Time `json:"last_evaluated_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	Issues          []Issue    `json:"issues,omitempty"`
}

type Issue struct {
	ID        string     `json:"id"`
	SprintID  string     `json:"sprint_id"`
	Key       string     `json:"key"`
	Title     string     `json:"title"`
	Status    string     `json:"status"`
	Assignee  string     `json:"assignee,omitempty"`
	IsBlocker bool       `json:"is_blocker"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type SprintCollaborator struct {
	ID        string    `json:"id"`
	SprintID  string    `json:"sprint_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type Task struct {
	ID                     string         `json:"id"`
	Title                  string         `json:"title"`
	Status                 TaskStatus     `json:"status" enum:"pending,in_progress,completed,failed"`
	Metadata               Metadata       `json:"metadata_json"`
	ResultText             string         `json:"result_text,omitempty"`
	ExternalProviderStatus ProviderStatus `json:"external_provider_status,omitempty"`
	CompanyID              string         `json:"company_id,omitempty"`
	Squad                  string         `json:"squad,omitempty"`
	OwnerEmail             string         `json:"owner_email,omitempty"`
	PrerequisiteTaskID     string         `json:"prerequisite_task_id,omitempty"`
	NextSteps              string         `json:"next_steps,omitempty"`
	CreatedAt              time.Time      `json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`
}

type TaskLog struct {
	ID         string     `json:"id"`
	TaskID     string     `json:"task_id"`
	Event      string     `json:"event"`
	OldStatus  TaskStatus `json:"old_status,omitempty"`
	NewStatus  TaskStatus `json:"new_status,omitempty"`
	ResultText string     `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
}

type APIKey struct {
	ID         string `json:"id"`
	OwnerEmail string `json:"owner_email"`
	Name       string `json:"name,omitempty"`
	KeyHash    string `json:"-"`
	CreatedAt  string `json:"created_at"`
}

// Task log event names.
const (
	EventCreated      = "created"
	EventStatusChange = "status_change"
)
