package server

import (
	"time"

	"aicoo/internal/domain"
	"aicoo/internal/engine"
)

// Request payloads

type CreateCompanyRequest struct {
	Name string `json:"name"`
}

type CreateProjectRequest struct {
	Name    string  `json:"name"`
	JiraKey *string `json:"jira_key,omitempty"`
}

type CreateSprintRequest struct {
	ProjectID    string     `json:"project_id"`
	Name         string     `json:"name"`
	OwnerEmail   *string    `json:"owner_email,omitempty"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	BaselineDate *time.Time `json:"baseline_date,omitempty"`
}

type CreateIssueRequest struct {
	Key       *string `json:"key,omitempty"`
	Title     string  `json:"title"`
	Status    *string `json:"status,omitempty"`
	Assignee  *string `json:"assignee,omitempty"`
	IsBlocker bool    `json:"is_blocker,omitempty"`
}

type UpdateIssueRequest struct {
	Status    *string `json:"status,omitempty"`
	Assignee  *string `json:"assignee,omitempty"`
	IsBlocker *bool   `json:"is_blocker,omitempty"`
}

type AddCollaboratorRequest struct {
	Email string `json:"email"`
}

type CreateTaskRequest struct {
	Title              string         `json:"title"`
	MetadataJSON       map[string]any `json:"metadata_json,omitempty"`
	CompanyID          *string        `json:"company_id,omitempty"`
	Squad              *string        `json:"squad,omitempty"`
	PrerequisiteTaskID *string        `json:"prerequisite_task_id,omitempty"`
}

type UpdateTaskRequest struct {
	Status                 *string         `json:"status,omitempty" enum:"pending,in_progress,completed,failed"`
	ResultText             *string         `json:"result_text,omitempty"`
	MetadataJSON           *map[string]any `json:"metadata_json,omitempty"`
	ExternalProviderStatus *string         `json:"external_provider_status,omitempty"`
	PrerequisiteTaskID     *string         `json:"prerequisite_task_id,omitempty"`
}

type BreakdownRequest struct {
	Title string  `json:"title"`
	Squad *string `json:"squad,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name *string `json:"name,omitempty"`
}

// Responses

type TaskResponse struct {
	ID                     string                `json:"id"`
	Title                  string                `json:"title"`
	Status                 domain.TaskStatus     `json:"status" enum:"pending,in_progress,completed,failed"`
	MetadataJSON           map[string]any        `json:"metadata_json"`
	ResultText             string                `json:"result_text,omitempty"`
	ExternalProviderStatus domain.ProviderStatus `json:"external_provider_status,omitempty"`
	CompanyID              string                `json:"company_id,omitempty"`
	Squad                  string                `json:"squad,omitempty"`
	OwnerEmail             string                `json:"owner_email,omitempty"`
	PrerequisiteTaskID     string                `json:"prerequisite_task_id,omitempty"`
	NextSteps              string                `json:"next_steps,omitempty"`
	CreatedAt              time.Time             `json:"created_at"`
	UpdatedAt              time.Time             `json:"updated_at"`
}

type RunTaskResponse struct {
	OK   bool         `json:"ok"`
	Task TaskResponse `json:"task"`
}

type TaskStatusResponse struct {
	OK                     bool                  `json:"ok"`
	ID                     string                `json:"id"`
	Title                  string                `json:"title"`
	Status                 domain.TaskStatus     `json:"status"`
	ResultText             string                `json:"result_text,omitempty"`
	ExternalProviderStatus domain.ProviderStatus `json:"external_provider_status,omitempty"`
}

type TaskLogResponse struct {
	ID            string            `json:"id"`
	TaskID        string            `json:"task_id"`
	Event         string            `json:"event"`
	OldStatus     domain.TaskStatus `json:"old_status,omitempty"`
	NewStatus     domain.TaskStatus `json:"new_status,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	HasResultText bool              `json:"has_result_text"`
}

type TaskSummaryResponse struct {
	Task      TaskResponse     `json:"task"`
	NextSteps string           `json:"next_steps"`
	DependsOn *engine.TaskRef  `json:"depends_on,omitempty"`
	Blocks    []engine.TaskRef `json:"blocks"`
}

type RecomputeResponse struct {
	OK      bool `json:"ok"`
	Updated int  `json:"updated"`
}

type ComplianceResponse struct {
	Company string   `json:"company"`
	Actions []string `json:"actions"`
}

type WhoAmIResponse struct {
	Email  string `json:"email"`
	Source string `json:"source"`
}

type APIKeyResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	OwnerEmail string `json:"owner_email"`
	Key        string `json:"key,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:                     t.ID,
		Title:                  t.Title,
		Status:                 t.Status,
		MetadataJSON:           t.Metadata.Map(),
		ResultText:             t.ResultText,
		ExternalProviderStatus: t.ExternalProviderStatus,
		CompanyID:              t.CompanyID,
		Squad:                  t.Squad,
		OwnerEmail:             t.OwnerEmail,
		PrerequisiteTaskID:     t.PrerequisiteTaskID,
		NextSteps:              t.NextSteps,
		CreatedAt:              t.CreatedAt,
		UpdatedAt:              t.UpdatedAt,
	}
}

func mapTasks(items []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		out = append(out, taskResponse(t))
	}
	return out
}

func taskStatusResponse(t domain.Task) TaskStatusResponse {
	return TaskStatusResponse{
		OK:                     true,
		ID:                     t.ID,
		Title:                  t.Title,
		Status:                 t.Status,
		ResultText:             t.ResultText,
		ExternalProviderStatus: t.ExternalProviderStatus,
	}
}

func mapTaskLogs(items []domain.TaskLog) []TaskLogResponse {
	out := make([]TaskLogResponse, 0, len(items))
	for _, l := range items {
		out = append(out, TaskLogResponse{
			ID:            l.ID,
			TaskID:        l.TaskID,
			Event:         l.Event,
			OldStatus:     l.OldStatus,
			NewStatus:     l.NewStatus,
			CreatedAt:     l.CreatedAt,
			HasResultText: l.ResultText != "",
		})
	}
	return out
}

func apiKeyResponse(k domain.APIKey, plain string) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, Name: k.Name, OwnerEmail: k.OwnerEmail, Key: plain, CreatedAt: k.CreatedAt}
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
