package coosdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal AI-COO HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	// Email is sent as the identity cookie when neither credential is set.
	Email      string
	CookieName string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		BasePath:   "/v0",
		CookieName: "wy_email",
		Timeout:    10 * time.Second,
	}
}

// Task represents the API task model.
type Task struct {
	ID                     string         `json:"id"`
	Title                  string         `json:"title"`
	Status                 string         `json:"status"`
	MetadataJSON           map[string]any `json:"metadata_json"`
	ResultText             string         `json:"result_text,omitempty"`
	ExternalProviderStatus string         `json:"external_provider_status,omitempty"`
	CompanyID              string         `json:"company_id,omitempty"`
	Squad                  string         `json:"squad,omitempty"`
	OwnerEmail             string         `json:"owner_email,omitempty"`
	PrerequisiteTaskID     string         `json:"prerequisite_task_id,omitempty"`
	NextSteps              string         `json:"next_steps,omitempty"`
	CreatedAt              time.Time      `json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`
}

// Done reports whether the task reached a terminal status.
func (t Task) Done() bool {
	return t.Status == "completed" || t.Status == "failed"
}

// TaskStatus is the lightweight polling view of a task.
type TaskStatus struct {
	ID                     string `json:"id"`
	Title                  string `json:"title"`
	Status                 string `json:"status"`
	ResultText             string `json:"result_text,omitempty"`
	ExternalProviderStatus string `json:"external_provider_status,omitempty"`
}

func (s TaskStatus) Done() bool {
	return s.Status == "completed" || s.Status == "failed"
}

// TaskRequest is the payload for creating or running a task.
type TaskRequest struct {
	Title              string         `json:"title"`
	MetadataJSON       map[string]any `json:"metadata_json,omitempty"`
	CompanyID          string         `json:"company_id,omitempty"`
	Squad              string         `json:"squad,omitempty"`
	PrerequisiteTaskID string         `json:"prerequisite_task_id,omitempty"`
}

type ListTasksOptions struct {
	Status    string
	Squad     string
	CompanyID string
	Limit     int
}

type Alert struct {
	Type    string `json:"type"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

type Insights struct {
	NextSteps      []string `json:"next_steps"`
	TriggeredRisks []string `json:"triggered_risks"`
	DataNeeded     []string `json:"data_needed"`
	Snapshot       struct {
		TasksTotal     int `json:"tasks_total"`
		TasksCompleted int `json:"tasks_completed"`
		RisksOpen      int `json:"risks_open"`
		DaysActive     int `json:"days_active"`
	} `json:"snapshot"`
	Label string `json:"label"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// CreateTask creates a task without running the planner.
func (c *Client) CreateTask(ctx context.Context, req TaskRequest) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", req, &resp)
	return resp, err
}

// RunTask creates a task and waits for the planner to finish.
func (c *Client) RunTask(ctx context.Context, req TaskRequest) (Task, error) {
	var resp struct {
		OK   bool `json:"ok"`
		Task Task `json:"task"`
	}
	err := c.do(ctx, http.MethodPost, "tasks/run", req, &resp)
	return resp.Task, err
}

// RunTaskAsync creates a task and returns while it is still pending.
func (c *Client) RunTaskAsync(ctx context.Context, req TaskRequest) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks/run_async", req, &resp)
	return resp, err
}

func (c *Client) TaskStatus(ctx context.Context, id string) (TaskStatus, error) {
	var resp TaskStatus
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id)+"/status", nil, &resp)
	return resp, err
}

func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListTasks returns tasks newest first.
func (c *Client) ListTasks(ctx context.Context, opts ListTasksOptions) ([]Task, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Squad != "" {
		q.Set("squad", opts.Squad)
	}
	if opts.CompanyID != "" {
		q.Set("company_id", opts.CompanyID)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	endpoint := "tasks"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// WaitForTask polls the task status until it completes or fails.
func (c *Client) WaitForTask(ctx context.Context, id string, interval time.Duration) (TaskStatus, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		st, err := c.TaskStatus(ctx, id)
		if err != nil {
			return st, err
		}
		if st.Done() {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) SprintAlerts(ctx context.Context, sprintID string) ([]Alert, error) {
	var resp []Alert
	err := c.do(ctx, http.MethodGet, "sprints/"+url.PathEscape(sprintID)+"/alerts", nil, &resp)
	return resp, err
}

func (c *Client) SprintInsights(ctx context.Context, sprintID string) (Insights, error) {
	var resp Insights
	err := c.do(ctx, http.MethodGet, "sprints/"+url.PathEscape(sprintID)+"/insights", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.Email != "":
		name := c.CookieName
		if name == "" {
			name = "wy_email"
		}
		req.AddCookie(&http.Cookie{Name: name, Value: c.Email})
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) url(endpoint string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base + "/" + strings.TrimLeft(endpoint, "/")
}
