package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aicoo/internal/config"
	"aicoo/internal/db"
	"aicoo/internal/domain"
	"aicoo/internal/engine"
	"aicoo/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }

func (s *testServer) Close() { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn, db.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg, nil)
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testSecret, CookieName: "wy_email", AllowCookie: true},
		Metrics:  promhttp.Handler(),
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			e.Wait()
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func bearer(t *testing.T, email string) map[string]string {
	t.Helper()
	token, err := SignToken(testSecret, email, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal %s: %v", string(data), err)
	}
	return v
}

func expectStatus(t *testing.T, res *http.Response, data []byte, want int) {
	t.Helper()
	if res.StatusCode != want {
		t.Fatalf("status %d, want %d: %s", res.StatusCode, want, string(data))
	}
}

func TestAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	expectStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, nil)
	expectStatus(t, res, data, http.StatusUnauthorized)
	apiErr := decode[ApiError](t, data)
	if apiErr.Error.Message != "Not logged in" {
		t.Fatalf("message = %q", apiErr.Error.Message)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, map[string]string{"Authorization": "Bearer nope"})
	expectStatus(t, res, data, http.StatusUnauthorized)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/auth/me", nil, map[string]string{"Cookie": "wy_email=cookie@x.com"})
	expectStatus(t, res, data, http.StatusOK)
	if who := decode[WhoAmIResponse](t, data); who.Email != "cookie@x.com" || who.Source != "cookie" {
		t.Fatalf("who = %+v", who)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/api-keys", map[string]any{"name": "ci"}, bearer(t, "dev@x.com"))
	expectStatus(t, res, data, http.StatusCreated)
	key := decode[APIKeyResponse](t, data)
	if !strings.HasPrefix(key.Key, "coo_") {
		t.Fatalf("key = %+v", key)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/auth/me", nil, map[string]string{"X-Api-Key": key.Key})
	expectStatus(t, res, data, http.StatusOK)
	if who := decode[WhoAmIResponse](t, data); who.Email != "dev@x.com" || who.Source != "api_key" {
		t.Fatalf("who = %+v", who)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/auth/me", nil, map[string]string{"X-Api-Key": "coo_unknown"})
	expectStatus(t, res, data, http.StatusUnauthorized)
}

func TestTaskRunFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	auth := bearer(t, "owner@x.com")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/run", map[string]any{
		"title":         "Launch pricing page",
		"metadata_json": map[string]any{"team": "growth", "impact": "0.9"},
	}, auth)
	expectStatus(t, res, data, http.StatusOK)
	run := decode[RunTaskResponse](t, data)
	if !run.OK || run.Task.Status != domain.TaskCompleted {
		t.Fatalf("run = %+v", run)
	}
	if run.Task.ExternalProviderStatus != domain.ProviderFallbackError {
		t.Fatalf("provider status = %s", run.Task.ExternalProviderStatus)
	}
	if !strings.Contains(run.Task.ResultText, "Launch pricing page") || !strings.Contains(run.Task.ResultText, "growth") {
		t.Fatalf("fallback plan should mention title and team: %q", run.Task.ResultText)
	}
	if run.Task.MetadataJSON["impact"] != 0.9 {
		t.Fatalf("metadata = %+v", run.Task.MetadataJSON)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+run.Task.ID+"/logs", nil, auth)
	expectStatus(t, res, data, http.StatusOK)
	logs := decode[[]TaskLogResponse](t, data)
	if len(logs) != 3 || logs[0].Event != domain.EventCreated || logs[2].NewStatus != domain.TaskCompleted || !logs[2].HasResultText {
		t.Fatalf("logs = %+v", logs)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+run.Task.ID+"/status", nil, auth)
	expectStatus(t, res, data, http.StatusOK)
	if st := decode[TaskStatusResponse](t, data); !st.OK || st.Status != domain.TaskCompleted {
		t.Fatalf("status = %+v", st)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+run.Task.ID, nil, bearer(t, "other@x.com"))
	expectStatus(t, res, data, http.StatusNotFound)
}

func TestRunAsyncReturnsPending(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	auth := bearer(t, "owner@x.com")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/run_async", map[string]any{"title": "Implement API"}, auth)
	expectStatus(t, res, data, http.StatusAccepted)
	run := decode[RunTaskResponse](t, data)
	if run.Task.Status != domain.TaskPending {
		t.Fatalf("async run should answer pending, got %s", run.Task.Status)
	}
	srv.Engine.Wait()
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+run.Task.ID+"/status", nil, auth)
	expectStatus(t, res, data, http.StatusOK)
	if st := decode[TaskStatusResponse](t, data); st.Status != domain.TaskCompleted {
		t.Fatalf("status = %+v", st)
	}
}

func TestTaskPatchAndPrerequisites(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	auth := bearer(t, "owner@x.com")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{"title": "Write PRD"}, auth)
	expectStatus(t, res, data, http.StatusCreated)
	first := decode[TaskResponse](t, data)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{"title": "Implement checkout", "prerequisite_task_id": first.ID}, auth)
	expectStatus(t, res, data, http.StatusCreated)
	second := decode[TaskResponse](t, data)

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/tasks/"+first.ID, map[string]any{"prerequisite_task_id": second.ID}, auth)
	expectStatus(t, res, data, http.StatusConflict)

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/tasks/"+first.ID, map[string]any{"status": "bogus"}, auth)
	expectStatus(t, res, data, http.StatusBadRequest)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{"title": "x", "prerequisite_task_id": "missing"}, auth)
	expectStatus(t, res, data, http.StatusBadRequest)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+first.ID+"/summary", nil, auth)
	expectStatus(t, res, data, http.StatusOK)
	sum := decode[TaskSummaryResponse](t, data)
	if len(sum.Blocks) != 1 || sum.Blocks[0].ID != second.ID {
		t.Fatalf("summary = %+v", sum)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/tasks/"+second.ID, map[string]any{"prerequisite_task_id": nil}, auth)
	expectStatus(t, res, data, http.StatusOK)
	if got := decode[TaskResponse](t, data); got.PrerequisiteTaskID != "" {
		t.Fatalf("prerequisite should be cleared: %+v", got)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/recompute_next_steps", nil, auth)
	expectStatus(t, res, data, http.StatusOK)
	if rec := decode[RecomputeResponse](t, data); !rec.OK || rec.Updated != 2 {
		t.Fatalf("recompute = %+v", rec)
	}
}

func TestSprintEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	auth := bearer(t, "owner@x.com")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/companies", map[string]any{"name": "Acme"}, auth)
	expectStatus(t, res, data, http.StatusCreated)
	company := decode[domain.Company](t, data)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/companies/"+company.ID+"/projects", map[string]any{"name": "Payments", "jira_key": "pay"}, auth)
	expectStatus(t, res, data, http.StatusCreated)
	project := decode[domain.Project](t, data)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/sprints", map[string]any{
		"project_id": project.ID,
		"name":       "Sprint One",
		"start_date": "2024-01-01T00:00:00Z",
		"end_date":   "2023-12-01T00:00:00Z",
	}, auth)
	expectStatus(t, res, data, http.StatusBadRequest)

	start := time.Now().UTC().Add(-48 * time.Hour).Format(time.RFC3339)
	end := time.Now().UTC().Add(10 * 24 * time.Hour).Format(time.RFC3339)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/sprints", map[string]any{
		"project_id": project.ID, "name": "Sprint One", "start_date": start, "end_date": end,
	}, auth)
	expectStatus(t, res, data, http.StatusCreated)
	sprint := decode[domain.Sprint](t, data)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/sprints/"+sprint.ID+"/issues", map[string]any{"title": "Build API", "is_blocker": true}, auth)
	expectStatus(t, res, data, http.StatusCreated)
	issue := decode[domain.Issue](t, data)
	if issue.Key != "PAY-1" {
		t.Fatalf("issue key = %q", issue.Key)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/sprints/"+sprint.ID+"/alerts", nil, auth)
	expectStatus(t, res, data, http.StatusOK)
	if !strings.Contains(string(data), `"type":"blocker"`) {
		t.Fatalf("alerts = %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/sprints/"+sprint.ID+"/risk", nil, auth)
	expectStatus(t, res, data, http.StatusOK)
	if !strings.Contains(string(data), "Sprint 'Sprint One' is currently rated as") {
		t.Fatalf("risk = %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/sprints/"+sprint.ID+"/insights", nil, auth)
	expectStatus(t, res, data, http.StatusOK)

	collab := bearer(t, "dev@x.com")
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/sprints/"+sprint.ID, nil, collab)
	expectStatus(t, res, data, http.StatusNotFound)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/sprints/"+sprint.ID+"/collaborators", map[string]any{"email": "dev@x.com"}, auth)
	expectStatus(t, res, data, http.StatusCreated)
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/sprints/"+sprint.ID+"/issues/"+issue.ID, map[string]any{"status": "done"}, collab)
	expectStatus(t, res, data, http.StatusOK)
	if got := decode[domain.Issue](t, data); got.Status != "done" || !got.IsBlocker {
		t.Fatalf("issue = %+v", got)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/sprints/"+sprint.ID, nil, bearer(t, "Dev@X.com"))
	expectStatus(t, res, data, http.StatusOK)
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/auth/me", nil, bearer(t, " Dev@X.com "))
	expectStatus(t, res, data, http.StatusOK)
	if who := decode[WhoAmIResponse](t, data); who.Email != "dev@x.com" {
		t.Fatalf("who = %+v", who)
	}
}

func TestIntelligenceAndDocs(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	auth := bearer(t, "owner@x.com")

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/intelligence/analysis", nil, auth)
	expectStatus(t, res, data, http.StatusOK)
	if !strings.Contains(string(data), `"No tasks found"`) {
		t.Fatalf("analysis = %s", string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/intelligence/breakdown", map[string]any{"title": "Report aaj karna hai"}, auth)
	expectStatus(t, res, data, http.StatusOK)
	if !strings.Contains(string(data), `"input_language":"hindi"`) {
		t.Fatalf("breakdown = %s", string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/intelligence/advisors/Finance", nil, auth)
	expectStatus(t, res, data, http.StatusOK)
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/intelligence/compliance?company=Acme", nil, auth)
	expectStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	expectStatus(t, res, data, http.StatusOK)
	if !strings.Contains(string(data), "bearerAuth") || !strings.Contains(string(data), "/v0/tasks/run_async") {
		t.Fatalf("openapi document incomplete")
	}
	var wg sync.WaitGroup
	bodies := make([][]byte, 8)
	errs := make([]error, len(bodies))
	for i := range bodies {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := client.Get(srv.URL + "/v0/openapi.json")
			if err != nil {
				errs[i] = err
				return
			}
			defer res.Body.Close()
			if res.StatusCode != http.StatusOK {
				errs[i] = fmt.Errorf("status %d", res.StatusCode)
				return
			}
			bodies[i], errs[i] = io.ReadAll(res.Body)
		}()
	}
	wg.Wait()
	for i := range bodies {
		if errs[i] != nil {
			t.Fatalf("concurrent openapi fetch %d: %v", i, errs[i])
		}
		if !bytes.Equal(bodies[i], data) {
			t.Fatalf("openapi document %d differs from the first", i)
		}
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/metrics", nil, nil)
	expectStatus(t, res, data, http.StatusOK)
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/docs", nil, nil)
	expectStatus(t, res, data, http.StatusOK)
}
