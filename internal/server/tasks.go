package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"aicoo/internal/domain"
	"aicoo/internal/engine"
)

type taskPath struct {
	TaskID string `path:"task_id"`
}

func createOptions(body CreateTaskRequest) engine.TaskCreateOptions {
	return engine.TaskCreateOptions{
		Title:              body.Title,
		Metadata:           domain.MetadataFromMap(body.MetadataJSON),
		CompanyID:          stringOrEmpty(body.CompanyID),
		Squad:              stringOrEmpty(body.Squad),
		PrerequisiteTaskID: stringOrEmpty(body.PrerequisiteTaskID),
	}
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*output[TaskResponse], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, email, createOptions(input.Body))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(taskResponse(t)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Status    string `query:"status"`
		Squad     string `query:"squad"`
		CompanyID string `query:"company_id"`
		Limit     int    `query:"limit" minimum:"0" maximum:"1000"`
	}) (*output[[]TaskResponse], error) {
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListTasks(ctx, email, engine.TaskListOptions{
			Status:    input.Status,
			Squad:     input.Squad,
			CompanyID: input.CompanyID,
			Limit:     input.Limit,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(mapTasks(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*output[TaskResponse], error) {
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.GetTask(ctx, email, input.TaskID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(taskResponse(t)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}",
		Summary:     "Update task",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   UpdateTaskRequest `json:"body"`
	}) (*output[TaskResponse], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		bodyMap := rawBodyMap(ctx)
		patch := engine.TaskPatch{
			Status:                 input.Body.Status,
			ResultText:             input.Body.ResultText,
			ExternalProviderStatus: input.Body.ExternalProviderStatus,
			PrerequisiteTaskID:     input.Body.PrerequisiteTaskID,
		}
		if isNullRaw(bodyMap["prerequisite_task_id"]) {
			cleared := ""
			patch.PrerequisiteTaskID = &cleared
		}
		if isNullRaw(bodyMap["metadata_json"]) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "metadata_json must be an object", map[string]any{"field": "metadata_json"})
		}
		if input.Body.MetadataJSON != nil {
			meta := domain.MetadataFromMap(*input.Body.MetadataJSON)
			patch.Metadata = &meta
		}
		t, err := e.PatchTask(ctx, email, input.TaskID, patch)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(taskResponse(t)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-summary",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/summary",
		Summary:     "Task with its prerequisite and dependents",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*output[TaskSummaryResponse], error) {
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sum, err := e.SummarizeTask(ctx, email, input.TaskID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(TaskSummaryResponse{
			Task:      taskResponse(sum.Task),
			NextSteps: sum.NextSteps,
			DependsOn: sum.DependsOn,
			Blocks:    nonNil(sum.Blocks),
		}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-status",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/status",
		Summary:     "Poll task status",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*output[TaskStatusResponse], error) {
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.GetTask(ctx, email, input.TaskID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(taskStatusResponse(t)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-logs",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/logs",
		Summary:     "Task history, oldest first",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*output[[]TaskLogResponse], error) {
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		logs, err := e.TaskLogs(ctx, email, input.TaskID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(mapTaskLogs(logs)), nil
	})
}

func registerTaskRuns(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "run-task",
		Method:      http.MethodPost,
		Path:        "/tasks/run",
		Summary:     "Create a task and generate its plan",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*output[RunTaskResponse], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.RunTask(ctx, email, createOptions(input.Body))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(RunTaskResponse{OK: true, Task: taskResponse(t)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "run-task-async",
		Method:        http.MethodPost,
		Path:          "/tasks/run_async",
		Summary:       "Create a task and generate its plan in the background",
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*output[RunTaskResponse], error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.RunTaskAsync(ctx, email, createOptions(input.Body))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(RunTaskResponse{OK: true, Task: taskResponse(t)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "recompute-next-steps",
		Method:      http.MethodPost,
		Path:        "/tasks/recompute_next_steps",
		Summary:     "Recompute next steps for all of the caller's tasks",
		Errors:      []int{http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*output[RecomputeResponse], error) {
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := e.RecomputeNextSteps(ctx, email)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(RecomputeResponse{OK: true, Updated: n}), nil
	})
}
