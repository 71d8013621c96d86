package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Fguedes90/opencode-mission-control/internal/domain"
	"github.com/Fguedes90/opencode-mission-control/internal/engine"
	"github.com/Fguedes90/opencode-mission-control/internal/graph"
	"github.com/Fguedes90/opencode-mission-control/internal/repo"
)

// AgentHeader carries the calling agent's id when the body does not.
const AgentHeader = "X-Agent-Id"

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"task_locked"`
	Message string         `json:"message" example:"task launch-00000001 is locked by agent-a"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"owner\":\"agent-a\"}"`
}

// apiError models the error envelope every endpoint returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the mission-control API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	log := cfg.Engine.Log
	if log == nil {
		log = slog.Default()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors are plain bad requests.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			msgs := make([]string, 0, len(errs))
			for _, err := range errs {
				msgs = append(msgs, err.Error())
			}
			details = map[string]any{"errors": msgs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(log))
	hcfg := huma.DefaultConfig("Mission Control API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	router.Handle("/metrics", promhttp.Handler())
	registerHealth(group)
	registerMissions(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerLinks(group, cfg.Engine)
	registerClaims(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start))
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps engine errors onto the API envelope. The code is the
// engine's error kind so agents can branch on it without parsing messages.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	msg := err.Error()
	var locked *engine.TaskLockedError
	if errors.As(err, &locked) {
		return newAPIError(http.StatusConflict, "task_locked", msg, map[string]any{"task_id": locked.TaskID, "owner": locked.Owner})
	}
	var cycle *graph.CycleError
	if errors.As(err, &cycle) {
		return newAPIError(http.StatusConflict, "cycle_detected", msg, map[string]any{
			"blocker_id": cycle.Blocker,
			"blocked_id": cycle.Blocked,
			"path":       cycle.Path,
		})
	}
	switch kind := engine.Kind(err); kind {
	case "mission_not_found", "task_not_found":
		return newAPIError(http.StatusNotFound, kind, msg, nil)
	case "invalid_operation":
		if strings.Contains(msg, "already exists") {
			return newAPIError(http.StatusConflict, kind, msg, nil)
		}
		return newAPIError(http.StatusBadRequest, kind, msg, nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	}
	if repo.IsBusy(err) {
		return newAPIError(http.StatusServiceUnavailable, "busy", "database is busy, retry later", map[string]any{"error": msg})
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		doc  []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			doc, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil || oas.Components == nil || oas.Components.Schemas == nil {
		return
	}
	errSchema := oas.Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "ApiError")
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {Schema: errSchema},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Mission Control API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

var standardErrors = []int{
	http.StatusBadRequest,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusInternalServerError,
}

type missionOutput struct {
	Body MissionResponse `json:"body"`
}

type taskOutput struct {
	Body TaskResponse `json:"body"`
}

type taskListOutput struct {
	Body taskList `json:"body"`
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerMissions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-mission",
		Method:        http.MethodPost,
		Path:          "/missions",
		Summary:       "Create mission",
		DefaultStatus: http.StatusCreated,
		Errors:        standardErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateMissionRequest `json:"body"`
	}) (*missionOutput, error) {
		m, err := e.CreateMission(ctx, input.Body.ID, input.Body.Title, input.Body.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &missionOutput{Body: missionResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-missions",
		Method:      http.MethodGet,
		Path:        "/missions",
		Summary:     "List missions",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"active,archived"`
	}) (*struct {
		Body []MissionResponse `json:"body"`
	}, error) {
		items, err := e.ListMissions(ctx, domain.MissionStatus(input.Status))
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]MissionResponse, 0, len(items))
		for _, m := range items {
			out = append(out, missionResponse(m))
		}
		return &struct {
			Body []MissionResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-mission",
		Method:      http.MethodGet,
		Path:        "/missions/{mission_id}",
		Summary:     "Get mission",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MissionID string `path:"mission_id"`
	}) (*missionOutput, error) {
		m, err := e.GetMission(ctx, input.MissionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &missionOutput{Body: missionResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "archive-mission",
		Method:      http.MethodPost,
		Path:        "/missions/{mission_id}/archive",
		Summary:     "Archive mission",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MissionID string `path:"mission_id"`
		ActorID   string `header:"X-Agent-Id"`
	}) (*missionOutput, error) {
		m, err := e.ArchiveMission(ctx, input.MissionID, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &missionOutput{Body: missionResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mission-status",
		Method:      http.MethodGet,
		Path:        "/missions/{mission_id}/status",
		Summary:     "Mission task counts",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MissionID string `path:"mission_id"`
	}) (*struct {
		Body MissionStatusResponse `json:"body"`
	}, error) {
		s, err := e.MissionStatus(ctx, input.MissionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionStatusResponse `json:"body"`
		}{Body: missionStatusResponse(s)}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/missions/{mission_id}/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        standardErrors,
	}, func(ctx context.Context, input *struct {
		MissionID string            `path:"mission_id"`
		AgentID   string            `header:"X-Agent-Id"`
		Body      CreateTaskRequest `json:"body"`
	}) (*taskOutput, error) {
		t, err := e.CreateTask(ctx, engine.CreateTaskInput{
			MissionID:          input.MissionID,
			Title:              input.Body.Title,
			Description:        input.Body.Description,
			Priority:           input.Body.Priority,
			AcceptanceCriteria: input.Body.AcceptanceCriteria,
			Metadata:           domain.Metadata(input.Body.Metadata),
			ActorID:            firstNonEmpty(input.Body.ActorID, input.AgentID),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/missions/{mission_id}/tasks",
		Summary:     "List mission tasks",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MissionID string   `path:"mission_id"`
		Status    []string `query:"status"`
	}) (*taskListOutput, error) {
		statuses := make([]domain.TaskStatus, 0, len(input.Status))
		for _, s := range input.Status {
			if s = strings.TrimSpace(s); s != "" {
				statuses = append(statuses, domain.TaskStatus(s))
			}
		}
		items, err := e.GetAllTasks(ctx, input.MissionID, statuses...)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskListOutput{Body: taskList{Items: mapTasks(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "ready-tasks",
		Method:      http.MethodGet,
		Path:        "/missions/{mission_id}/tasks/ready",
		Summary:     "Tasks whose blockers are all completed",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MissionID string `path:"mission_id"`
		Limit     int    `query:"limit" minimum:"0" default:"0"`
	}) (*taskListOutput, error) {
		items, err := e.GetReadyTasks(ctx, input.MissionID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskListOutput{Body: taskList{Items: mapTasks(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "active-tasks",
		Method:      http.MethodGet,
		Path:        "/missions/{mission_id}/tasks/active",
		Summary:     "Tasks in progress",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MissionID string `path:"mission_id"`
	}) (*taskListOutput, error) {
		items, err := e.GetActiveTasks(ctx, input.MissionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskListOutput{Body: taskList{Items: mapTasks(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*taskOutput, error) {
		t, err := e.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task-status",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/status",
		Summary:     "Set task status",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *struct {
		TaskID  string              `path:"task_id"`
		AgentID string              `header:"X-Agent-Id"`
		Body    UpdateStatusRequest `json:"body"`
	}) (*taskOutput, error) {
		t, err := e.UpdateTaskStatus(ctx, input.TaskID, domain.TaskStatus(input.Body.Status),
			input.Body.ResultSummary, firstNonEmpty(input.Body.ActorID, input.AgentID))
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-dependencies",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/dependencies",
		Summary:     "Direct blockers and dependents of a task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body DependenciesResponse `json:"body"`
	}, error) {
		d, err := e.GetDependencies(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DependenciesResponse `json:"body"`
		}{Body: dependenciesResponse(d)}, nil
	})
}

func registerLinks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "link-tasks",
		Method:      http.MethodPost,
		Path:        "/links",
		Summary:     "Make one task block another",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *struct {
		AgentID string      `header:"X-Agent-Id"`
		Body    LinkRequest `json:"body"`
	}) (*struct {
		Body DependencyResponse `json:"body"`
	}, error) {
		if input.Body.BlockerID == "" || input.Body.BlockedID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "blocker_id and blocked_id are required", nil)
		}
		d, err := e.LinkTasks(ctx, input.Body.BlockerID, input.Body.BlockedID, firstNonEmpty(input.Body.ActorID, input.AgentID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DependencyResponse `json:"body"`
		}{Body: dependencyResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "unlink-tasks",
		Method:        http.MethodDelete,
		Path:          "/links/{blocker_id}/{blocked_id}",
		Summary:       "Remove a dependency",
		DefaultStatus: http.StatusNoContent,
		Errors:        standardErrors,
	}, func(ctx context.Context, input *struct {
		BlockerID string `path:"blocker_id"`
		BlockedID string `path:"blocked_id"`
		AgentID   string `header:"X-Agent-Id"`
	}) (*struct{}, error) {
		if err := e.UnlinkTasks(ctx, input.BlockerID, input.BlockedID, input.AgentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-dependencies",
		Method:      http.MethodGet,
		Path:        "/missions/{mission_id}/dependencies",
		Summary:     "Every dependency in a mission",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MissionID string `path:"mission_id"`
	}) (*struct {
		Body []DependencyResponse `json:"body"`
	}, error) {
		items, err := e.ListDependencies(ctx, input.MissionID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]DependencyResponse, 0, len(items))
		for _, d := range items {
			out = append(out, dependencyResponse(d))
		}
		return &struct {
			Body []DependencyResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerClaims(api huma.API, e engine.Engine) {
	type claimInput struct {
		TaskID  string       `path:"task_id"`
		AgentID string       `header:"X-Agent-Id"`
		Body    ClaimRequest `json:"body" required:"false"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "claim-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/claim",
		Summary:     "Claim a ready task",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *claimInput) (*taskOutput, error) {
		agentID := firstNonEmpty(input.Body.AgentID, input.AgentID)
		if agentID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "agent_id or "+AgentHeader+" header is required", nil)
		}
		t, err := e.ClaimTask(ctx, input.TaskID, agentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "release-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/release",
		Summary:     "Release a claimed task",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *claimInput) (*taskOutput, error) {
		agentID := firstNonEmpty(input.Body.AgentID, input.AgentID)
		if agentID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "agent_id or "+AgentHeader+" header is required", nil)
		}
		t, err := e.ReleaseTask(ctx, input.TaskID, agentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: taskResponse(t)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/missions/{mission_id}/events",
		Summary:     "List audit events",
		Description: "Without a cursor the newest events come first. With a cursor, events after it come oldest first and next_cursor continues the feed.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MissionID  string `path:"mission_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"mission,task,dependency"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if _, err := e.GetMission(ctx, input.MissionID); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		filter := repo.EventFilter{
			MissionID:  input.MissionID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
		}
		var (
			items []domain.Event
			err   error
		)
		if input.Cursor == "" {
			items, err = e.LatestEvents(ctx, filter, limit)
		} else {
			cursor, perr := strconv.ParseInt(input.Cursor, 10, 64)
			if perr != nil || cursor < 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			items, err = e.EventsAfter(ctx, filter, cursor, limit)
		}
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: make([]EventResponse, 0, len(items))}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		if input.Cursor != "" {
			next := input.Cursor
			if len(items) > 0 {
				next = strconv.FormatInt(items[len(items)-1].ID, 10)
			}
			resp.NextCursor = next
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func normalizeLimit(in int) int {
	switch {
	case in <= 0:
		return 50
	case in > 500:
		return 500
	default:
		return in
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
