package missioncontrol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal mission-control HTTP API client. AgentID is sent as
// X-Agent-Id on every request and used as the claimant for ClaimTask.
type Client struct {
	BaseURL    string
	MissionID  string
	AgentID    string
	BasePath   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, missionID, agentID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		MissionID: missionID,
		AgentID:   agentID,
		BasePath:  "/v0",
		Timeout:   10 * time.Second,
	}
}

type Mission struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

type Task struct {
	ID                 string         `json:"id"`
	MissionID          string         `json:"mission_id"`
	Title              string         `json:"title"`
	Description        string         `json:"description,omitempty"`
	Status             string         `json:"status"`
	Priority           int            `json:"priority"`
	Assignee           *string        `json:"assignee,omitempty"`
	AcceptanceCriteria *string        `json:"acceptance_criteria,omitempty"`
	// Metadata numbers decode as json.Number.
	Metadata           map[string]any `json:"metadata"`
	CreatedAt          string         `json:"created_at"`
	UpdatedAt          string         `json:"updated_at"`
}

// NewTask holds the optional fields of CreateTask. A nil Priority takes the
// server's default.
type NewTask struct {
	Title              string         `json:"title"`
	Description        string         `json:"description,omitempty"`
	Priority           *int           `json:"priority,omitempty"`
	AcceptanceCriteria *string        `json:"acceptance_criteria,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

type Dependency struct {
	MissionID string `json:"mission_id"`
	BlockerID string `json:"blocker_id"`
	BlockedID string `json:"blocked_id"`
	CreatedAt string `json:"created_at"`
}

type Dependencies struct {
	TaskID   string   `json:"task_id"`
	Blockers []string `json:"blockers"`
	Blocked  []string `json:"blocked"`
}

type MissionStatus struct {
	Mission    Mission        `json:"mission"`
	TaskCounts map[string]int `json:"task_counts"`
	Total      int            `json:"total"`
	Ready      int            `json:"ready"`
}

type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	MissionID  string         `json:"mission_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code is the server's error kind, such as
// task_locked or cycle_detected.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Owner returns the current holder reported by a task_locked error.
func (e *APIError) Owner() string {
	owner, _ := e.Details["owner"].(string)
	return owner
}

func (c *Client) CreateMission(ctx context.Context, id, title string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodPost, "missions", map[string]any{"id": id, "title": title}, &resp)
	return resp, err
}

func (c *Client) Status(ctx context.Context) (MissionStatus, error) {
	var resp MissionStatus
	err := c.do(ctx, http.MethodGet, c.missionPath("status"), nil, &resp)
	return resp, err
}

func (c *Client) CreateTask(ctx context.Context, in NewTask) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, c.missionPath("tasks"), in, &resp)
	return resp, err
}

func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ReadyTasks returns up to limit claimable tasks, best first. limit <= 0 returns all.
func (c *Client) ReadyTasks(ctx context.Context, limit int) ([]Task, error) {
	endpoint := c.missionPath("tasks/ready")
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}
	return c.tasks(ctx, endpoint)
}

func (c *Client) ActiveTasks(ctx context.Context) ([]Task, error) {
	return c.tasks(ctx, c.missionPath("tasks/active"))
}

// Tasks lists the mission's tasks, narrowed to statuses when given.
func (c *Client) Tasks(ctx context.Context, statuses ...string) ([]Task, error) {
	endpoint := c.missionPath("tasks")
	if len(statuses) > 0 {
		endpoint += "?status=" + url.QueryEscape(strings.Join(statuses, ","))
	}
	return c.tasks(ctx, endpoint)
}

func (c *Client) tasks(ctx context.Context, endpoint string) ([]Task, error) {
	var resp struct {
		Items []Task `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) Link(ctx context.Context, blockerID, blockedID string) (Dependency, error) {
	var resp Dependency
	err := c.do(ctx, http.MethodPost, "links", map[string]any{"blocker_id": blockerID, "blocked_id": blockedID}, &resp)
	return resp, err
}

func (c *Client) Unlink(ctx context.Context, blockerID, blockedID string) error {
	return c.do(ctx, http.MethodDelete, "links/"+url.PathEscape(blockerID)+"/"+url.PathEscape(blockedID), nil, nil)
}

func (c *Client) Dependencies(ctx context.Context, taskID string) (Dependencies, error) {
	var resp Dependencies
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(taskID)+"/dependencies", nil, &resp)
	return resp, err
}

// ClaimTask claims taskID for the client's agent.
func (c *Client) ClaimTask(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks/"+url.PathEscape(taskID)+"/claim", map[string]any{"agent_id": c.AgentID}, &resp)
	return resp, err
}

func (c *Client) ReleaseTask(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks/"+url.PathEscape(taskID)+"/release", map[string]any{"agent_id": c.AgentID}, &resp)
	return resp, err
}

// UpdateStatus sets a task's status; a non-empty summary is stored as its result.
func (c *Client) UpdateStatus(ctx context.Context, taskID, status, summary string) (Task, error) {
	body := map[string]any{"status": status}
	if summary != "" {
		body["result_summary"] = summary
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks/"+url.PathEscape(taskID)+"/status", body, &resp)
	return resp, err
}

// EventsPage returns a page of the audit log. An empty cursor returns the
// newest events; otherwise events after cursor, oldest first.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := c.missionPath("events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.AgentID != "" {
		req.Header.Set("X-Agent-Id", c.AgentID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		dec := json.NewDecoder(resp.Body)
		dec.UseNumber()
		return dec.Decode(out)
	}
	return nil
}

func (c *Client) missionPath(p string) string {
	return fmt.Sprintf("missions/%s/%s", url.PathEscape(c.MissionID), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if bp := strings.Trim(c.BasePath, "/"); bp != "" {
		base += "/" + bp
	}
	return base
}
