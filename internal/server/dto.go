package server

import (
	"encoding/json"

	"github.com/Fguedes90/opencode-mission-control/internal/domain"
	"github.com/Fguedes90/opencode-mission-control/internal/engine"
)

// Request payloads

type CreateMissionRequest struct {
	ID      string `json:"id" minLength:"1"`
	Title   string `json:"title,omitempty"`
	ActorID string `json:"actor_id,omitempty"`
}

type CreateTaskRequest struct {
	Title              string         `json:"title"`
	Description        string         `json:"description,omitempty"`
	Priority           *int           `json:"priority,omitempty" minimum:"0" maximum:"4"`
	AcceptanceCriteria *string        `json:"acceptance_criteria,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	ActorID            string         `json:"actor_id,omitempty"`
}

type LinkRequest struct {
	BlockerID string `json:"blocker_id"`
	BlockedID string `json:"blocked_id"`
	ActorID   string `json:"actor_id,omitempty"`
}

type ClaimRequest struct {
	AgentID string `json:"agent_id,omitempty"`
}

type UpdateStatusRequest struct {
	Status        string  `json:"status" enum:"pending,ready,in_progress,review,completed,failed,blocked"`
	ResultSummary *string `json:"result_summary,omitempty"`
	ActorID       string  `json:"actor_id,omitempty"`
}

// Response payloads

type MissionResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status" enum:"active,archived"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type TaskResponse struct {
	ID                 string         `json:"id"`
	MissionID          string         `json:"mission_id"`
	Title              string         `json:"title"`
	Description        string         `json:"description,omitempty"`
	Status             string         `json:"status" enum:"pending,ready,in_progress,review,completed,failed,blocked"`
	Priority           int            `json:"priority"`
	Assignee           *string        `json:"assignee,omitempty"`
	AcceptanceCriteria *string        `json:"acceptance_criteria,omitempty"`
	Metadata           map[string]any `json:"metadata"`
	MetadataCorrupt    bool           `json:"metadata_corrupt,omitempty"`
	CreatedAt          string         `json:"created_at" format:"date-time"`
	UpdatedAt          string         `json:"updated_at" format:"date-time"`
}

type DependencyResponse struct {
	MissionID string `json:"mission_id"`
	BlockerID string `json:"blocker_id"`
	BlockedID string `json:"blocked_id"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type DependenciesResponse struct {
	TaskID   string   `json:"task_id"`
	Blockers []string `json:"blockers"`
	Blocked  []string `json:"blocked"`
}

type MissionStatusResponse struct {
	Mission    MissionResponse `json:"mission"`
	TaskCounts map[string]int  `json:"task_counts"`
	Total      int             `json:"total"`
	Ready      int             `json:"ready"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	MissionID  string         `json:"mission_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type taskList struct {
	Items []TaskResponse `json:"items"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func missionResponse(m domain.Mission) MissionResponse {
	return MissionResponse{
		ID:        m.ID,
		Title:     m.Title,
		Status:    string(m.Status),
		CreatedAt: m.CreatedAt,
	}
}

func taskResponse(t domain.Task) TaskResponse {
	md := map[string]any(t.Metadata)
	if md == nil {
		md = map[string]any{}
	}
	return TaskResponse{
		ID:                 t.ID,
		MissionID:          t.MissionID,
		Title:              t.Title,
		Description:        t.Description,
		Status:             string(t.Status),
		Priority:           t.Priority,
		Assignee:           t.Assignee,
		AcceptanceCriteria: t.AcceptanceCriteria,
		Metadata:           md,
		MetadataCorrupt:    t.MetadataCorrupt,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

func dependencyResponse(d domain.Dependency) DependencyResponse {
	return DependencyResponse(d)
}

func dependenciesResponse(d engine.Dependencies) DependenciesResponse {
	return DependenciesResponse(d)
}

func missionStatusResponse(s engine.MissionSummary) MissionStatusResponse {
	counts := make(map[string]int, len(domain.TaskStatuses))
	for _, st := range domain.TaskStatuses {
		counts[string(st)] = s.Counts[st]
	}
	return MissionStatusResponse{
		Mission:    missionResponse(s.Mission),
		TaskCounts: counts,
		Total:      s.Total,
		Ready:      s.Ready,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		MissionID:  e.MissionID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func mapTasks(items []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		out = append(out, taskResponse(t))
	}
	return out
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}
