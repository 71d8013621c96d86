package domain

import "time"

// TimeLayout is the fixed-width UTC layout used for every stored timestamp.
// Lexical order of formatted values equals chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

type MissionStatus string

const (
	MissionActive   MissionStatus = "active"
	MissionArchived MissionStatus = "archived"
)

func (s MissionStatus) Valid() bool {
	return s == MissionActive || s == MissionArchived
}

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusReady      TaskStatus = "ready"
	StatusInProgress TaskStatus = "in_progress"
	StatusReview     TaskStatus = "review"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusBlocked    TaskStatus = "blocked"
)

// TaskStatuses lists every status in lifecycle order.
var TaskStatuses = []TaskStatus{
	StatusPending, StatusReady, StatusInProgress, StatusReview, StatusCompleted, StatusFailed, StatusBlocked,
}

func (s TaskStatus) Valid() bool {
	for _, v := range TaskStatuses {
		if s == v {
			return true
		}
	}
	return false
}

const (
	MinPriority     = 0
	MaxPriority     = 4
	DefaultPriority = 2
)

// Metadata is an open JSON document attached to a task.
type Metadata map[string]any

// Clone returns a shallow copy; nil stays an empty document.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ResultSummaryKey is the metadata key status updates merge results into.
const ResultSummaryKey = "result_summary"

type Mission struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Status    MissionStatus `json:"status" enum:"active,archived"`
	CreatedAt string        `json:"created_at"`
}

type Task struct {
	ID                 string     `json:"id"`
	MissionID          string     `json:"mission_id"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	Status             TaskStatus `json:"status" enum:"pending,ready,in_progress,review,completed,failed,blocked"`
	Priority           int        `json:"priority" minimum:"0" maximum:"4"`
	Assignee           *string    `json:"assignee,omitempty"`
	AcceptanceCriteria *string    `json:"acceptance_criteria,omitempty"`
	Metadata           Metadata   `json:"metadata"`
	// MetadataCorrupt is set when stored metadata could not be decoded and
	// Metadata was replaced by an empty document.
	MetadataCorrupt bool   `json:"metadata_corrupt,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

// AssigneeOr returns the assignee or def when unclaimed.
func (t Task) AssigneeOr(def string) string {
	if t.Assignee == nil {
		return def
	}
	return *t.Assignee
}

type Dependency struct {
	MissionID string `json:"mission_id"`
	BlockerID string `json:"blocker_id"`
	BlockedID string `json:"blocked_id"`
	CreatedAt string `json:"created_at"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	MissionID  string `json:"mission_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
