package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Fguedes90/opencode-mission-control/internal/domain"
)

// Event types written by the engine.
const (
	MissionCreated    = "mission.created"
	MissionArchived   = "mission.archived"
	TaskCreated       = "task.created"
	TaskLinked        = "task.linked"
	TaskUnlinked      = "task.unlinked"
	TaskClaimed       = "task.claimed"
	TaskReleased      = "task.released"
	TaskStatusChanged = "task.status_changed"
)

const (
	KindMission    = "mission"
	KindTask       = "task"
	KindDependency = "dependency"
)

// Execer is the write half of *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Writer struct {
	Now func() time.Time
}

type Payload map[string]any

// Append records one audit row. Pass the open transaction so the row commits
// or rolls back with the change it describes.
func (w Writer) Append(ctx context.Context, ex Execer, evtType, missionID, entityKind, entityID, actorID string, payload Payload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = ex.ExecContext(ctx, `INSERT INTO events(ts,type,mission_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		domain.FormatTime(now()), evtType, nullable(missionID), entityKind, nullable(entityID), actorID, string(data))
	return err
}

// Decode unmarshals an event's payload.
func Decode(e domain.Event) (Payload, error) {
	p := Payload{}
	if e.Payload == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(e.Payload), &p); err != nil {
		return nil, fmt.Errorf("event %d payload: %w", e.ID, err)
	}
	return p, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
