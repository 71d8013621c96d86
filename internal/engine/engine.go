package engine

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Fguedes90/opencode-mission-control/internal/config"
	"github.com/Fguedes90/opencode-mission-control/internal/domain"
	"github.com/Fguedes90/opencode-mission-control/internal/events"
	"github.com/Fguedes90/opencode-mission-control/internal/ids"
	"github.com/Fguedes90/opencode-mission-control/internal/repo"
)

const systemActor = "system"

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	IDs    ids.Generator
	Log    *slog.Logger
	Now    func() time.Time
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.Log = l }
}

func WithIDs(g ids.Generator) Option {
	return func(e *Engine) { e.IDs = g }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.Now = now }
}

// New wires an engine over an open, migrated database. A nil or invalid cfg
// is replaced by config.Default().
func New(db *sql.DB, cfg *config.Config, opts ...Option) Engine {
	e := Engine{
		DB:  db,
		IDs: ids.Random{},
		Log: slog.Default(),
		Now: time.Now,
	}
	for _, opt := range opts {
		opt(&e)
	}
	if cfg == nil {
		cfg = config.Default()
	} else if err := cfg.Validate(); err != nil {
		e.Log.Warn("engine config invalid, using defaults", "err", err)
		cfg = config.Default()
	}
	e.Config = cfg
	e.Repo = repo.New(db,
		repo.WithLogger(e.Log),
		repo.WithMetadataPolicy(repo.MetadataPolicy(cfg.Tasks.MetadataPolicy)),
		repo.WithMaxBusyRetries(cfg.Database.MaxBusyRetries),
	)
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return domain.FormatTime(e.now())
}

func (e Engine) appendEvent(ctx context.Context, tx repo.Repo, evtType, missionID, kind, entityID, actor string, payload events.Payload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Append(ctx, tx.Conn(), evtType, missionID, kind, entityID, actorOr(actor), payload)
}

func actorOr(actor string) string {
	if strings.TrimSpace(actor) == "" {
		return systemActor
	}
	return actor
}

// CreateMission registers a mission under a caller-chosen id. An empty title
// falls back to the id.
func (e Engine) CreateMission(ctx context.Context, id, title, actorID string) (m domain.Mission, err error) {
	ctx, done := observe(ctx, "create_mission", attribute.String("mission.id", id))
	defer done(&err)

	id = strings.TrimSpace(id)
	if id == "" {
		return m, invalidf("mission id is required")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = id
	}
	m = domain.Mission{ID: id, Title: title, Status: domain.MissionActive, CreatedAt: e.timestamp()}
	err = e.Repo.RunInTransaction(ctx, func(tx repo.Repo) error {
		if _, err := tx.GetMission(ctx, id); err == nil {
			return invalidf("mission %s already exists", id)
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if err := tx.CreateMission(ctx, m); err != nil {
			if errors.Is(err, repo.ErrAlreadyExists) {
				return invalidf("mission %s already exists", id)
			}
			return err
		}
		return e.appendEvent(ctx, tx, events.MissionCreated, id, events.KindMission, id, actorID, events.Payload{"title": title})
	})
	if err != nil {
		return domain.Mission{}, err
	}
	e.Log.Info("mission created", "mission_id", id)
	return m, nil
}

func (e Engine) GetMission(ctx context.Context, id string) (domain.Mission, error) {
	return getMission(ctx, e.Repo, id)
}

// ListMissions returns missions newest first; an empty status lists all.
func (e Engine) ListMissions(ctx context.Context, status domain.MissionStatus) ([]domain.Mission, error) {
	if status != "" && !status.Valid() {
		return nil, invalidf("unknown mission status %q", status)
	}
	return e.Repo.ListMissions(ctx, status)
}

// ArchiveMission marks a mission archived. Archiving twice is a no-op.
func (e Engine) ArchiveMission(ctx context.Context, id, actorID string) (m domain.Mission, err error) {
	ctx, done := observe(ctx, "archive_mission", attribute.String("mission.id", id))
	defer done(&err)

	err = e.Repo.RunInTransaction(ctx, func(tx repo.Repo) error {
		cur, err := getMission(ctx, tx, id)
		if err != nil {
			return err
		}
		m = cur
		if cur.Status == domain.MissionArchived {
			return nil
		}
		if err := tx.UpdateMissionStatus(ctx, id, domain.MissionArchived); err != nil {
			return err
		}
		m.Status = domain.MissionArchived
		return e.appendEvent(ctx, tx, events.MissionArchived, id, events.KindMission, id, actorID, nil)
	})
	if err != nil {
		return domain.Mission{}, err
	}
	return m, nil
}

// MissionSummary is a mission with its task counts.
type MissionSummary struct {
	Mission domain.Mission            `json:"mission"`
	Counts  map[domain.TaskStatus]int `json:"counts"`
	Total   int                       `json:"total"`
	Ready   int                       `json:"ready"`
}

func (e Engine) MissionStatus(ctx context.Context, missionID string) (MissionSummary, error) {
	m, err := getMission(ctx, e.Repo, missionID)
	if err != nil {
		return MissionSummary{}, err
	}
	counts, err := e.Repo.CountTasksByStatus(ctx, missionID)
	if err != nil {
		return MissionSummary{}, err
	}
	ready, err := e.Repo.GetReadyTasks(ctx, missionID, 0)
	if err != nil {
		return MissionSummary{}, err
	}
	s := MissionSummary{Mission: m, Counts: counts, Ready: len(ready)}
	for _, n := range counts {
		s.Total += n
	}
	return s, nil
}

// LatestEvents returns the newest audit events matching f.
func (e Engine) LatestEvents(ctx context.Context, f repo.EventFilter, limit int) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, limit, f)
}

// EventsAfter returns audit events after cursor, oldest first.
func (e Engine) EventsAfter(ctx context.Context, f repo.EventFilter, cursor int64, limit int) ([]domain.Event, error) {
	return e.Repo.EventsAfter(ctx, limit, cursor, f)
}

func getMission(ctx context.Context, r repo.Repo, id string) (domain.Mission, error) {
	m, err := r.GetMission(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return m, missionNotFound(id)
	}
	return m, err
}

func getTask(ctx context.Context, r repo.Repo, id string) (domain.Task, error) {
	t, err := r.GetTask(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return t, taskNotFound(id)
	}
	return t, err
}
