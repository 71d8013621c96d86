package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Fguedes90/opencode-mission-control/internal/domain"
	"github.com/Fguedes90/opencode-mission-control/internal/events"
	"github.com/Fguedes90/opencode-mission-control/internal/repo"
)

var validate = validator.New()

// idAttempts bounds regeneration when a generated task id collides.
const idAttempts = 3

// CreateTaskInput are parameters for creating a task. A nil Priority takes
// the configured default.
type CreateTaskInput struct {
	MissionID          string          `validate:"required"`
	Title              string          `validate:"required,max=500"`
	Description        string
	Priority           *int            `validate:"omitempty,min=0,max=4"`
	AcceptanceCriteria *string
	Metadata           domain.Metadata
	ActorID            string
}

func (e Engine) defaultPriority() int {
	if e.Config != nil {
		return e.Config.Tasks.DefaultPriority
	}
	return domain.DefaultPriority
}

func (e Engine) CreateTask(ctx context.Context, in CreateTaskInput) (t domain.Task, err error) {
	ctx, done := observe(ctx, "create_task", attribute.String("mission.id", in.MissionID))
	defer done(&err)

	in.MissionID = strings.TrimSpace(in.MissionID)
	in.Title = strings.TrimSpace(in.Title)
	if err := validate.Struct(in); err != nil {
		return t, invalidf("%s", describeValidation(err))
	}
	priority := e.defaultPriority()
	if in.Priority != nil {
		priority = *in.Priority
	}
	md := domain.Metadata{}
	if in.Metadata != nil {
		md = in.Metadata.Clone()
	}

	err = e.Repo.RunInTransaction(ctx, func(tx repo.Repo) error {
		m, err := getMission(ctx, tx, in.MissionID)
		if err != nil {
			return err
		}
		now := e.timestamp()
		t = domain.Task{
			MissionID:          m.ID,
			Title:              in.Title,
			Description:        in.Description,
			Status:             domain.StatusPending,
			Priority:           priority,
			AcceptanceCriteria: in.AcceptanceCriteria,
			Metadata:           md,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		for attempt := 1; ; attempt++ {
			t.ID = e.IDs.NewTaskID(m.Title)
			err = tx.CreateTask(ctx, t)
			if !errors.Is(err, repo.ErrAlreadyExists) || attempt == idAttempts {
				break
			}
		}
		if err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.TaskCreated, m.ID, events.KindTask, t.ID, in.ActorID, events.Payload{
			"title":    t.Title,
			"priority": t.Priority,
		})
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.Log.Debug("task created", "task_id", t.ID, "mission_id", t.MissionID, "priority", t.Priority)
	return t, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch {
		case fe.Tag() == "required":
			msgs = append(msgs, field+" is required")
		case fe.Field() == "Priority":
			msgs = append(msgs, fmt.Sprintf("priority must be between %d and %d", domain.MinPriority, domain.MaxPriority))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		}
	}
	return strings.Join(msgs, "; ")
}

// UpdateTaskStatus sets any status. Every status other than in_progress
// clears the assignee; a non-nil resultSummary is merged into metadata under
// domain.ResultSummaryKey.
func (e Engine) UpdateTaskStatus(ctx context.Context, taskID string, status domain.TaskStatus, resultSummary *string, actorID string) (t domain.Task, err error) {
	ctx, done := observe(ctx, "update_task_status",
		attribute.String("task.id", taskID),
		attribute.String("task.status", string(status)))
	defer done(&err)

	if !status.Valid() {
		return t, invalidf("unknown task status %q", status)
	}
	err = e.Repo.RunInTransaction(ctx, func(tx repo.Repo) error {
		cur, err := getTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		t = cur
		if status != domain.StatusInProgress {
			t.Assignee = nil
		}
		var md domain.Metadata
		if resultSummary != nil {
			md = cur.Metadata.Clone()
			md[domain.ResultSummaryKey] = *resultSummary
			t.Metadata = md
			t.MetadataCorrupt = false
		}
		t.Status = status
		t.UpdatedAt = e.timestamp()
		if err := tx.UpdateTaskStatus(ctx, taskID, status, t.Assignee, md, t.UpdatedAt); err != nil {
			return err
		}
		payload := events.Payload{"from": cur.Status, "to": status}
		if cur.Assignee != nil {
			payload["previous_assignee"] = *cur.Assignee
		}
		if resultSummary != nil {
			payload[domain.ResultSummaryKey] = *resultSummary
		}
		return e.appendEvent(ctx, tx, events.TaskStatusChanged, t.MissionID, events.KindTask, taskID, actorID, payload)
	})
	if err != nil {
		return domain.Task{}, err
	}
	statusUpdatesTotal.WithLabelValues(string(status)).Inc()
	return t, nil
}

func (e Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return getTask(ctx, e.Repo, id)
}

// GetReadyTasks returns pending tasks with every blocker completed, by
// priority then age. limit <= 0 returns all of them.
func (e Engine) GetReadyTasks(ctx context.Context, missionID string, limit int) (tasks []domain.Task, err error) {
	ctx, done := observe(ctx, "get_ready_tasks", attribute.String("mission.id", missionID))
	defer done(&err)

	if _, err = getMission(ctx, e.Repo, missionID); err != nil {
		return nil, err
	}
	return e.Repo.GetReadyTasks(ctx, missionID, limit)
}

// GetAllTasks lists a mission's tasks, narrowed to statuses when given.
func (e Engine) GetAllTasks(ctx context.Context, missionID string, statuses ...domain.TaskStatus) ([]domain.Task, error) {
	for _, s := range statuses {
		if !s.Valid() {
			return nil, invalidf("unknown task status %q", s)
		}
	}
	if _, err := getMission(ctx, e.Repo, missionID); err != nil {
		return nil, err
	}
	return e.Repo.GetTasksByMission(ctx, missionID, statuses...)
}

// GetActiveTasks lists the mission's in-progress tasks.
func (e Engine) GetActiveTasks(ctx context.Context, missionID string) ([]domain.Task, error) {
	return e.GetAllTasks(ctx, missionID, domain.StatusInProgress)
}
