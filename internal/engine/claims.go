package engine

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Fguedes90/opencode-mission-control/internal/domain"
	"github.com/Fguedes90/opencode-mission-control/internal/events"
	"github.com/Fguedes90/opencode-mission-control/internal/repo"
)

// ClaimTask hands taskID to agentID and moves it to in_progress.
//
// The checks and the write share one transaction that takes the write lock at
// BEGIN, and the write itself only applies while the task is still unowned or
// owned by agentID. Of several concurrent claimants exactly one wins; the
// rest get a *TaskLockedError naming the winner.
func (e Engine) ClaimTask(ctx context.Context, taskID, agentID string) (t domain.Task, err error) {
	ctx, done := observe(ctx, "claim_task",
		attribute.String("task.id", taskID),
		attribute.String("agent.id", agentID))
	defer done(&err)

	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return t, invalidf("agent id is required")
	}
	result := "won"
	err = e.Repo.RunInTransaction(ctx, func(tx repo.Repo) error {
		cur, err := getTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		open, err := tx.GetOpenBlockers(ctx, taskID)
		if err != nil {
			return err
		}
		if len(open) > 0 {
			result = "blocked"
			return invalidf("task %s is blocked by %s", taskID, strings.Join(open, ", "))
		}
		if cur.Assignee != nil && *cur.Assignee != agentID {
			result = "locked"
			return &TaskLockedError{TaskID: taskID, Owner: *cur.Assignee}
		}
		if cur.Status == domain.StatusCompleted {
			result = "completed"
			return invalidf("task %s is already completed", taskID)
		}
		if cur.Status == domain.StatusInProgress && cur.Assignee != nil {
			result = "noop"
			t = cur
			return nil
		}
		now := e.timestamp()
		ok, err := tx.ClaimTask(ctx, taskID, agentID, now)
		if err != nil {
			return err
		}
		if !ok {
			return e.lostClaim(ctx, tx, taskID, &result)
		}
		t = cur
		t.Status = domain.StatusInProgress
		t.Assignee = &agentID
		t.UpdatedAt = now
		return e.appendEvent(ctx, tx, events.TaskClaimed, t.MissionID, events.KindTask, taskID, agentID, events.Payload{
			"agent_id": agentID,
			"from":     cur.Status,
		})
	})
	claimsTotal.WithLabelValues(result).Inc()
	if err != nil {
		return domain.Task{}, err
	}
	if result == "won" {
		e.Log.Info("task claimed", "task_id", taskID, "agent_id", agentID)
	}
	return t, nil
}

// lostClaim explains a compare-and-set that matched no row.
func (e Engine) lostClaim(ctx context.Context, tx repo.Repo, taskID string, result *string) error {
	latest, err := getTask(ctx, tx, taskID)
	if err != nil {
		return err
	}
	if latest.Assignee != nil {
		*result = "locked"
		return &TaskLockedError{TaskID: taskID, Owner: *latest.Assignee}
	}
	*result = "completed"
	return invalidf("task %s is already completed", taskID)
}

// ReleaseTask returns a task held by agentID to pending and clears its
// assignee.
func (e Engine) ReleaseTask(ctx context.Context, taskID, agentID string) (t domain.Task, err error) {
	ctx, done := observe(ctx, "release_task",
		attribute.String("task.id", taskID),
		attribute.String("agent.id", agentID))
	defer done(&err)

	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return t, invalidf("agent id is required")
	}
	err = e.Repo.RunInTransaction(ctx, func(tx repo.Repo) error {
		cur, err := getTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if cur.Assignee == nil {
			return invalidf("task %s is not claimed", taskID)
		}
		if *cur.Assignee != agentID {
			return &TaskLockedError{TaskID: taskID, Owner: *cur.Assignee}
		}
		t = cur
		t.Status = domain.StatusPending
		t.Assignee = nil
		t.UpdatedAt = e.timestamp()
		if err := tx.UpdateTaskStatus(ctx, taskID, t.Status, nil, nil, t.UpdatedAt); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.TaskReleased, t.MissionID, events.KindTask, taskID, agentID, events.Payload{
			"agent_id": agentID,
			"from":     cur.Status,
		})
	})
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}
