package engine

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Fguedes90/opencode-mission-control/internal/domain"
	"github.com/Fguedes90/opencode-mission-control/internal/events"
	"github.com/Fguedes90/opencode-mission-control/internal/graph"
	"github.com/Fguedes90/opencode-mission-control/internal/repo"
)

// LinkTasks records that blocker must complete before blocked becomes ready.
// Both tasks must share a mission and the edge must keep the graph acyclic.
// Linking an existing edge again returns it unchanged.
func (e Engine) LinkTasks(ctx context.Context, blockerID, blockedID, actorID string) (d domain.Dependency, err error) {
	ctx, done := observe(ctx, "link_tasks",
		attribute.String("task.blocker", blockerID),
		attribute.String("task.blocked", blockedID))
	defer done(&err)

	result := "added"
	err = e.Repo.RunInTransaction(ctx, func(tx repo.Repo) error {
		blocker, err := getTask(ctx, tx, blockerID)
		if err != nil {
			return err
		}
		blocked, err := getTask(ctx, tx, blockedID)
		if err != nil {
			return err
		}
		if blocker.MissionID != blocked.MissionID {
			result = "cross_mission"
			return invalidf("cannot link %s (mission %s) to %s (mission %s) across missions",
				blockerID, blocker.MissionID, blockedID, blocked.MissionID)
		}
		existing, err := tx.GetDependency(ctx, blockerID, blockedID)
		if err == nil {
			result = "existing"
			d = existing
			return nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if err := graph.WouldCreateCycle(ctx, tx.GetBlockers, blockerID, blockedID); err != nil {
			if errors.Is(err, graph.ErrCycle) {
				result = "cycle"
			}
			return err
		}
		d = domain.Dependency{MissionID: blocker.MissionID, BlockerID: blockerID, BlockedID: blockedID, CreatedAt: e.timestamp()}
		if err := tx.AddDependency(ctx, d); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.TaskLinked, d.MissionID, events.KindDependency, blockedID, actorID, events.Payload{
			"blocker_id": blockerID,
			"blocked_id": blockedID,
		})
	})
	linksTotal.WithLabelValues(result).Inc()
	if err != nil {
		return domain.Dependency{}, err
	}
	return d, nil
}

// UnlinkTasks removes the blocker -> blocked edge.
func (e Engine) UnlinkTasks(ctx context.Context, blockerID, blockedID, actorID string) (err error) {
	ctx, done := observe(ctx, "unlink_tasks",
		attribute.String("task.blocker", blockerID),
		attribute.String("task.blocked", blockedID))
	defer done(&err)

	return e.Repo.RunInTransaction(ctx, func(tx repo.Repo) error {
		blocker, err := getTask(ctx, tx, blockerID)
		if err != nil {
			return err
		}
		if _, err := getTask(ctx, tx, blockedID); err != nil {
			return err
		}
		if err := tx.RemoveDependency(ctx, blockerID, blockedID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return invalidf("%s does not block %s", blockerID, blockedID)
			}
			return err
		}
		return e.appendEvent(ctx, tx, events.TaskUnlinked, blocker.MissionID, events.KindDependency, blockedID, actorID, events.Payload{
			"blocker_id": blockerID,
			"blocked_id": blockedID,
		})
	})
}

// Dependencies are a task's direct neighbours in the graph.
type Dependencies struct {
	TaskID   string   `json:"task_id"`
	Blockers []string `json:"blockers"`
	Blocked  []string `json:"blocked"`
}

func (e Engine) GetDependencies(ctx context.Context, taskID string) (Dependencies, error) {
	deps := Dependencies{TaskID: taskID, Blockers: []string{}, Blocked: []string{}}
	if _, err := getTask(ctx, e.Repo, taskID); err != nil {
		return deps, err
	}
	blockers, err := e.Repo.GetBlockers(ctx, taskID)
	if err != nil {
		return deps, err
	}
	blocked, err := e.Repo.GetBlocked(ctx, taskID)
	if err != nil {
		return deps, err
	}
	deps.Blockers = append(deps.Blockers, blockers...)
	deps.Blocked = append(deps.Blocked, blocked...)
	return deps, nil
}

// ListDependencies returns every edge in a mission.
func (e Engine) ListDependencies(ctx context.Context, missionID string) ([]domain.Dependency, error) {
	if _, err := getMission(ctx, e.Repo, missionID); err != nil {
		return nil, err
	}
	return e.Repo.ListDependencies(ctx, missionID)
}
