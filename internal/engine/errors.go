package engine

import (
	"errors"
	"fmt"

	"github.com/Fguedes90/opencode-mission-control/internal/graph"
)

var (
	ErrMissionNotFound  = errors.New("mission not found")
	ErrTaskNotFound     = errors.New("task not found")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrTaskLocked       = errors.New("task locked")
	// ErrCycleDetected matches every *graph.CycleError.
	ErrCycleDetected = graph.ErrCycle
)

// TaskLockedError names the agent currently holding a task.
type TaskLockedError struct {
	TaskID string
	Owner  string
}

func (e *TaskLockedError) Error() string {
	return fmt.Sprintf("task %s is locked by %s", e.TaskID, e.Owner)
}

func (e *TaskLockedError) Unwrap() error { return ErrTaskLocked }

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOperation, fmt.Sprintf(format, args...))
}

func taskNotFound(id string) error {
	return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
}

func missionNotFound(id string) error {
	return fmt.Errorf("%w: %s", ErrMissionNotFound, id)
}

// Kind returns a short stable label for err, used for metrics and API codes.
func Kind(err error) string {
	var locked *TaskLockedError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMissionNotFound):
		return "mission_not_found"
	case errors.Is(err, ErrTaskNotFound):
		return "task_not_found"
	case errors.Is(err, ErrCycleDetected):
		return "cycle_detected"
	case errors.As(err, &locked), errors.Is(err, ErrTaskLocked):
		return "task_locked"
	case errors.Is(err, ErrInvalidOperation):
		return "invalid_operation"
	default:
		return "internal"
	}
}
