// Package graph decides whether a new dependency edge would close a cycle.
//
// Edges point from blocker to blocked. Lookups go through a BlockersFunc so
// the package owns no storage; callers bind it to whatever view of the edge
// set must be consistent with the insert (typically an open transaction).
package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrCycle is the kind carried by every CycleError.
var ErrCycle = errors.New("cycle detected")

// BlockersFunc returns the direct blockers of a task.
type BlockersFunc func(ctx context.Context, taskID string) ([]string, error)

// CycleError describes the edge that was rejected and a witness path.
// Path follows edge direction and starts and ends with Blocked.
type CycleError struct {
	Blocker  string
	Blocked  string
	Path     []string
	SelfLoop bool
}

func (e *CycleError) Error() string {
	if e == nil {
		return ""
	}
	if e.SelfLoop {
		return fmt.Sprintf("%s: task %s cannot block itself", ErrCycle, e.Blocker)
	}
	msg := fmt.Sprintf("%s: %s -> %s", ErrCycle, e.Blocker, e.Blocked)
	if len(e.Path) > 0 {
		msg += " (" + strings.Join(e.Path, " -> ") + ")"
	}
	return msg
}

func (e *CycleError) Unwrap() error { return ErrCycle }

// WouldCreateCycle returns a *CycleError when adding blocker -> blocked would
// make the graph cyclic, nil when the edge is safe, or the lookup error.
//
// The walk starts at blocker and follows blockers of blockers breadth-first.
// Reaching blocked means blocked already transitively gates blocker, so the
// new edge would close a loop.
func WouldCreateCycle(ctx context.Context, blockersOf BlockersFunc, blocker, blocked string) error {
	if blocker == blocked {
		return &CycleError{Blocker: blocker, Blocked: blocked, Path: []string{blocker, blocked}, SelfLoop: true}
	}
	// next[x] is the task x was discovered from, i.e. the edge x -> next[x].
	next := map[string]string{blocker: ""}
	queue := []string{blocker}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		cur := queue[0]
		queue = queue[1:]
		parents, err := blockersOf(ctx, cur)
		if err != nil {
			return err
		}
		for _, p := range parents {
			if _, seen := next[p]; seen {
				continue
			}
			next[p] = cur
			if p == blocked {
				return &CycleError{Blocker: blocker, Blocked: blocked, Path: witness(next, blocked)}
			}
			queue = append(queue, p)
		}
	}
	return nil
}

// witness walks discovery links from blocked down to the root blocker and
// closes the loop with the rejected edge.
func witness(next map[string]string, blocked string) []string {
	path := []string{blocked}
	for cur := next[blocked]; cur != ""; cur = next[cur] {
		path = append(path, cur)
	}
	return append(path, blocked)
}

// Reachable reports whether to is a transitive blocker of from.
func Reachable(ctx context.Context, blockersOf BlockersFunc, from, to string) (bool, error) {
	seen := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		parents, err := blockersOf(ctx, cur)
		if err != nil {
			return false, err
		}
		for _, p := range parents {
			if p == to {
				return true, nil
			}
			if !seen[p] {
				seen[p] = true
				queue = append(queue, p)
			}
		}
	}
	return false, nil
}

// MapBlockers adapts an in-memory adjacency map (blocked -> blockers).
func MapBlockers(m map[string][]string) BlockersFunc {
	return func(_ context.Context, id string) ([]string, error) {
		return m[id], nil
	}
}
