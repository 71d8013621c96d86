package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Fguedes90/opencode-mission-control/internal/domain"
)

// AddDependency inserts the edge. Acyclicity is the caller's job; the schema
// rejects self-loops and edges whose endpoints are not in d.MissionID.
func (r Repo) AddDependency(ctx context.Context, d domain.Dependency) error {
	_, err := r.Conn().ExecContext(ctx, `INSERT INTO dependencies(mission_id,blocker_id,blocked_id,created_at) VALUES (?,?,?,?)`,
		d.MissionID, d.BlockerID, d.BlockedID, d.CreatedAt)
	if IsUniqueViolation(err) {
		return fmt.Errorf("dependency %s -> %s: %w", d.BlockerID, d.BlockedID, ErrAlreadyExists)
	}
	return err
}

func (r Repo) RemoveDependency(ctx context.Context, blockerID, blockedID string) error {
	res, err := r.Conn().ExecContext(ctx, `DELETE FROM dependencies WHERE blocker_id=? AND blocked_id=?`, blockerID, blockedID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetDependency(ctx context.Context, blockerID, blockedID string) (domain.Dependency, error) {
	var d domain.Dependency
	err := r.Conn().QueryRowContext(ctx, `SELECT mission_id,blocker_id,blocked_id,created_at FROM dependencies WHERE blocker_id=? AND blocked_id=?`, blockerID, blockedID).
		Scan(&d.MissionID, &d.BlockerID, &d.BlockedID, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrNotFound
	}
	return d, err
}

// GetBlockers returns the direct blockers of taskID.
func (r Repo) GetBlockers(ctx context.Context, taskID string) ([]string, error) {
	return r.queryIDs(ctx, `SELECT blocker_id FROM dependencies WHERE blocked_id=? ORDER BY blocker_id`, taskID)
}

// GetBlocked returns the tasks directly blocked by taskID.
func (r Repo) GetBlocked(ctx context.Context, taskID string) ([]string, error) {
	return r.queryIDs(ctx, `SELECT blocked_id FROM dependencies WHERE blocker_id=? ORDER BY blocked_id`, taskID)
}

// GetOpenBlockers returns the direct blockers of taskID that are not completed.
func (r Repo) GetOpenBlockers(ctx context.Context, taskID string) ([]string, error) {
	return r.queryIDs(ctx, `SELECT d.blocker_id FROM dependencies d JOIN tasks b ON b.id=d.blocker_id
WHERE d.blocked_id=? AND b.status<>? ORDER BY d.blocker_id`, taskID, domain.StatusCompleted)
}

func (r Repo) ListDependencies(ctx context.Context, missionID string) ([]domain.Dependency, error) {
	rows, err := r.Conn().QueryContext(ctx, `SELECT mission_id,blocker_id,blocked_id,created_at FROM dependencies
WHERE mission_id=? ORDER BY created_at ASC, blocker_id ASC, blocked_id ASC`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Dependency
	for rows.Next() {
		var d domain.Dependency
		if err := rows.Scan(&d.MissionID, &d.BlockerID, &d.BlockedID, &d.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// HasAncestorPath reports whether ancestorID is a transitive blocker of taskID.
func (r Repo) HasAncestorPath(ctx context.Context, taskID, ancestorID string) (bool, error) {
	var one int
	err := r.Conn().QueryRowContext(ctx, `WITH RECURSIVE ancestors(id) AS (
  SELECT blocker_id FROM dependencies WHERE blocked_id=?
  UNION
  SELECT d.blocker_id FROM dependencies d JOIN ancestors a ON d.blocked_id=a.id
)
SELECT 1 FROM ancestors WHERE id=? LIMIT 1`, taskID, ancestorID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}
