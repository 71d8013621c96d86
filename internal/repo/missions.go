package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Fguedes90/opencode-mission-control/internal/domain"
)

const missionColumns = `id,title,status,created_at`

func scanMission(row interface{ Scan(...any) error }) (domain.Mission, error) {
	var m domain.Mission
	err := row.Scan(&m.ID, &m.Title, &m.Status, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrNotFound
	}
	return m, err
}

// CreateMission inserts m; a duplicate id yields ErrAlreadyExists.
func (r Repo) CreateMission(ctx context.Context, m domain.Mission) error {
	_, err := r.Conn().ExecContext(ctx, `INSERT INTO missions(`+missionColumns+`) VALUES (?,?,?,?)`,
		m.ID, m.Title, m.Status, m.CreatedAt)
	if IsUniqueViolation(err) {
		return fmt.Errorf("mission %s: %w", m.ID, ErrAlreadyExists)
	}
	return err
}

func (r Repo) GetMission(ctx context.Context, id string) (domain.Mission, error) {
	return scanMission(r.Conn().QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE id=?`, id))
}

// ListMissions returns missions newest first, optionally filtered by status.
func (r Repo) ListMissions(ctx context.Context, status domain.MissionStatus) ([]domain.Mission, error) {
	query := `SELECT ` + missionColumns + ` FROM missions`
	var args []any
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) UpdateMissionStatus(ctx context.Context, id string, status domain.MissionStatus) error {
	res, err := r.Conn().ExecContext(ctx, `UPDATE missions SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
