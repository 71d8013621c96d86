package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Fguedes90/opencode-mission-control/internal/domain"
)

const taskColumns = `id,mission_id,title,description,status,priority,assignee,acceptance_criteria,metadata_json,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r Repo) scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var description, assignee, criteria sql.NullString
	var meta string
	err := row.Scan(&t.ID, &t.MissionID, &t.Title, &description, &t.Status, &t.Priority, &assignee, &criteria, &meta, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Description = description.String
	t.Assignee = stringPtr(assignee)
	t.AcceptanceCriteria = stringPtr(criteria)
	t.Metadata, t.MetadataCorrupt, err = r.decodeMetadata(t.ID, meta)
	return t, err
}

// decodeMetadata applies the metadata policy to a stored document. Numbers
// come back as json.Number so integers beyond 2^53 keep every digit.
func (r Repo) decodeMetadata(taskID, raw string) (domain.Metadata, bool, error) {
	md := domain.Metadata{}
	if strings.TrimSpace(raw) == "" {
		return md, false, nil
	}
	if err := unmarshalMetadata(raw, &md); err != nil {
		if r.Metadata == MetadataStrict {
			return nil, false, fmt.Errorf("task %s: %w: %v", taskID, ErrCorruptMetadata, err)
		}
		r.Log.Warn("task metadata unreadable, returning empty metadata", "task_id", taskID, "err", err)
		return domain.Metadata{}, true, nil
	}
	if md == nil {
		md = domain.Metadata{}
	}
	return md, false, nil
}

func unmarshalMetadata(raw string, md *domain.Metadata) error {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(md); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("trailing data after metadata document")
	}
	return nil
}

func encodeMetadata(md domain.Metadata) (string, error) {
	if md == nil {
		md = domain.Metadata{}
	}
	data, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(data), nil
}

func (r Repo) CreateTask(ctx context.Context, t domain.Task) error {
	meta, err := encodeMetadata(t.Metadata)
	if err != nil {
		return err
	}
	_, err = r.Conn().ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.MissionID, t.Title, nullable(t.Description), t.Status, t.Priority,
		nullableStringPtr(t.Assignee), nullableStringPtr(t.AcceptanceCriteria), meta, t.CreatedAt, t.UpdatedAt)
	switch {
	case IsUniqueViolation(err):
		return fmt.Errorf("task %s: %w", t.ID, ErrAlreadyExists)
	case IsForeignKeyViolation(err):
		return fmt.Errorf("mission %s: %w", t.MissionID, ErrNotFound)
	}
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return r.scanTask(r.Conn().QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

// UpdateTaskStatus sets status and assignee. A nil metadata keeps the stored
// document.
func (r Repo) UpdateTaskStatus(ctx context.Context, id string, status domain.TaskStatus, assignee *string, md domain.Metadata, now string) error {
	fields := []string{"status=?", "assignee=?", "updated_at=?"}
	args := []any{status, nullableStringPtr(assignee), now}
	if md != nil {
		meta, err := encodeMetadata(md)
		if err != nil {
			return err
		}
		fields = append(fields, "metadata_json=?")
		args = append(args, meta)
	}
	args = append(args, id)
	res, err := r.Conn().ExecContext(ctx, `UPDATE tasks SET `+strings.Join(fields, ",")+` WHERE id=?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimTask moves the task to in_progress under agentID when it is not
// completed and either unassigned or already held by agentID. It reports
// whether the row was updated; false means another writer got there first.
func (r Repo) ClaimTask(ctx context.Context, id, agentID, now string) (bool, error) {
	res, err := r.Conn().ExecContext(ctx, `UPDATE tasks SET status=?, assignee=?, updated_at=?
WHERE id=? AND status<>? AND (assignee IS NULL OR assignee=?)`,
		domain.StatusInProgress, agentID, now, id, domain.StatusCompleted, agentID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetTasksByMission lists a mission's tasks in scheduling order, restricted
// to the given statuses when any are passed.
func (r Repo) GetTasksByMission(ctx context.Context, missionID string, statuses ...domain.TaskStatus) ([]domain.Task, error) {
	clauses := []string{"mission_id=?"}
	args := []any{missionID}
	if len(statuses) > 0 {
		marks := make([]string, len(statuses))
		for i, s := range statuses {
			marks[i] = "?"
			args = append(args, s)
		}
		clauses = append(clauses, "status IN ("+strings.Join(marks, ",")+")")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(clauses, " AND ") +
		` ORDER BY priority ASC, created_at ASC, id ASC`
	return r.queryTasks(ctx, query, args...)
}

// GetReadyTasks returns pending tasks whose blockers are all completed,
// lowest priority value first, then oldest. limit <= 0 returns every row.
func (r Repo) GetReadyTasks(ctx context.Context, missionID string, limit int) ([]domain.Task, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT ` + prefixed("t", taskColumns) + ` FROM tasks t
WHERE t.mission_id=? AND t.status=?
AND NOT EXISTS (
  SELECT 1 FROM dependencies d JOIN tasks b ON b.id=d.blocker_id
  WHERE d.blocked_id=t.id AND b.status<>?
)
ORDER BY t.priority ASC, t.created_at ASC, t.id ASC
LIMIT ?`
	return r.queryTasks(ctx, query, missionID, domain.StatusPending, domain.StatusCompleted, limit)
}

func (r Repo) CountTasksByStatus(ctx context.Context, missionID string) (map[domain.TaskStatus]int, error) {
	rows, err := r.Conn().QueryContext(ctx, `SELECT status, count(*) FROM tasks WHERE mission_id=? GROUP BY status`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[domain.TaskStatus]int{}
	for rows.Next() {
		var status domain.TaskStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

func (r Repo) queryTasks(ctx context.Context, query string, args ...any) ([]domain.Task, error) {
	rows, err := r.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := r.scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ",")
}
