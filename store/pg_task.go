package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGTaskStore implements TaskStore backed by PostgreSQL.
type PGTaskStore struct {
	pool *pgxpool.Pool
}

const taskColumns = `id, project_id, title, description, responsible_id, status, priority, start_date, end_date,
	created_by, updated_by, created_at, updated_at`

func (s *PGTaskStore) Create(ctx context.Context, t *Task) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	err := db(ctx, s.pool).QueryRow(ctx, `
		INSERT INTO tasks (id, project_id, title, description, responsible_id, status, priority, start_date, end_date,
			created_by, updated_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW(),NOW())
		RETURNING created_at, updated_at`,
		t.ID, t.ProjectID, t.Title, t.Description, t.ResponsibleID, t.Status, t.Priority, t.StartDate, t.EndDate,
		t.CreatedBy, t.UpdatedBy).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *PGTaskStore) Get(ctx context.Context, id uuid.UUID) (*Task, error) {
	return one(db(ctx, s.pool).QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id), scanTask)
}

func (s *PGTaskStore) Update(ctx context.Context, t *Task) error {
	tag, err := db(ctx, s.pool).Exec(ctx, `
		UPDATE tasks SET title=$2, description=$3, responsible_id=$4, status=$5, priority=$6,
			start_date=$7, end_date=$8, updated_by=$9, updated_at=NOW()
		WHERE id=$1`,
		t.ID, t.Title, t.Description, t.ResponsibleID, t.Status, t.Priority, t.StartDate, t.EndDate, t.UpdatedBy)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db(ctx, s.pool).Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGTaskStore) List(ctx context.Context, f TaskFilter) ([]*Task, error) {
	q := filterQuery{sql: `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`}
	if f.ProjectID != nil {
		q.where(`project_id = $%d`, *f.ProjectID)
	}
	if f.ResponsibleID != nil {
		q.where(`responsible_id = $%d`, *f.ResponsibleID)
	}
	q.page("created_at", f.Pagination)

	rows, err := db(ctx, s.pool).Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return collect(rows, scanTask)
}

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.ResponsibleID, &t.Status, &t.Priority,
		&t.StartDate, &t.EndDate, &t.CreatedBy, &t.UpdatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return &t, nil
}
