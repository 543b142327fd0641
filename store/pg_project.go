package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGProjectStore implements ProjectStore backed by PostgreSQL.
type PGProjectStore struct {
	pool *pgxpool.Pool
}

const projectColumns = `id, tenant_id, name, description, status, start_date, end_date, close_date,
	created_by, updated_by, created_at, updated_at`

func (s *PGProjectStore) Create(ctx context.Context, p *Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = ProjectStatusPending
	}
	err := db(ctx, s.pool).QueryRow(ctx, `
		INSERT INTO projects (id, tenant_id, name, description, status, start_date, end_date, close_date,
			created_by, updated_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW())
		RETURNING created_at, updated_at`,
		p.ID, p.TenantID, p.Name, p.Description, p.Status, p.StartDate, p.EndDate, p.CloseDate,
		p.CreatedBy, p.UpdatedBy).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *PGProjectStore) Get(ctx context.Context, id uuid.UUID) (*Project, error) {
	return one(db(ctx, s.pool).QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id), scanProject)
}

func (s *PGProjectStore) Update(ctx context.Context, p *Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	tag, err := db(ctx, s.pool).Exec(ctx, `
		UPDATE projects SET name=$2, description=$3, status=$4, start_date=$5, end_date=$6, close_date=$7,
			updated_by=$8, updated_at=NOW()
		WHERE id=$1`,
		p.ID, p.Name, p.Description, p.Status, p.StartDate, p.EndDate, p.CloseDate, p.UpdatedBy)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGProjectStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db(ctx, s.pool).Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGProjectStore) List(ctx context.Context, f ProjectFilter) ([]*Project, error) {
	q := filterQuery{sql: `SELECT ` + projectColumns + ` FROM projects WHERE 1=1`}
	if f.TenantID != nil {
		q.where(`tenant_id = $%d`, *f.TenantID)
	}
	if f.MemberID != nil {
		q.where(`id IN (SELECT project_id FROM project_memberships WHERE user_id = $%d)`, *f.MemberID)
	}
	if f.Status != "" {
		q.where(`status = $%d`, f.Status)
	}
	q.page("created_at", f.Pagination)

	rows, err := db(ctx, s.pool).Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return collect(rows, scanProject)
}

func (s *PGProjectStore) ArchiveEnded(ctx context.Context, now time.Time) (int64, error) {
	tag, err := db(ctx, s.pool).Exec(ctx, `
		UPDATE projects SET status=$1, close_date=$2, updated_at=$2
		WHERE status <> $1 AND end_date IS NOT NULL AND end_date < $2`,
		ProjectStatusArchived, now)
	if err != nil {
		return 0, fmt.Errorf("archive ended projects: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanProject(row pgx.Row) (*Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Description, &p.Status, &p.StartDate, &p.EndDate, &p.CloseDate,
		&p.CreatedBy, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}
	return &p, nil
}
