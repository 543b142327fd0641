package store

import (
	"context"
	"fmt"

	"github.com/denusbtw/projecthub-sub000/role"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGProjectMembershipStore implements ProjectMembershipStore backed by PostgreSQL.
// The schema's partial unique index on (project_id, role) backs the
// one-holder-per-singular-role rule.
type PGProjectMembershipStore struct {
	pool *pgxpool.Pool
}

// singularRoleIndex backs the one-holder rule for singular roles.
const singularRoleIndex = "uq_project_memberships_singular_role"

const projectMembershipColumns = `id, project_id, user_id, role, created_by, updated_by, created_at, updated_at`

func (s *PGProjectMembershipStore) Create(ctx context.Context, m *ProjectMembership) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	err := db(ctx, s.pool).QueryRow(ctx, `
		INSERT INTO project_memberships (id, project_id, user_id, role, created_by, updated_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW())
		RETURNING created_at, updated_at`,
		m.ID, m.ProjectID, m.UserID, m.Role, m.CreatedBy, m.UpdatedBy).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isDuplicateError(err) {
			if constraintName(err) == singularRoleIndex {
				return fmt.Errorf("%w: role %s already held", ErrDuplicate, m.Role)
			}
			return ErrAlreadyMember
		}
		return fmt.Errorf("insert project membership: %w", err)
	}
	return nil
}

func (s *PGProjectMembershipStore) Get(ctx context.Context, id uuid.UUID) (*ProjectMembership, error) {
	return one(db(ctx, s.pool).QueryRow(ctx,
		`SELECT `+projectMembershipColumns+` FROM project_memberships WHERE id = $1`, id), scanProjectMembership)
}

func (s *PGProjectMembershipStore) GetForUser(ctx context.Context, projectID, userID uuid.UUID) (*ProjectMembership, error) {
	return one(db(ctx, s.pool).QueryRow(ctx,
		`SELECT `+projectMembershipColumns+` FROM project_memberships WHERE project_id = $1 AND user_id = $2`,
		projectID, userID), scanProjectMembership)
}

func (s *PGProjectMembershipStore) GetByRole(ctx context.Context, projectID uuid.UUID, r role.Project) (*ProjectMembership, error) {
	sql := `SELECT ` + projectMembershipColumns + ` FROM project_memberships
		WHERE project_id = $1 AND role = $2 ORDER BY created_at LIMIT 1`
	if inTx(ctx) {
		sql += ` FOR UPDATE`
	}
	return one(db(ctx, s.pool).QueryRow(ctx, sql, projectID, r), scanProjectMembership)
}

func (s *PGProjectMembershipStore) Update(ctx context.Context, m *ProjectMembership) error {
	tag, err := db(ctx, s.pool).Exec(ctx, `
		UPDATE project_memberships SET role=$2, updated_by=$3, updated_at=NOW()
		WHERE id=$1`,
		m.ID, m.Role, m.UpdatedBy)
	if err != nil {
		if isDuplicateError(err) {
			return fmt.Errorf("%w: role %s already held", ErrDuplicate, m.Role)
		}
		return fmt.Errorf("update project membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGProjectMembershipStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db(ctx, s.pool).Exec(ctx, `DELETE FROM project_memberships WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGProjectMembershipStore) List(ctx context.Context, f ProjectMembershipFilter) ([]*ProjectMembership, error) {
	q := filterQuery{sql: `SELECT ` + projectMembershipColumns + ` FROM project_memberships WHERE 1=1`}
	if f.ProjectID != nil {
		q.where(`project_id = $%d`, *f.ProjectID)
	}
	if f.UserID != nil {
		q.where(`user_id = $%d`, *f.UserID)
	}
	if f.Role != "" {
		q.where(`role = $%d`, f.Role)
	}
	q.page("created_at", f.Pagination)

	rows, err := db(ctx, s.pool).Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, fmt.Errorf("list project memberships: %w", err)
	}
	return collect(rows, scanProjectMembership)
}

func scanProjectMembership(row pgx.Row) (*ProjectMembership, error) {
	var m ProjectMembership
	err := row.Scan(&m.ID, &m.ProjectID, &m.UserID, &m.Role, &m.CreatedBy, &m.UpdatedBy, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan project membership: %w", err)
	}
	return &m, nil
}
