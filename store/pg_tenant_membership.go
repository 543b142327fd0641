package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGTenantMembershipStore implements TenantMembershipStore backed by PostgreSQL.
type PGTenantMembershipStore struct {
	pool *pgxpool.Pool
}

const tenantMembershipColumns = `id, tenant_id, user_id, role, created_by, updated_by, created_at, updated_at`

func (s *PGTenantMembershipStore) Create(ctx context.Context, m *TenantMembership) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	err := db(ctx, s.pool).QueryRow(ctx, `
		INSERT INTO tenant_memberships (id, tenant_id, user_id, role, created_by, updated_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW())
		RETURNING created_at, updated_at`,
		m.ID, m.TenantID, m.UserID, m.Role, m.CreatedBy, m.UpdatedBy).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isDuplicateError(err) {
			return fmt.Errorf("%w: tenant membership already exists", ErrDuplicate)
		}
		return fmt.Errorf("insert tenant membership: %w", err)
	}
	return nil
}

func (s *PGTenantMembershipStore) Get(ctx context.Context, id uuid.UUID) (*TenantMembership, error) {
	return one(db(ctx, s.pool).QueryRow(ctx,
		`SELECT `+tenantMembershipColumns+` FROM tenant_memberships WHERE id = $1`, id), scanTenantMembership)
}

func (s *PGTenantMembershipStore) GetForUser(ctx context.Context, tenantID, userID uuid.UUID) (*TenantMembership, error) {
	return one(db(ctx, s.pool).QueryRow(ctx,
		`SELECT `+tenantMembershipColumns+` FROM tenant_memberships WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID), scanTenantMembership)
}

func (s *PGTenantMembershipStore) Update(ctx context.Context, m *TenantMembership) error {
	tag, err := db(ctx, s.pool).Exec(ctx, `
		UPDATE tenant_memberships SET role=$2, updated_by=$3, updated_at=NOW()
		WHERE id=$1`,
		m.ID, m.Role, m.UpdatedBy)
	if err != nil {
		return fmt.Errorf("update tenant membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGTenantMembershipStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db(ctx, s.pool).Exec(ctx, `DELETE FROM tenant_memberships WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete tenant membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGTenantMembershipStore) List(ctx context.Context, f TenantMembershipFilter) ([]*TenantMembership, error) {
	q := filterQuery{sql: `SELECT ` + tenantMembershipColumns + ` FROM tenant_memberships WHERE 1=1`}
	if f.TenantID != nil {
		q.where(`tenant_id = $%d`, *f.TenantID)
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
		return nil, fmt.Errorf("list tenant memberships: %w", err)
	}
	return collect(rows, scanTenantMembership)
}

func scanTenantMembership(row pgx.Row) (*TenantMembership, error) {
	var m TenantMembership
	err := row.Scan(&m.ID, &m.TenantID, &m.UserID, &m.Role, &m.CreatedBy, &m.UpdatedBy, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan tenant membership: %w", err)
	}
	return &m, nil
}
