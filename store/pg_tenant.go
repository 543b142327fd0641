package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGTenantStore implements TenantStore backed by PostgreSQL.
type PGTenantStore struct {
	pool *pgxpool.Pool
}

const tenantColumns = `id, name, subdomain, active, created_by, updated_by, created_at, updated_at`

func (s *PGTenantStore) Create(ctx context.Context, t *Tenant) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	err := db(ctx, s.pool).QueryRow(ctx, `
		INSERT INTO tenants (id, name, subdomain, active, created_by, updated_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW())
		RETURNING created_at, updated_at`,
		t.ID, t.Name, t.Subdomain, t.Active, t.CreatedBy, t.UpdatedBy).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if isDuplicateError(err) {
			return fmt.Errorf("%w: subdomain %s", ErrDuplicate, t.Subdomain)
		}
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (s *PGTenantStore) Get(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	return one(db(ctx, s.pool).QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id), scanTenant)
}

func (s *PGTenantStore) GetBySubdomain(ctx context.Context, subdomain string) (*Tenant, error) {
	return one(db(ctx, s.pool).QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE subdomain = $1`, subdomain), scanTenant)
}

func (s *PGTenantStore) Update(ctx context.Context, t *Tenant) error {
	tag, err := db(ctx, s.pool).Exec(ctx, `
		UPDATE tenants SET name=$2, subdomain=$3, active=$4, updated_by=$5, updated_at=NOW()
		WHERE id=$1`,
		t.ID, t.Name, t.Subdomain, t.Active, t.UpdatedBy)
	if err != nil {
		if isDuplicateError(err) {
			return fmt.Errorf("%w: subdomain %s", ErrDuplicate, t.Subdomain)
		}
		return fmt.Errorf("update tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTenant(row pgx.Row) (*Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Subdomain, &t.Active, &t.CreatedBy, &t.UpdatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	return &t, nil
}
