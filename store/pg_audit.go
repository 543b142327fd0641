package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGAuditStore implements AuditStore backed by PostgreSQL. Records join the
// caller's transaction when there is one.
type PGAuditStore struct {
	pool *pgxpool.Pool
}

func (s *PGAuditStore) Record(ctx context.Context, e *AuditEntry) error {
	err := db(ctx, s.pool).QueryRow(ctx, `
		INSERT INTO audit_log (tenant_id, user_id, action, resource_type, resource_id, details, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,NOW())
		RETURNING id, created_at`,
		e.TenantID, e.UserID, e.Action, e.ResourceType, e.ResourceID, e.Details).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}

func (s *PGAuditStore) Query(ctx context.Context, f AuditFilter) ([]*AuditEntry, error) {
	q := filterQuery{sql: `SELECT id, tenant_id, user_id, action, resource_type, resource_id, details, created_at
		FROM audit_log WHERE 1=1`}
	if f.TenantID != nil {
		q.where(`tenant_id = $%d`, *f.TenantID)
	}
	if f.UserID != nil {
		q.where(`user_id = $%d`, *f.UserID)
	}
	if f.Action != "" {
		q.where(`action = $%d`, f.Action)
	}
	if f.ResourceType != "" {
		q.where(`resource_type = $%d`, f.ResourceType)
	}
	if f.ResourceID != nil {
		q.where(`resource_id = $%d`, *f.ResourceID)
	}
	q.page("id", f.Pagination)

	rows, err := db(ctx, s.pool).Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	return collect(rows, scanAuditEntry)
}

func scanAuditEntry(row pgx.Row) (*AuditEntry, error) {
	var e AuditEntry
	err := row.Scan(&e.ID, &e.TenantID, &e.UserID, &e.Action, &e.ResourceType, &e.ResourceID, &e.Details, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan audit entry: %w", err)
	}
	return &e, nil
}
