package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGConfig holds PostgreSQL connection configuration.
type PGConfig struct {
	URL             string        `yaml:"url" json:"url"`
	MaxConns        int32         `yaml:"max_conns" json:"max_conns"`
	MinConns        int32         `yaml:"min_conns" json:"min_conns"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" json:"max_conn_idle_time"`
}

// PGStore wraps a pgxpool.Pool and provides access to all domain stores.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects to PostgreSQL and returns a PGStore.
func NewPGStore(ctx context.Context, cfg PGConfig) (*PGStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse pg config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

// Pool returns the underlying pgxpool.Pool.
func (s *PGStore) Pool() *pgxpool.Pool { return s.pool }

// Close closes the connection pool.
func (s *PGStore) Close() { s.pool.Close() }

// Stores returns every PostgreSQL-backed store sharing the pool.
func (s *PGStore) Stores() Stores {
	return Stores{
		Users:              &PGUserStore{pool: s.pool},
		Tenants:            &PGTenantStore{pool: s.pool},
		TenantMemberships:  &PGTenantMembershipStore{pool: s.pool},
		Projects:           &PGProjectStore{pool: s.pool},
		ProjectMemberships: &PGProjectMembershipStore{pool: s.pool},
		Tasks:              &PGTaskStore{pool: s.pool},
		Comments:           &PGCommentStore{pool: s.pool},
		Attachments:        &PGAttachmentStore{pool: s.pool},
		Audit:              &PGAuditStore{pool: s.pool},
		Tx:                 NewPGTxManager(s.pool),
	}
}
