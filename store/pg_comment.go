package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGCommentStore implements CommentStore backed by PostgreSQL.
type PGCommentStore struct {
	pool *pgxpool.Pool
}

const commentColumns = `id, task_id, author_id, body, created_at, updated_at`

func (s *PGCommentStore) Create(ctx context.Context, c *Comment) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	err := db(ctx, s.pool).QueryRow(ctx, `
		INSERT INTO comments (id, task_id, author_id, body, created_at, updated_at)
		VALUES ($1,$2,$3,$4,NOW(),NOW())
		RETURNING created_at, updated_at`,
		c.ID, c.TaskID, c.AuthorID, c.Body).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PGCommentStore) Get(ctx context.Context, id uuid.UUID) (*Comment, error) {
	return one(db(ctx, s.pool).QueryRow(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = $1`, id), scanComment)
}

func (s *PGCommentStore) Update(ctx context.Context, c *Comment) error {
	tag, err := db(ctx, s.pool).Exec(ctx,
		`UPDATE comments SET body=$2, updated_at=NOW() WHERE id=$1`, c.ID, c.Body)
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGCommentStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db(ctx, s.pool).Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGCommentStore) List(ctx context.Context, f CommentFilter) ([]*Comment, error) {
	q := filterQuery{sql: `SELECT ` + commentColumns + ` FROM comments WHERE 1=1`}
	if f.TaskID != nil {
		q.where(`task_id = $%d`, *f.TaskID)
	}
	q.page("created_at", f.Pagination)

	rows, err := db(ctx, s.pool).Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return collect(rows, scanComment)
}

func scanComment(row pgx.Row) (*Comment, error) {
	var c Comment
	if err := row.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Body, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan comment: %w", err)
	}
	return &c, nil
}
