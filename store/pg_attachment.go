package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGAttachmentStore implements AttachmentStore backed by PostgreSQL.
type PGAttachmentStore struct {
	pool *pgxpool.Pool
}

const attachmentColumns = `id, task_id, comment_id, uploaded_by, file_name, content_type, size, storage_key, created_at`

func (s *PGAttachmentStore) Create(ctx context.Context, a *Attachment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := db(ctx, s.pool).QueryRow(ctx, `
		INSERT INTO attachments (id, task_id, comment_id, uploaded_by, file_name, content_type, size, storage_key, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
		RETURNING created_at`,
		a.ID, a.TaskID, a.CommentID, a.UploadedBy, a.FileName, a.ContentType, a.Size, a.StorageKey).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (s *PGAttachmentStore) Get(ctx context.Context, id uuid.UUID) (*Attachment, error) {
	return one(db(ctx, s.pool).QueryRow(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE id = $1`, id), scanAttachment)
}

func (s *PGAttachmentStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db(ctx, s.pool).Exec(ctx, `DELETE FROM attachments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGAttachmentStore) List(ctx context.Context, f AttachmentFilter) ([]*Attachment, error) {
	q := filterQuery{sql: `SELECT ` + attachmentColumns + ` FROM attachments WHERE 1=1`}
	if f.TaskID != nil {
		q.where(`task_id = $%d`, *f.TaskID)
	}
	if f.CommentID != nil {
		q.where(`comment_id = $%d`, *f.CommentID)
	}
	q.page("created_at", f.Pagination)

	rows, err := db(ctx, s.pool).Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return collect(rows, scanAttachment)
}

func scanAttachment(row pgx.Row) (*Attachment, error) {
	var a Attachment
	err := row.Scan(&a.ID, &a.TaskID, &a.CommentID, &a.UploadedBy, &a.FileName, &a.ContentType, &a.Size,
		&a.StorageKey, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan attachment: %w", err)
	}
	return &a, nil
}
