package storage

import (
	"context"
	"errors"
	"fmt"

	"contentflow/internal/models"
	"contentflow/internal/util"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type DocumentRepo struct {
	db *DB
}

func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

const documentColumns = `id, uuid::text, user_id, COALESCE(url,''), type, COALESCE(title,''), COALESCE(description,''),
       COALESCE(preview_image,''), raw, COALESCE(content,''), COALESCE(content_hash,''), processed,
       COALESCE(error_message,''), created_at, updated_at`

func scanDocument(row pgx.Row) (models.Document, error) {
	var d models.Document
	err := row.Scan(&d.ID, &d.UUID, &d.UserID, &d.URL, &d.Type, &d.Title, &d.Description,
		&d.PreviewImage, &d.Raw, &d.Content, &d.ContentHash, &d.Processed,
		&d.ErrorMessage, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (r *DocumentRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents WHERE user_id=$1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// DuplicateQuery matches a document of the same user whose content hash is
// equal, or whose type is equal and whose url or raw text is equal. Empty
// fields never match.
type DuplicateQuery struct {
	UserID      string
	Type        models.ContentType
	URL         string
	Raw         string
	ContentHash string
	ExcludeID   int64
}

func (r *DocumentRepo) FindDuplicate(ctx context.Context, q DuplicateQuery) (int64, bool, error) {
	var id int64
	err := r.db.Pool.QueryRow(ctx, `
SELECT id
FROM documents
WHERE user_id = $1
  AND id <> $6
  AND (
        ($5 <> '' AND content_hash = $5)
     OR (type = $2 AND (($3 <> '' AND url = $3) OR ($4 <> '' AND md5(raw) = md5($4) AND raw = $4)))
  )
ORDER BY id
LIMIT 1`, q.UserID, string(q.Type), q.URL, q.Raw, q.ContentHash, q.ExcludeID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find duplicate document: %w", err)
	}
	return id, true, nil
}

func (r *DocumentRepo) FindByURL(ctx context.Context, userID string, t models.ContentType, url string) (models.Document, bool, error) {
	if url == "" {
		return models.Document{}, false, nil
	}
	d, err := scanDocument(r.db.Pool.QueryRow(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE user_id=$1 AND type=$2 AND url=$3`, userID, string(t), url))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Document{}, false, nil
	}
	if err != nil {
		return models.Document{}, false, fmt.Errorf("find document by url: %w", err)
	}
	return d, true, nil
}

func (r *DocumentRepo) GetByUUID(ctx context.Context, userID, id string) (models.Document, error) {
	d, err := scanDocument(r.db.Pool.QueryRow(ctx, `
SELECT `+documentColumns+` FROM documents WHERE user_id=$1 AND uuid::text=$2`, userID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Document{}, fmt.Errorf("get document %s: %w", id, util.ErrNotFound)
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("get document by uuid: %w", err)
	}
	return d, nil
}

// InsertPlaceholder creates the unprocessed row for a first-time ingestion.
// The uuid doubles as the idempotency key: replaying the insert returns the
// row created by the first attempt.
func (r *DocumentRepo) InsertPlaceholder(ctx context.Context, d models.Document) (models.Document, error) {
	if d.UUID == "" {
		d.UUID = uuid.NewString()
	}
	row := r.db.Pool.QueryRow(ctx, `
INSERT INTO documents (uuid, user_id, url, type, raw, processed)
VALUES ($1::uuid, $2, NULLIF($3,''), $4, $5, FALSE)
ON CONFLICT (uuid) DO UPDATE SET updated_at = documents.updated_at
RETURNING `+documentColumns, d.UUID, d.UserID, d.URL, string(d.Type), d.Raw)
	out, err := scanDocument(row)
	if err != nil {
		return models.Document{}, mapWriteErr("insert document", err)
	}
	if out.UserID != d.UserID {
		return models.Document{}, fmt.Errorf("insert document: uuid %s belongs to another user: %w", d.UUID, util.ErrDuplicateContent)
	}
	return out, nil
}

type DocumentUpdate struct {
	ID           int64
	URL          string
	Title        string
	Description  string
	PreviewImage string
	Content      string
	ContentHash  string
}

// Update writes the normalized fields and resets processed.
func (r *DocumentRepo) Update(ctx context.Context, u DocumentUpdate) error {
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE documents
SET url = COALESCE(NULLIF($2,''), url),
    title = NULLIF($3,''),
    description = NULLIF($4,''),
    preview_image = NULLIF($5,''),
    content = $6,
    content_hash = $7,
    processed = FALSE,
    error_message = NULL,
    updated_at = NOW()
WHERE id = $1`, u.ID, u.URL, u.Title, u.Description, u.PreviewImage, u.Content, u.ContentHash)
	if err != nil {
		return mapWriteErr("update document", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update document %d: %w", u.ID, util.ErrNotFound)
	}
	return nil
}

func (r *DocumentRepo) MarkProcessed(ctx context.Context, id int64) error {
	if _, err := r.db.Pool.Exec(ctx, `UPDATE documents SET processed=TRUE, error_message=NULL, updated_at=NOW() WHERE id=$1`, id); err != nil {
		return fmt.Errorf("mark document processed: %w", err)
	}
	return nil
}

func (r *DocumentRepo) MarkFailed(ctx context.Context, id int64, msg string) error {
	if _, err := r.db.Pool.Exec(ctx, `UPDATE documents SET processed=FALSE, error_message=NULLIF($2,''), updated_at=NOW() WHERE id=$1`, id, msg); err != nil {
		return fmt.Errorf("mark document failed: %w", err)
	}
	return nil
}

// Delete removes a document; chunks, staged vectors and links cascade.
func (r *DocumentRepo) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM documents WHERE id=$1`, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (r *DocumentRepo) ListByUser(ctx context.Context, userID string, limit int) ([]models.Document, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE user_id=$1
ORDER BY created_at DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	out := make([]models.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}
