package storage

import (
	"context"
	"fmt"

	"contentflow/internal/models"
)

type CollectionRepo struct {
	db *DB
}

func NewCollectionRepo(db *DB) *CollectionRepo {
	return &CollectionRepo{db: db}
}

// Resolve looks refs up by id or by name within the user's collections.
// Unknown refs are simply absent from the result.
func (r *CollectionRepo) Resolve(ctx context.Context, userID string, refs []string) ([]models.Collection, error) {
	if len(refs) == 0 {
		return []models.Collection{}, nil
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT id::text, user_id, name
FROM collections
WHERE user_id=$1 AND (id::text = ANY($2) OR name = ANY($2))
ORDER BY name`, userID, refs)
	if err != nil {
		return nil, fmt.Errorf("resolve collections: %w", err)
	}
	defer rows.Close()
	out := make([]models.Collection, 0, len(refs))
	for rows.Next() {
		var c models.Collection
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collections: %w", err)
	}
	return out, nil
}

// Link is idempotent.
func (r *CollectionRepo) Link(ctx context.Context, documentID int64, collectionIDs []string) error {
	if len(collectionIDs) == 0 {
		return nil
	}
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO document_collections (document_id, collection_id)
SELECT $1, unnest($2::text[])::uuid
ON CONFLICT DO NOTHING`, documentID, collectionIDs)
	if err != nil {
		return fmt.Errorf("link collections: %w", err)
	}
	return nil
}
