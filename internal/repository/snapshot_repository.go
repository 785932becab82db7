package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/docsmith/docsync/internal/models"
)

// SnapshotRepository stores the last committed content fingerprint of each
// recipe. Writes happen only after a successful downstream publish.
type SnapshotRepository interface {
	Upsert(ctx context.Context, snapshot models.RecipeSnapshot) error
	GetByRecipeID(ctx context.Context, recipeID int64) (models.RecipeSnapshot, error)
	GetHashes(ctx context.Context, tenantID int64, recipeIDs []int64) (map[int64]string, error)
}

type snapshotRepository struct {
	db *sql.DB
}

func NewSnapshotRepository(db *sql.DB) SnapshotRepository {
	return &snapshotRepository{db: db}
}

func (r *snapshotRepository) Upsert(ctx context.Context, snapshot models.RecipeSnapshot) error {
	const query = `
		INSERT INTO sync.recipe_snapshots (recipe_id, tenant_id, content_hash, payload, committed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (recipe_id) DO UPDATE
		SET tenant_id    = EXCLUDED.tenant_id,
		    content_hash = EXCLUDED.content_hash,
		    payload      = EXCLUDED.payload,
		    committed_at = EXCLUDED.committed_at;
	`
	_, err := r.db.ExecContext(ctx, query,
		snapshot.RecipeID, snapshot.TenantID, snapshot.ContentHash,
		nullableJSON(snapshot.Payload), snapshot.CommittedAt)
	return errors.Wrapf(err, "upsert snapshot for recipe %d", snapshot.RecipeID)
}

func (r *snapshotRepository) GetByRecipeID(ctx context.Context, recipeID int64) (models.RecipeSnapshot, error) {
	const query = `
		SELECT recipe_id, tenant_id, content_hash, payload, committed_at
		FROM sync.recipe_snapshots
		WHERE recipe_id = $1;
	`
	var snapshot models.RecipeSnapshot
	var payload []byte
	err := r.db.QueryRowContext(ctx, query, recipeID).Scan(
		&snapshot.RecipeID, &snapshot.TenantID, &snapshot.ContentHash, &payload, &snapshot.CommittedAt)
	if err == sql.ErrNoRows {
		return snapshot, ErrNotFound
	}
	snapshot.Payload = payload
	return snapshot, errors.Wrapf(err, "get snapshot for recipe %d", recipeID)
}

func (r *snapshotRepository) GetHashes(ctx context.Context, tenantID int64, recipeIDs []int64) (map[int64]string, error) {
	hashes := make(map[int64]string, len(recipeIDs))
	if len(recipeIDs) == 0 {
		return hashes, nil
	}
	const query = `
		SELECT recipe_id, content_hash
		FROM sync.recipe_snapshots
		WHERE tenant_id = $1 AND recipe_id = ANY($2);
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, pq.Array(recipeIDs))
	if err != nil {
		return nil, errors.Wrapf(err, "get snapshot hashes for tenant %d", tenantID)
	}
	defer rows.Close()

	for rows.Next() {
		var recipeID int64
		var hash string
		if err := rows.Scan(&recipeID, &hash); err != nil {
			return nil, errors.Wrap(err, "scan snapshot hash")
		}
		hashes[recipeID] = hash
	}
	return hashes, rows.Err()
}
