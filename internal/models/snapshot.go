package models

import (
	"encoding/json"
	"time"
)

// RecipeSnapshot is the last committed content fingerprint of a recipe,
// written only after the owning project's documentation was durably
// published. One row per recipe id.
type RecipeSnapshot struct {
	RecipeID    int64           `json:"recipe_id" db:"recipe_id"`
	TenantID    int64           `json:"tenant_id" db:"tenant_id"`
	ContentHash string          `json:"content_hash" db:"content_hash"`
	Payload     json.RawMessage `json:"payload" db:"payload"`
	CommittedAt time.Time       `json:"committed_at" db:"committed_at"`
}

// SnapshotPayload is the raw payload copy stored alongside a snapshot. The
// semantic-change classifier reads the old definition from here on the next
// run.
type SnapshotPayload struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Definition  json.RawMessage     `json:"definition"`
	Connections []ConnectionBinding `json:"connections"`
}

// NewSnapshotPayload captures the hashed fields of a recipe.
func NewSnapshotPayload(r Recipe) SnapshotPayload {
	return SnapshotPayload{
		Name:        r.Name,
		Description: r.Description,
		Definition:  r.Definition,
		Connections: r.Connections,
	}
}
