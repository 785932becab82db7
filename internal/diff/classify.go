package diff

import "github.com/docsmith/docsync/internal/models"

type Kind string

const (
	KindNew     Kind = "new"
	KindChanged Kind = "changed"
)

// Change is a recipe whose current content differs from its stored snapshot,
// or that has no snapshot at all. Unchanged recipes never appear in a result.
type Change struct {
	Recipe  models.Recipe
	Kind    Kind
	OldHash string
	NewHash string
}

// Classify compares each recipe's current content hash against the prior
// hashes keyed by recipe id, returning only new and changed entries.
func Classify(recipes []models.Recipe, prior map[int64]string) []Change {
	var changes []Change
	for _, r := range recipes {
		current := ComputeHash(r)
		old, ok := prior[r.ID]
		switch {
		case !ok:
			changes = append(changes, Change{Recipe: r, Kind: KindNew, NewHash: current})
		case old != current:
			changes = append(changes, Change{Recipe: r, Kind: KindChanged, OldHash: old, NewHash: current})
		}
	}
	return changes
}
