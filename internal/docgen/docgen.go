package docgen

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/docsmith/docsync/internal/lookup"
	"github.com/docsmith/docsync/internal/models"
)

// Document is the output of a documentation generation call.
type Document struct {
	Markdown string `json:"markdown"`
	HTML     string `json:"html,omitempty"`
}

// ProjectContext is everything the generator sees for one project:
// the full current recipe set, not just the changed recipes, plus any
// resolved lookup-table contexts.
type ProjectContext struct {
	Tenant  models.Tenant         `json:"tenant"`
	Project models.Project        `json:"project"`
	Recipes []models.Recipe       `json:"recipes"`
	Tables  []lookup.TableContext `json:"tables,omitempty"`
}

// Generator produces project documentation from structured recipe data.
type Generator interface {
	Generate(ctx context.Context, pc ProjectContext) (Document, error)
}

// Verdict is the semantic-change classifier's judgement of a recipe edit.
type Verdict struct {
	HasMeaningfulChange bool   `json:"has_meaningful_change"`
	Summary             string `json:"summary"`
	ChangeType          string `json:"change_type,omitempty"`
}

// Classifier decides whether a recipe change is behaviorally meaningful or
// purely cosmetic.
type Classifier interface {
	Classify(ctx context.Context, oldDef, newDef json.RawMessage) (Verdict, error)
}

// Summarizer turns aggregated run counters and collected errors into a
// human-readable run summary.
type Summarizer interface {
	Summarize(ctx context.Context, stats models.RunStats, errs []string) (string, error)
}

// GenerationError marks a failed documentation, classification or summary
// call.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("docgen: %s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
