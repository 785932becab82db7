package models

import "time"

// RunStats holds the counters aggregated over one sync run.
type RunStats struct {
	TenantsProcessed  int `json:"tenants_processed" db:"tenants_processed"`
	RecipesFetched    int `json:"recipes_fetched" db:"recipes_fetched"`
	RecipesChanged    int `json:"recipes_changed" db:"recipes_changed"`
	RecipesDocumented int `json:"recipes_documented" db:"recipes_documented"`
}

// SyncRun is one execution of the pipeline. A run with empty error text and a
// finish timestamp is eligible as the watermark source for the next run; the
// watermark itself is the run's start time.
type SyncRun struct {
	ID         string     `json:"id" db:"id"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	Forced     bool       `json:"forced" db:"forced"`
	Stats      RunStats   `json:"stats"`
	ErrorText  *string    `json:"error_text,omitempty" db:"error_text"`
	Summary    *string    `json:"summary,omitempty" db:"summary"`
}
