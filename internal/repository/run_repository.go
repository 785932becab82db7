package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/docsmith/docsync/internal/models"
)

// ErrRunActive is returned by StartRun when another run holds the lease.
var ErrRunActive = errors.New("a sync run is already active")

// staleRunThreshold bounds how long an open run row may hold the lease. A
// process that dies mid-run never finalizes its row; anything older than
// this is reclaimed so later starts are not blocked forever.
const staleRunThreshold = 4 * time.Hour

// RunRepository records the lifecycle of sync runs and exposes the watermark
// for incremental fetching. StartRun doubles as the run lease: a partial
// unique index over open runs rejects a second concurrent start, and open
// rows past staleRunThreshold are finalized with an error text and the start
// retried.
type RunRepository interface {
	StartRun(ctx context.Context, startedAt time.Time, forced bool) (models.SyncRun, error)
	FinishRun(ctx context.Context, id string, stats models.RunStats, errText, summary string, finishedAt time.Time) error
	LastSuccessfulWatermark(ctx context.Context) (*time.Time, error)
	GetRun(ctx context.Context, id string) (models.SyncRun, error)
}

type runRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) RunRepository {
	return &runRepository{db: db}
}

func (r *runRepository) StartRun(ctx context.Context, startedAt time.Time, forced bool) (models.SyncRun, error) {
	run := models.SyncRun{
		ID:        uuid.NewString(),
		StartedAt: startedAt,
		Forced:    forced,
	}
	err := r.insertRun(ctx, run)
	if errors.Is(err, ErrRunActive) {
		reclaimed, rerr := r.reclaimStaleRun(ctx, startedAt)
		if rerr != nil {
			return models.SyncRun{}, rerr
		}
		if !reclaimed {
			return models.SyncRun{}, ErrRunActive
		}
		err = r.insertRun(ctx, run)
	}
	if err != nil {
		return models.SyncRun{}, err
	}
	return run, nil
}

func (r *runRepository) insertRun(ctx context.Context, run models.SyncRun) error {
	const query = `
		INSERT INTO sync.sync_runs (id, started_at, forced)
		VALUES ($1, $2, $3);
	`
	if _, err := r.db.ExecContext(ctx, query, run.ID, run.StartedAt, run.Forced); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrRunActive
		}
		return errors.Wrap(err, "start sync run")
	}
	return nil
}

// reclaimStaleRun finalizes an open run row abandoned by a process that died
// before FinishRun could land. The error text keeps the reclaimed run out of
// the watermark query, so its window is re-fetched by the next pass.
func (r *runRepository) reclaimStaleRun(ctx context.Context, now time.Time) (bool, error) {
	const query = `
		UPDATE sync.sync_runs
		SET finished_at = $1,
		    error_text  = 'abandoned: run was never finalized'
		WHERE finished_at IS NULL AND started_at < $2;
	`
	res, err := r.db.ExecContext(ctx, query, now, now.Add(-staleRunThreshold))
	if err != nil {
		return false, errors.Wrap(err, "reclaim stale sync run")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return affected > 0, nil
}

func (r *runRepository) FinishRun(ctx context.Context, id string, stats models.RunStats, errText, summary string, finishedAt time.Time) error {
	const query = `
		UPDATE sync.sync_runs
		SET finished_at        = $1,
		    tenants_processed  = $2,
		    recipes_fetched    = $3,
		    recipes_changed    = $4,
		    recipes_documented = $5,
		    error_text         = NULLIF($6, ''),
		    summary            = NULLIF($7, '')
		WHERE id = $8 AND finished_at IS NULL;
	`
	res, err := r.db.ExecContext(ctx, query,
		finishedAt, stats.TenantsProcessed, stats.RecipesFetched, stats.RecipesChanged,
		stats.RecipesDocumented, errText, summary, id)
	if err != nil {
		return errors.Wrapf(err, "finish sync run %s", id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if affected == 0 {
		return errors.Errorf("sync run %s is not open", id)
	}
	return nil
}

// LastSuccessfulWatermark returns the start time of the most recent finished
// run without recorded errors. The start time is the safe floor for the next
// incremental fetch: updates landing mid-run stay visible to the next pass.
func (r *runRepository) LastSuccessfulWatermark(ctx context.Context) (*time.Time, error) {
	const query = `
		SELECT started_at
		FROM sync.sync_runs
		WHERE finished_at IS NOT NULL AND error_text IS NULL
		ORDER BY finished_at DESC
		LIMIT 1;
	`
	var watermark time.Time
	err := r.db.QueryRowContext(ctx, query).Scan(&watermark)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load watermark")
	}
	return &watermark, nil
}

func (r *runRepository) GetRun(ctx context.Context, id string) (models.SyncRun, error) {
	const query = `
		SELECT id, started_at, finished_at, forced,
		       tenants_processed, recipes_fetched, recipes_changed, recipes_documented,
		       error_text, summary
		FROM sync.sync_runs
		WHERE id = $1;
	`
	var run models.SyncRun
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &run.StartedAt, &run.FinishedAt, &run.Forced,
		&run.Stats.TenantsProcessed, &run.Stats.RecipesFetched,
		&run.Stats.RecipesChanged, &run.Stats.RecipesDocumented,
		&run.ErrorText, &run.Summary)
	if err == sql.ErrNoRows {
		return run, ErrNotFound
	}
	return run, errors.Wrapf(err, "get sync run %s", id)
}
