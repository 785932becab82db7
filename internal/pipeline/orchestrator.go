package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/docsmith/docsync/internal/diff"
	"github.com/docsmith/docsync/internal/docgen"
	"github.com/docsmith/docsync/internal/lookup"
	"github.com/docsmith/docsync/internal/models"
	"github.com/docsmith/docsync/internal/publish"
	"github.com/docsmith/docsync/internal/repository"
	"github.com/docsmith/docsync/internal/upstream"
)

// Upstream is the subset of the platform client the orchestrator uses.
type Upstream interface {
	ListTenants(ctx context.Context) ([]models.Tenant, error)
	ListProjects(ctx context.Context, tenantID int64) ([]models.Project, error)
	ListRecipes(ctx context.Context, tenantID int64, filter upstream.RecipeFilter) ([]models.Recipe, error)
}

// TableResolver gathers lookup-table context for documentation.
type TableResolver interface {
	Resolve(ctx context.Context, tenant models.Tenant, refs lookup.RefSet) ([]lookup.TableContext, error)
}

// Config wires the orchestrator's collaborators. Resolver may be nil to skip
// lookup-table enrichment.
type Config struct {
	API        Upstream
	Catalog    repository.CatalogRepository
	Snapshots  repository.SnapshotRepository
	Runs       repository.RunRepository
	Resolver   TableResolver
	Generator  docgen.Generator
	Classifier docgen.Classifier
	Summarizer docgen.Summarizer
	Publisher  publish.Publisher

	// ActivePrefix filters fetched recipes to names carrying the marker
	// prefix; empty disables the filter.
	ActivePrefix string

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Options select the behavior of a single run.
type Options struct {
	// Force skips the watermark and treats every fetched recipe as changed.
	Force bool
	// TenantFilter restricts the run to tenants matching these identifiers
	// (numeric id or external id).
	TenantFilter []string
}

// Orchestrator composes fetch, diff, documentation and publish into one
// pipeline pass. A single run is active at a time; the run record doubles as
// the lease.
type Orchestrator struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

func NewOrchestrator(cfg Config, logger zerolog.Logger) *Orchestrator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		cfg:    cfg,
		logger: logger.With().Str("component", "pipeline").Logger(),
		now:    now,
	}
}

type projectKey struct {
	tenantID  int64
	projectID int64
}

// Run executes one pipeline pass. Per-tenant fetch errors and per-project
// documentation errors are collected into the run record without aborting
// the pass; a failure to enumerate tenants at all aborts the run. The run
// record is finalized on every path.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (models.SyncRun, error) {
	run, err := o.cfg.Runs.StartRun(ctx, o.now(), opts.Force)
	if err != nil {
		return models.SyncRun{}, err
	}
	o.logger.Info().Str("run_id", run.ID).Bool("forced", opts.Force).Msg("sync run started")

	var stats models.RunStats
	var runErrs []string

	fatal := o.pass(ctx, opts, &stats, &runErrs)
	if fatal != nil {
		runErrs = append(runErrs, fatal.Error())
	}

	summary := ""
	if fatal == nil && o.cfg.Summarizer != nil {
		s, err := o.cfg.Summarizer.Summarize(ctx, stats, runErrs)
		if err != nil {
			o.logger.Warn().Err(err).Msg("run summary generation failed")
			runErrs = append(runErrs, err.Error())
		} else {
			summary = s
		}
	}

	errText := strings.Join(runErrs, "; ")
	finishedAt := o.now()
	if err := o.cfg.Runs.FinishRun(ctx, run.ID, stats, errText, summary, finishedAt); err != nil {
		o.logger.Error().Err(err).Str("run_id", run.ID).Msg("failed to finalize run record")
		if fatal == nil {
			fatal = err
		}
	}

	run.Stats = stats
	run.FinishedAt = &finishedAt
	if errText != "" {
		run.ErrorText = &errText
	}
	if summary != "" {
		run.Summary = &summary
	}

	event := o.logger.Info()
	if errText != "" {
		event = o.logger.Warn().Str("errors", errText)
	}
	event.Str("run_id", run.ID).
		Int("tenants", stats.TenantsProcessed).
		Int("fetched", stats.RecipesFetched).
		Int("changed", stats.RecipesChanged).
		Int("documented", stats.RecipesDocumented).
		Msg("sync run finished")

	if fatal != nil {
		return run, fatal
	}
	return run, nil
}

func (o *Orchestrator) pass(ctx context.Context, opts Options, stats *models.RunStats, runErrs *[]string) error {
	var watermark *time.Time
	if !opts.Force {
		wm, err := o.cfg.Runs.LastSuccessfulWatermark(ctx)
		if err != nil {
			return errors.Wrap(err, "load watermark")
		}
		watermark = wm
	}

	tenants, err := o.cfg.API.ListTenants(ctx)
	if err != nil {
		return errors.Wrap(err, "list tenants")
	}
	tenants = upstream.FilterTenants(tenants, opts.TenantFilter)

	changed := make(map[projectKey][]diff.Change)
	tenantByID := make(map[int64]models.Tenant, len(tenants))

	for _, tenant := range tenants {
		tenantByID[tenant.ID] = tenant
		if err := o.syncTenant(ctx, tenant, watermark, opts.Force, stats, changed); err != nil {
			o.logger.Error().Err(err).Int64("tenant_id", tenant.ID).Msg("tenant fetch failed")
			*runErrs = append(*runErrs, fmt.Sprintf("tenant %d: %v", tenant.ID, err))
			continue
		}
		stats.TenantsProcessed++
	}

	// Deterministic processing order across runs.
	keys := make([]projectKey, 0, len(changed))
	for key := range changed {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].tenantID != keys[j].tenantID {
			return keys[i].tenantID < keys[j].tenantID
		}
		return keys[i].projectID < keys[j].projectID
	})

	for _, key := range keys {
		if err := o.processProject(ctx, tenantByID[key.tenantID], key.projectID, changed[key], opts.Force, stats); err != nil {
			o.logger.Error().Err(err).
				Int64("tenant_id", key.tenantID).
				Int64("project_id", key.projectID).
				Msg("project documentation failed")
			*runErrs = append(*runErrs, fmt.Sprintf("tenant %d project %d: %v", key.tenantID, key.projectID, err))
		}
	}
	return nil
}

// syncTenant fetches one tenant's projects and recipes, keeps the local
// catalog current, and records which recipes changed.
func (o *Orchestrator) syncTenant(ctx context.Context, tenant models.Tenant, watermark *time.Time, force bool, stats *models.RunStats, changed map[projectKey][]diff.Change) error {
	if err := o.cfg.Catalog.UpsertTenant(ctx, tenant); err != nil {
		return err
	}

	projects, err := o.cfg.API.ListProjects(ctx, tenant.ID)
	if err != nil {
		return err
	}

	seen := make(map[int64]bool)
	var fetched []models.Recipe
	for _, project := range projects {
		// Tenant-scoped endpoints may omit the tenant binding in payloads.
		project.TenantID = tenant.ID
		if err := o.cfg.Catalog.UpsertProject(ctx, project); err != nil {
			return err
		}

		recipes, err := o.cfg.API.ListRecipes(ctx, tenant.ID, upstream.RecipeFilter{
			FolderID:     &project.FolderID,
			UpdatedAfter: watermark,
		})
		if err != nil {
			return err
		}

		for _, recipe := range recipes {
			if o.cfg.ActivePrefix != "" && !strings.HasPrefix(recipe.Name, o.cfg.ActivePrefix) {
				continue
			}
			// Directly owned only: folder listings may include recipes from
			// nested subfolders.
			if recipe.ProjectID == nil || *recipe.ProjectID != project.ID {
				continue
			}
			if seen[recipe.ID] {
				continue
			}
			seen[recipe.ID] = true
			recipe.TenantID = tenant.ID
			if err := o.cfg.Catalog.UpsertRecipe(ctx, recipe); err != nil {
				return err
			}
			fetched = append(fetched, recipe)
		}
	}
	stats.RecipesFetched += len(fetched)

	var changes []diff.Change
	if force {
		for _, recipe := range fetched {
			changes = append(changes, diff.Change{Recipe: recipe, Kind: diff.KindChanged, NewHash: diff.ComputeHash(recipe)})
		}
	} else {
		ids := make([]int64, len(fetched))
		for i, recipe := range fetched {
			ids[i] = recipe.ID
		}
		prior, err := o.cfg.Snapshots.GetHashes(ctx, tenant.ID, ids)
		if err != nil {
			return err
		}
		changes = diff.Classify(fetched, prior)
	}
	stats.RecipesChanged += len(changes)

	for _, change := range changes {
		if change.Recipe.ProjectID == nil {
			o.logger.Debug().Int64("recipe_id", change.Recipe.ID).Msg("changed recipe has no project, skipping")
			continue
		}
		key := projectKey{tenantID: tenant.ID, projectID: *change.Recipe.ProjectID}
		changed[key] = append(changed[key], change)
	}
	return nil
}

// processProject decides whether documentation must be regenerated for one
// affected project and, if so, generates, publishes and only then commits
// fresh snapshots for every recipe in the project.
func (o *Orchestrator) processProject(ctx context.Context, tenant models.Tenant, projectID int64, changes []diff.Change, force bool, stats *models.RunStats) error {
	project, err := o.cfg.Catalog.GetProject(ctx, tenant.ID, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &NotFoundError{Kind: "project", ID: projectID}
		}
		return err
	}

	needed, err := o.regenerationNeeded(ctx, changes, force)
	if err != nil {
		return err
	}
	if !needed {
		o.logger.Debug().Int64("project_id", projectID).Msg("changes judged cosmetic, skipping regeneration")
		return nil
	}

	// Documentation covers the whole project, not just the changed recipes.
	recipes, err := o.cfg.Catalog.ListRecipesByProject(ctx, tenant.ID, project.ID)
	if err != nil {
		return err
	}

	var tables []lookup.TableContext
	if o.cfg.Resolver != nil {
		refs := lookup.ExtractFromRecipes(recipes)
		tables, err = o.cfg.Resolver.Resolve(ctx, tenant, refs)
		if err != nil {
			// Partial context still has documentation value.
			o.logger.Warn().Err(err).Int64("project_id", projectID).Msg("lookup table resolution failed")
			tables = nil
		}
	}

	doc, err := o.cfg.Generator.Generate(ctx, docgen.ProjectContext{
		Tenant:  tenant,
		Project: project,
		Recipes: recipes,
		Tables:  tables,
	})
	if err != nil {
		return err
	}

	target := publish.Target{
		TenantID:     tenant.ID,
		ProjectSlug:  publish.Slug(project.Name),
		ProjectLevel: true,
	}
	if err := o.cfg.Publisher.Publish(ctx, doc, target); err != nil {
		return err
	}

	// Publish succeeded; only now commit snapshots. A crash before this
	// point leaves the old snapshots in place, so the next run re-detects
	// the change and retries the (idempotent) publish.
	committedAt := o.now()
	for _, recipe := range recipes {
		payload, err := json.Marshal(models.NewSnapshotPayload(recipe))
		if err != nil {
			return errors.Wrapf(err, "encode snapshot payload for recipe %d", recipe.ID)
		}
		snapshot := models.RecipeSnapshot{
			RecipeID:    recipe.ID,
			TenantID:    tenant.ID,
			ContentHash: diff.ComputeHash(recipe),
			Payload:     payload,
			CommittedAt: committedAt,
		}
		if err := o.cfg.Snapshots.Upsert(ctx, snapshot); err != nil {
			return errors.Wrapf(err, "commit snapshot for recipe %d", recipe.ID)
		}
	}
	stats.RecipesDocumented += len(recipes)

	o.logger.Info().
		Int64("tenant_id", tenant.ID).
		Int64("project_id", project.ID).
		Int("recipes", len(recipes)).
		Msg("project documentation regenerated")
	return nil
}

// regenerationNeeded is true when any changed recipe is newly seen or the
// run is forced; otherwise the semantic-change classifier is consulted per
// recipe and regeneration proceeds only if at least one change is judged
// behaviorally meaningful.
func (o *Orchestrator) regenerationNeeded(ctx context.Context, changes []diff.Change, force bool) (bool, error) {
	if force {
		return true, nil
	}
	for _, change := range changes {
		if change.Kind == diff.KindNew {
			return true, nil
		}
	}
	if o.cfg.Classifier == nil {
		return true, nil
	}
	for _, change := range changes {
		snapshot, err := o.cfg.Snapshots.GetByRecipeID(ctx, change.Recipe.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return true, nil
			}
			return false, err
		}

		var prior models.SnapshotPayload
		if err := json.Unmarshal(snapshot.Payload, &prior); err != nil {
			o.logger.Warn().Err(&ParseError{Subject: "stored snapshot payload", Err: err}).
				Int64("recipe_id", change.Recipe.ID).
				Msg("treating unparseable prior payload as meaningful change")
			return true, nil
		}

		verdict, err := o.cfg.Classifier.Classify(ctx, prior.Definition, change.Recipe.Definition)
		if err != nil {
			return false, err
		}
		if verdict.HasMeaningfulChange {
			o.logger.Debug().
				Int64("recipe_id", change.Recipe.ID).
				Str("change_type", verdict.ChangeType).
				Msg("meaningful change detected")
			return true, nil
		}
	}
	return false, nil
}
