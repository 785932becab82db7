package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/docsmith/docsync/internal/models"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// CatalogRepository keeps the local copy of the platform catalog current.
// Records are upserted on every fetch pass and never deleted by this system.
type CatalogRepository interface {
	UpsertTenant(ctx context.Context, tenant models.Tenant) error
	UpsertProject(ctx context.Context, project models.Project) error
	UpsertRecipe(ctx context.Context, recipe models.Recipe) error
	GetProject(ctx context.Context, tenantID, projectID int64) (models.Project, error)
	GetRecipe(ctx context.Context, tenantID, recipeID int64) (models.Recipe, error)
	ListRecipesByProject(ctx context.Context, tenantID, projectID int64) ([]models.Recipe, error)
}

type catalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) UpsertTenant(ctx context.Context, tenant models.Tenant) error {
	const query = `
		INSERT INTO sync.tenants (id, external_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET external_id = EXCLUDED.external_id,
		    name        = EXCLUDED.name,
		    updated_at  = EXCLUDED.updated_at;
	`
	_, err := r.db.ExecContext(ctx, query, tenant.ID, tenant.ExternalID, tenant.Name, tenant.CreatedAt, tenant.UpdatedAt)
	return errors.Wrapf(err, "upsert tenant %d", tenant.ID)
}

func (r *catalogRepository) UpsertProject(ctx context.Context, project models.Project) error {
	const query = `
		INSERT INTO sync.projects (id, tenant_id, folder_id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, id) DO UPDATE
		SET folder_id   = EXCLUDED.folder_id,
		    name        = EXCLUDED.name,
		    description = EXCLUDED.description,
		    updated_at  = EXCLUDED.updated_at;
	`
	_, err := r.db.ExecContext(ctx, query,
		project.ID, project.TenantID, project.FolderID, project.Name, project.Description,
		project.CreatedAt, project.UpdatedAt)
	return errors.Wrapf(err, "upsert project %d", project.ID)
}

func (r *catalogRepository) UpsertRecipe(ctx context.Context, recipe models.Recipe) error {
	connections, err := json.Marshal(recipe.Connections)
	if err != nil {
		return errors.Wrapf(err, "encode connections of recipe %d", recipe.ID)
	}
	const query = `
		INSERT INTO sync.recipes (id, tenant_id, project_id, name, description, definition, connections, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, id) DO UPDATE
		SET project_id  = EXCLUDED.project_id,
		    name        = EXCLUDED.name,
		    description = EXCLUDED.description,
		    definition  = EXCLUDED.definition,
		    connections = EXCLUDED.connections,
		    updated_at  = EXCLUDED.updated_at;
	`
	_, err = r.db.ExecContext(ctx, query,
		recipe.ID, recipe.TenantID, recipe.ProjectID, recipe.Name, recipe.Description,
		nullableJSON(recipe.Definition), connections, recipe.CreatedAt, recipe.UpdatedAt)
	return errors.Wrapf(err, "upsert recipe %d", recipe.ID)
}

func (r *catalogRepository) GetProject(ctx context.Context, tenantID, projectID int64) (models.Project, error) {
	const query = `
		SELECT id, tenant_id, folder_id, name, description, created_at, updated_at
		FROM sync.projects
		WHERE tenant_id = $1 AND id = $2;
	`
	var p models.Project
	err := r.db.QueryRowContext(ctx, query, tenantID, projectID).Scan(
		&p.ID, &p.TenantID, &p.FolderID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, errors.Wrapf(err, "get project %d", projectID)
}

func (r *catalogRepository) GetRecipe(ctx context.Context, tenantID, recipeID int64) (models.Recipe, error) {
	const query = `
		SELECT id, tenant_id, project_id, name, description, definition, connections, created_at, updated_at
		FROM sync.recipes
		WHERE tenant_id = $1 AND id = $2;
	`
	recipe, err := scanRecipe(r.db.QueryRowContext(ctx, query, tenantID, recipeID))
	if err == sql.ErrNoRows {
		return recipe, ErrNotFound
	}
	return recipe, errors.Wrapf(err, "get recipe %d", recipeID)
}

func (r *catalogRepository) ListRecipesByProject(ctx context.Context, tenantID, projectID int64) ([]models.Recipe, error) {
	const query = `
		SELECT id, tenant_id, project_id, name, description, definition, connections, created_at, updated_at
		FROM sync.recipes
		WHERE tenant_id = $1 AND project_id = $2
		ORDER BY id;
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, projectID)
	if err != nil {
		return nil, errors.Wrapf(err, "list recipes of project %d", projectID)
	}
	defer rows.Close()

	var recipes []models.Recipe
	for rows.Next() {
		recipe, err := scanRecipe(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan recipe")
		}
		recipes = append(recipes, recipe)
	}
	return recipes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecipe(row rowScanner) (models.Recipe, error) {
	var recipe models.Recipe
	var definition, connections []byte
	err := row.Scan(
		&recipe.ID, &recipe.TenantID, &recipe.ProjectID, &recipe.Name, &recipe.Description,
		&definition, &connections, &recipe.CreatedAt, &recipe.UpdatedAt)
	if err != nil {
		return recipe, err
	}
	recipe.Definition = definition
	if len(connections) > 0 {
		if err := json.Unmarshal(connections, &recipe.Connections); err != nil {
			return recipe, errors.Wrapf(err, "decode connections of recipe %d", recipe.ID)
		}
	}
	return recipe, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
