package lookup

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/docsmith/docsync/internal/models"
)

// DefaultSampleRows bounds how many rows are fetched per matched table.
const DefaultSampleRows = 5

// sampleConcurrency bounds the fan-out of row fetches within one resolve.
const sampleConcurrency = 4

// TableContext is a resolved lookup table enriched for documentation: schema
// columns plus a bounded sample of rows.
type TableContext struct {
	ID      int64             `json:"id"`
	Name    string            `json:"name"`
	Columns []string          `json:"columns"`
	Rows    []models.TableRow `json:"rows,omitempty"`
}

// API is the subset of the upstream client the resolver needs.
type API interface {
	ListLookupTables(ctx context.Context, tenantID int64) ([]models.LookupTable, error)
	ListTableRows(ctx context.Context, tenantID, tableID int64, limit int) ([]models.TableRow, error)
}

type Resolver struct {
	api        API
	sampleRows int
	logger     zerolog.Logger
}

func NewResolver(api API, sampleRows int, logger zerolog.Logger) *Resolver {
	if sampleRows <= 0 {
		sampleRows = DefaultSampleRows
	}
	return &Resolver{
		api:        api,
		sampleRows: sampleRows,
		logger:     logger.With().Str("component", "lookup").Logger(),
	}
}

// Resolve matches the tenant's lookup tables against a reference set and
// fetches schema plus sample rows for every match. Empty reference sets
// short-circuit without any network calls. A per-table row-fetch failure is
// non-fatal: the table is still returned with schema and no sample, since
// partial context still has documentation value.
func (r *Resolver) Resolve(ctx context.Context, tenant models.Tenant, refs RefSet) ([]TableContext, error) {
	if refs.Empty() {
		return nil, nil
	}

	tables, err := r.api.ListLookupTables(ctx, tenant.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "list lookup tables for tenant %d", tenant.ID)
	}

	var matched []models.LookupTable
	for _, t := range tables {
		if _, ok := refs.IDs[t.ID]; ok {
			matched = append(matched, t)
			continue
		}
		for name := range refs.Names {
			if strings.EqualFold(name, t.Name) {
				matched = append(matched, t)
				break
			}
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}

	contexts := make([]TableContext, len(matched))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(sampleConcurrency)
	for i, table := range matched {
		group.Go(func() error {
			tc := TableContext{ID: table.ID, Name: table.Name, Columns: ParseColumns(table.Schema)}
			rows, err := r.api.ListTableRows(groupCtx, tenant.ID, table.ID, r.sampleRows)
			if err != nil {
				r.logger.Warn().Err(err).Int64("table_id", table.ID).Msg("sample row fetch failed, keeping schema only")
			} else {
				tc.Rows = rows
			}
			contexts[i] = tc
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return contexts, nil
}

// ParseColumns decodes the platform's column-schema encoding: a JSON array of
// column names, with a comma-delimited fallback for tables created before the
// platform switched encodings.
func ParseColumns(schema string) []string {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		return nil
	}
	var cols []string
	if err := json.Unmarshal([]byte(schema), &cols); err == nil {
		return cols
	}
	for _, part := range strings.Split(schema, ",") {
		if col := strings.TrimSpace(part); col != "" {
			cols = append(cols, col)
		}
	}
	return cols
}
