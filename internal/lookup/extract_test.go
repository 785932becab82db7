package lookup_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docsmith/docsync/internal/lookup"
	"github.com/docsmith/docsync/internal/models"
)

func TestExtractReferences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		wantNames []string
		wantIDs   []int64
	}{
		{
			name:      "top level and nested references",
			raw:       `{"table_name": "Employees", "nested": {"lookup_table_id": 42}}`,
			wantNames: []string{"Employees"},
			wantIDs:   []int64{42},
		},
		{
			name:      "references inside arrays",
			raw:       `{"steps": [{"input": {"lookup_table_name": "Rates"}}, {"input": {"table_id": 7}}]}`,
			wantNames: []string{"Rates"},
			wantIDs:   []int64{7},
		},
		{
			name:    "zero and negative ids ignored",
			raw:     `{"lookup_table_id": 0, "nested": {"table_id": -3}}`,
			wantIDs: nil,
		},
		{
			name:      "empty names ignored",
			raw:       `{"table_name": "", "other": {"table": "Zones"}}`,
			wantNames: []string{"Zones"},
		},
		{
			name: "no references",
			raw:  `{"trigger": {"provider": "webhook"}}`,
		},
		{
			name:    "unparseable payload falls back to text scan",
			raw:     `trigger: webhook ... lookup_table_id: "7" ... garbage`,
			wantIDs: []int64{7},
		},
		{
			name:      "unparseable payload recovers names too",
			raw:       `{{ table_name: "Employees" lookup_table_id: 42`,
			wantNames: []string{"Employees"},
			wantIDs:   []int64{42},
		},
		{
			name: "empty input",
			raw:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			refs := lookup.ExtractReferences(json.RawMessage(tt.raw))

			gotNames := make([]string, 0, len(refs.Names))
			for name := range refs.Names {
				gotNames = append(gotNames, name)
			}
			gotIDs := make([]int64, 0, len(refs.IDs))
			for id := range refs.IDs {
				gotIDs = append(gotIDs, id)
			}

			assert.ElementsMatch(t, tt.wantNames, gotNames)
			assert.ElementsMatch(t, tt.wantIDs, gotIDs)
		})
	}
}

func TestExtractFromRecipes_Unions(t *testing.T) {
	t.Parallel()

	recipes := []models.Recipe{
		{ID: 1, Definition: json.RawMessage(`{"table_name": "Employees"}`)},
		{ID: 2, Definition: json.RawMessage(`{"lookup_table_id": 42}`)},
		{ID: 3, Definition: json.RawMessage(`{"table_name": "Employees", "table_id": 9}`)},
	}

	refs := lookup.ExtractFromRecipes(recipes)

	assert.Len(t, refs.Names, 1)
	assert.Contains(t, refs.Names, "Employees")
	assert.Len(t, refs.IDs, 2)
	assert.Contains(t, refs.IDs, int64(42))
	assert.Contains(t, refs.IDs, int64(9))
}

func TestRefSet_Empty(t *testing.T) {
	t.Parallel()

	refs := lookup.NewRefSet()
	assert.True(t, refs.Empty())

	refs.Names["x"] = struct{}{}
	assert.False(t, refs.Empty())
}

func TestParseColumns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		schema string
		want   []string
	}{
		{
			name:   "json encoded array",
			schema: `["id","name","salary"]`,
			want:   []string{"id", "name", "salary"},
		},
		{
			name:   "delimited text fallback",
			schema: "id, name, salary",
			want:   []string{"id", "name", "salary"},
		},
		{
			name:   "empty schema",
			schema: "",
			want:   nil,
		},
		{
			name:   "single column",
			schema: "id",
			want:   []string{"id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, lookup.ParseColumns(tt.schema))
		})
	}
}
