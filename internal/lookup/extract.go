package lookup

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"

	"github.com/docsmith/docsync/internal/models"
)

// Field names under which recipe definitions reference lookup tables.
// Platform steps are inconsistent about which one they use.
var (
	nameKeys = map[string]struct{}{
		"table_name":        {},
		"lookup_table_name": {},
		"table":             {},
	}
	idKeys = map[string]struct{}{
		"lookup_table_id": {},
		"table_id":        {},
		"lookup_table":    {},
	}

	idPattern   = regexp.MustCompile(`(?:lookup_table_id|table_id|lookup_table)"?\s*[:=]\s*"?(\d+)`)
	namePattern = regexp.MustCompile(`(?:lookup_table_name|table_name)"?\s*[:=]\s*"([^"]+)"`)
)

// RefSet is the union of lookup-table references found in recipe
// definitions: table names and numeric table ids.
type RefSet struct {
	Names map[string]struct{}
	IDs   map[int64]struct{}
}

func NewRefSet() RefSet {
	return RefSet{Names: make(map[string]struct{}), IDs: make(map[int64]struct{})}
}

func (s RefSet) Empty() bool {
	return len(s.Names) == 0 && len(s.IDs) == 0
}

func (s RefSet) Merge(other RefSet) {
	for name := range other.Names {
		s.Names[name] = struct{}{}
	}
	for id := range other.IDs {
		s.IDs[id] = struct{}{}
	}
}

// ExtractReferences walks every nested object and array of a definition,
// collecting string values under known table-name keys and positive integer
// values under known table-id keys. A malformed payload degrades to a
// pattern-based scan over the raw text instead of failing the operation.
func ExtractReferences(raw json.RawMessage) RefSet {
	refs := NewRefSet()
	if len(raw) == 0 {
		return refs
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		extractFromText(string(raw), refs)
		return refs
	}
	walk(tree, refs)
	return refs
}

// ExtractFromRecipes unions per-recipe reference sets across a batch.
func ExtractFromRecipes(recipes []models.Recipe) RefSet {
	refs := NewRefSet()
	for _, r := range recipes {
		refs.Merge(ExtractReferences(r.Definition))
	}
	return refs
}

func walk(node any, refs RefSet) {
	switch val := node.(type) {
	case map[string]any:
		for key, child := range val {
			if _, ok := nameKeys[key]; ok {
				if name, isStr := child.(string); isStr && name != "" {
					refs.Names[name] = struct{}{}
				}
			}
			if _, ok := idKeys[key]; ok {
				if id, isInt := asPositiveInt(child); isInt {
					refs.IDs[id] = struct{}{}
				}
			}
			walk(child, refs)
		}
	case []any:
		for _, child := range val {
			walk(child, refs)
		}
	}
}

func asPositiveInt(v any) (int64, bool) {
	num, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	id, err := num.Int64()
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func extractFromText(text string, refs RefSet) {
	for _, m := range idPattern.FindAllStringSubmatch(text, -1) {
		if id, err := strconv.ParseInt(m[1], 10, 64); err == nil && id > 0 {
			refs.IDs[id] = struct{}{}
		}
	}
	for _, m := range namePattern.FindAllStringSubmatch(text, -1) {
		if m[1] != "" {
			refs.Names[m[1]] = struct{}{}
		}
	}
}
