package models

// LookupTable is an auxiliary key-value dataset visible to a tenant. Schema
// is the platform's column-schema encoding: a JSON-encoded array of column
// names, with delimited text seen from older tables.
type LookupTable struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Schema string `json:"schema"`
}

// TableRow is a single row of a lookup table, keyed by column name.
type TableRow map[string]any
