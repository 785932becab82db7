package models

import (
	"encoding/json"
	"time"
)

// ConnectionBinding ties a recipe step to a configured connection on the
// platform. Bindings are part of the recipe's documented content.
type ConnectionBinding struct {
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	AccountID int64  `json:"account_id"`
}

// Recipe is a single automation definition owned by a tenant. The definition
// payload is an opaque structured document whose schema is controlled by the
// platform, not by this system.
type Recipe struct {
	ID          int64               `json:"id" db:"id"`
	TenantID    int64               `json:"tenant_id" db:"tenant_id"`
	ProjectID   *int64              `json:"project_id,omitempty" db:"project_id"`
	Name        string              `json:"name" db:"name"`
	Description string              `json:"description" db:"description"`
	Definition  json.RawMessage     `json:"definition" db:"definition"`
	Connections []ConnectionBinding `json:"connections,omitempty" db:"connections"`
	CreatedAt   time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at" db:"updated_at"`
}
