package models

import "time"

// Tenant is a managed customer account on the automation platform.
type Tenant struct {
	ID         int64     `json:"id" db:"id"`
	ExternalID *string   `json:"external_id,omitempty" db:"external_id"`
	Name       string    `json:"name" db:"name"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
