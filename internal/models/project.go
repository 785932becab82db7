package models

import "time"

// Project is a grouping of recipes within a tenant, documented as one unit.
// FolderID is the platform-side folder backing the project; recipe listings
// are filtered by folder.
type Project struct {
	ID          int64     `json:"id" db:"id"`
	FolderID    int64     `json:"folder_id" db:"folder_id"`
	TenantID    int64     `json:"tenant_id" db:"tenant_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
