package model

import "time"

// Template is a named, reusable SEB configuration file.
type Template struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	Enabled     bool      `json:"enabled"`
	Revision    int64     `json:"revision"`
	InUse       bool      `json:"in_use"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateTemplateRequest is the payload for creating a template.
type CreateTemplateRequest struct {
	Name        string `json:"name" binding:"required,max=255"`
	Description string `json:"description" binding:"max=2000"`
	Content     string `json:"content" binding:"required"`
	Enabled     bool   `json:"enabled"`
}

// UpdateTemplateRequest is the payload for updating a template.
type UpdateTemplateRequest struct {
	Name        string `json:"name" binding:"required,max=255"`
	Description string `json:"description" binding:"max=2000"`
	Content     string `json:"content" binding:"required"`
	Enabled     bool   `json:"enabled"`
}

// SetTemplateEnabledRequest toggles a template on or off.
type SetTemplateEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// ConfigFile is an uploaded .seb file attached to a quiz module.
type ConfigFile struct {
	CMID      int64     `json:"cmid"`
	Filename  string    `json:"filename"`
	Path      string    `json:"-"`
	SHA256    string    `json:"sha256"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
