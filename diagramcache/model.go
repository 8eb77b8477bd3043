// Package diagramcache is a Redis-first cache of diagrams backed by a
// relational store of record. Every mutation applies to the cache
// first and is queued for background reconciliation (§4.8).
package diagramcache

import (
	"time"

	"gorm.io/gorm"
)

// Diagram is the durable row. Redis holds the same shape as JSON,
// plus the dirty/pending-create bookkeeping keys.
type Diagram struct {
	ID          string `gorm:"primarykey;size:64"`
	UserID      uint   `gorm:"index"`
	DiagramType string `gorm:"size:32;index"`
	Title       string `gorm:"size:256"`
	Spec        string `gorm:"type:text"` // JSON-encoded diagram spec
	Language    string `gorm:"size:16"`
	Thumbnail   string `gorm:"type:text"` // optional, empty if none
	IsPinned    bool
	IsDeleted   bool `gorm:"index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName pins the gorm table name.
func (Diagram) TableName() string { return "diagrams" }

// AutoMigrate creates/updates the diagrams table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Diagram{})
}

// Summary is the lightweight shape returned by List — everything
// except the spec body, to keep list payloads small (§4.8).
type Summary struct {
	ID          string    `json:"id"`
	UserID      uint      `json:"user_id"`
	DiagramType string    `json:"diagram_type"`
	Title       string    `json:"title"`
	Language    string    `json:"language"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	IsPinned    bool      `json:"is_pinned"`
	UpdatedAt   time.Time `json:"updated_at"`
}
