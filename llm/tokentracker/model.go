// Package tokentracker records per-call LLM token usage asynchronously
// so billing writes never add latency to a chat response (§4.7).
package tokentracker

import (
	"time"

	"gorm.io/gorm"
)

// UsageRecord is the persisted row for one completed LLM call.
type UsageRecord struct {
	ID              uint   `gorm:"primarykey"`
	UserID          *uint  `gorm:"index"`
	OrganizationID  *uint  `gorm:"index"`
	SessionID       string `gorm:"index;size:64"`
	ConversationID  string `gorm:"index;size:64"`
	ModelProvider   string `gorm:"size:32"`
	ModelName       string `gorm:"size:64"`
	ModelAlias      string `gorm:"size:32;index"`
	InputTokens     int
	OutputTokens    int
	TotalTokens     int
	InputCost       float64
	OutputCost      float64
	TotalCost       float64
	RequestType     string `gorm:"size:32;index"`
	DiagramType     string `gorm:"size:32"`
	EndpointPath    string `gorm:"size:128"`
	Success         bool
	ResponseTimeMs  int64
	CreatedAt       time.Time `gorm:"index"`
}

// TableName pins the gorm table name independent of struct renames.
func (UsageRecord) TableName() string { return "token_usage" }

// AutoMigrate creates/updates the token_usage table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&UsageRecord{})
}
