package store

import (
	"time"

	"gorm.io/gorm"
)

// IdempotencyRecord dedupes retried CREATE calls. A polling client that times
// out mid-create may resubmit; the key maps it back to the trade it already
// made.
type IdempotencyRecord struct {
	gorm.Model
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	ResourceID     string    `json:"resource_id"`
	ResourceType   string    `json:"resource_type"`
	ExpiresAt      time.Time `json:"expires_at"`
}
