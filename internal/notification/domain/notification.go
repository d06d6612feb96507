package domain

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// NotificationType identifies the fact a notification reports
type NotificationType string

const (
	TypeConnectionEstablished NotificationType = "connection_established"
	TypeWarrantyExpiring      NotificationType = "warranty_expiring"
	TypeReturnDeadline        NotificationType = "return_deadline"
	TypeNewPurchase           NotificationType = "new_purchase"
)

// Notification is an alert shown to one user.
// DedupKey is nil for one-off events; otherwise (user_id, dedup_key) is unique, soft-deleted rows included.
type Notification struct {
	ID        string           `json:"id" gorm:"primaryKey"`
	UserID    string           `json:"user_id" gorm:"not null;index:idx_notifications_user_created,priority:1;uniqueIndex:idx_notifications_dedup,priority:1"`
	Type      NotificationType `json:"type" gorm:"not null"`
	Title     string           `json:"title" gorm:"not null"`
	Message   string           `json:"message"`
	ActionURL string           `json:"action_url,omitempty"`
	EntityID  string           `json:"entity_id,omitempty"`
	DedupKey  *string          `json:"-" gorm:"uniqueIndex:idx_notifications_dedup,priority:2"`
	Read      bool             `json:"read" gorm:"not null;default:false;index"`
	CreatedAt time.Time        `json:"created_at" gorm:"index:idx_notifications_user_created,priority:2"`
	DeletedAt gorm.DeletedAt   `json:"-" gorm:"index"`
}

// Fact is a computed, user-visible event that may become a notification
type Fact struct {
	Type      NotificationType
	EntityID  string
	DaysLeft  int
	DueAt     time.Time
	Title     string
	Message   string
	ActionURL string
}

// DedupKey identifies the underlying fact: the same entity reaching the same deadline is one fact.
// Facts without an entity are never deduplicated.
func (f Fact) DedupKey() *string {
	if f.EntityID == "" {
		return nil
	}
	due := "-"
	if !f.DueAt.IsZero() {
		due = f.DueAt.UTC().Format("2006-01-02")
	}
	key := fmt.Sprintf("%s:%s:%s", f.Type, f.EntityID, due)
	return &key
}

// ListFilter narrows List results
type ListFilter struct {
	UnreadOnly bool
	Limit      int
}
