package domain

import "time"

// Source tells where a purchase record came from
type Source string

const (
	SourceManual Source = "manual"
	SourceEmail  Source = "email"
)

// Purchase is a tracked item with optional return and warranty deadlines.
// Email-derived rows are unique per (user_id, source_message_id) so re-scanning a mailbox upserts.
type Purchase struct {
	ID                string     `json:"id" gorm:"primaryKey"`
	UserID            string     `json:"user_id" gorm:"not null;index;uniqueIndex:idx_purchases_user_message,priority:1"`
	ProductName       string     `json:"product_name" gorm:"not null"`
	Merchant          string     `json:"merchant"`
	Price             float64    `json:"price"`
	Currency          string     `json:"currency"`
	PurchasedAt       *time.Time `json:"purchased_at,omitempty"`
	ReturnDeadline    *time.Time `json:"return_deadline,omitempty" gorm:"index"`
	WarrantyExpiresAt *time.Time `json:"warranty_expires_at,omitempty" gorm:"index"`
	Source            Source     `json:"source" gorm:"not null;default:manual"`
	SourceMessageID   *string    `json:"source_message_id,omitempty" gorm:"uniqueIndex:idx_purchases_user_message,priority:2"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
