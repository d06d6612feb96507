package domain

import "time"

const (
	DefaultWarrantyExpiringDays = 30
	DefaultReturnDeadlineDays   = 3
)

// NotificationSettings holds one user's alert preferences
type NotificationSettings struct {
	UserID               string    `json:"user_id" gorm:"primaryKey"`
	WarrantyExpiring     bool      `json:"warranty_expiring" gorm:"not null"`
	WarrantyExpiringDays int       `json:"warranty_expiring_days" gorm:"not null"`
	ReturnDeadline       bool      `json:"return_deadline" gorm:"not null"`
	ReturnDeadlineDays   int       `json:"return_deadline_days" gorm:"not null"`
	NewPurchase          bool      `json:"new_purchase" gorm:"not null"`
	EmailNotifications   bool      `json:"email_notifications" gorm:"not null"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// DefaultSettings returns the row created for a user on first read
func DefaultSettings(userID string) *NotificationSettings {
	return &NotificationSettings{
		UserID:               userID,
		WarrantyExpiring:     true,
		WarrantyExpiringDays: DefaultWarrantyExpiringDays,
		ReturnDeadline:       true,
		ReturnDeadlineDays:   DefaultReturnDeadlineDays,
		NewPurchase:          true,
		EmailNotifications:   true,
	}
}

// SettingsFields are the columns a user may change
var SettingsFields = []string{
	"warranty_expiring",
	"warranty_expiring_days",
	"return_deadline",
	"return_deadline_days",
	"new_purchase",
	"email_notifications",
}

// Allows reports whether a fact passes the user's toggles and day thresholds
func (s *NotificationSettings) Allows(f Fact) bool {
	switch f.Type {
	case TypeWarrantyExpiring:
		return s.WarrantyExpiring && f.DaysLeft >= 0 && f.DaysLeft <= s.WarrantyExpiringDays
	case TypeReturnDeadline:
		return s.ReturnDeadline && f.DaysLeft >= 0 && f.DaysLeft <= s.ReturnDeadlineDays
	case TypeNewPurchase:
		return s.NewPurchase
	default:
		return true
	}
}
