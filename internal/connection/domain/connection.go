package domain

import (
	"time"

	"golang.org/x/oauth2"
)

// ProviderGmail is the only mailbox provider supported today
const ProviderGmail = "gmail"

// Connection links a user to an external mailbox. At most one row exists per (user_id, provider).
type Connection struct {
	ID             string     `json:"id" gorm:"primaryKey"`
	UserID         string     `json:"user_id" gorm:"not null;uniqueIndex:idx_connections_user_provider,priority:1"`
	Provider       string     `json:"provider" gorm:"not null;uniqueIndex:idx_connections_user_provider,priority:2"`
	EmailAddress   string     `json:"email_address" gorm:"index"`
	AccessToken    string     `json:"-" gorm:"not null"`
	RefreshToken   string     `json:"-" gorm:"not null"`
	TokenExpiresAt *time.Time `json:"-"`
	SyncEnabled    bool       `json:"sync_enabled" gorm:"not null;index"`
	LastSyncAt     *time.Time `json:"last_sync_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Token rebuilds the oauth2 token from the stored columns
func (c *Connection) Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    "Bearer",
	}
	if c.TokenExpiresAt != nil {
		token.Expiry = *c.TokenExpiresAt
	}
	return token
}

// Status is what the client sees about the caller's connection
type Status struct {
	Connected    bool       `json:"connected"`
	EmailAddress string     `json:"email_address,omitempty"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
	SyncEnabled  *bool      `json:"sync_enabled,omitempty"`
}
