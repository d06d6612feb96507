package domain

import "time"

// User is an account of the application. Credentials live with the external auth
// platform; this row only anchors ownership of connections, purchases and notifications.
type User struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Email     string    `json:"email" gorm:"uniqueIndex;not null"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
