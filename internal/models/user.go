package models

import "time"

// User roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID          int        `json:"id" example:"1"`                     // User ID
	Email       string     `json:"email" example:"user@example.com"`   // User email
	FirstName   string     `json:"firstName" example:"John"`           // User first name
	LastName    string     `json:"lastName" example:"Doe"`             // User last name
	PhoneNumber string     `json:"phoneNumber" example:"+12425550123"` // User phone number
	Role        string     `json:"role" example:"user"`                // user or admin
	Status      string     `json:"status" example:"active"`            // Account standing
	LastLogin   *time.Time `json:"lastLogin,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}
