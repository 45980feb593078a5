package shared

import (
	"time"

	"github.com/google/uuid"
)

// Role of a registered user. Administrators publish and cancel auctions.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User represents a registered user in the marketplace
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAdmin returns true if the user carries the administrator role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Item represents an item that can be auctioned. Sold flips when an
// auction for the item completes with a winner.
type Item struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Sold        bool      `json:"sold"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
