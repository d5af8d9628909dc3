package domain

import "time"

// UserRole separates requesters from support staff.
type UserRole string

const (
	RoleUser    UserRole = "user"
	RoleSupport UserRole = "support"
	RoleAdmin   UserRole = "admin"
)

// IsSupport reports whether the role belongs to the support team.
func (r UserRole) IsSupport() bool {
	return r == RoleSupport || r == RoleAdmin
}

// User is anyone who files or works tickets. Phone is the chat contact, if registered.
type User struct {
	ID        string
	Name      string
	Email     string
	Role      UserRole
	Team      Team
	Sector    string
	Phone     string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Actor is the acting identity supplied by the session layer for every operation.
type Actor struct {
	ID     string
	Role   UserRole
	Team   Team
	Sector string
}

// IsSupport reports whether the actor may act as support staff.
func (a Actor) IsSupport() bool {
	return a.Role.IsSupport()
}
