package users

import "strings"

// RoleType represents a blog user role
type RoleType string

const (
	RoleUser       RoleType = "user"       // Can read and comment
	RoleEditor     RoleType = "editor"     // Can write and publish articles
	RoleAdmin      RoleType = "admin"      // Can manage users and content
	RoleSuperAdmin RoleType = "superadmin" // Can manage everything including admins
)

var roleLevels = map[RoleType]int{
	RoleUser:       1,
	RoleEditor:     2,
	RoleAdmin:      3,
	RoleSuperAdmin: 4,
}

var roleNames = map[RoleType]string{
	RoleUser:       "User",
	RoleEditor:     "Editor",
	RoleAdmin:      "Administrator",
	RoleSuperAdmin: "Super Administrator",
}

// Level orders roles; unknown roles rank below RoleUser.
func (r RoleType) Level() int {
	return roleLevels[r]
}

// AtLeast reports whether r ranks the same as or above other.
func (r RoleType) AtLeast(other RoleType) bool {
	return r.Level() >= other.Level() && r.Level() > 0
}

func (r RoleType) DisplayName() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "Unknown role"
}

// Status is the account status reported by the blog API.
type Status int

const (
	StatusDisabled Status = 0
	StatusActive   Status = 1
)

func (s Status) String() string {
	switch s {
	case StatusDisabled:
		return "disabled"
	case StatusActive:
		return "active"
	default:
		return "unknown"
	}
}

// User is the denormalized profile snapshot returned at login. It is used for display
// only and is never authoritative for access decisions.
type User struct {
	ID        uint     `json:"id"`                  // Unique identifier for the user
	Username  string   `json:"username"`            // Login name
	Email     string   `json:"email,omitempty"`     // User's email address
	Nickname  string   `json:"nickname,omitempty"`  // Preferred display name
	Avatar    string   `json:"avatar,omitempty"`    // Avatar URL
	Role      RoleType `json:"role"`                // Blog role
	Status    Status   `json:"status"`              // 1 = active, 0 = disabled
	CreatedAt string   `json:"createdAt,omitempty"` // Server formatted date
	UpdatedAt string   `json:"updatedAt,omitempty"` // Server formatted date
}

// DisplayName returns the nickname, falling back to the username.
func (u *User) DisplayName() string {
	if u == nil {
		return "Unknown user"
	}
	if name := strings.TrimSpace(u.Nickname); name != "" {
		return name
	}
	if name := strings.TrimSpace(u.Username); name != "" {
		return name
	}
	return "Anonymous user"
}

func (u *User) IsActive() bool {
	return u != nil && u.Status == StatusActive
}

// CanAccessAdmin reports whether the user may open the admin surface.
func (u *User) CanAccessAdmin() bool {
	return u.IsActive() && u.Role.AtLeast(RoleEditor)
}

// Clone returns a copy so snapshots handed out by the session store can't be mutated.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
