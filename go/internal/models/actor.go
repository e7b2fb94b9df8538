package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is an actor's role in the closed set {user, admin}.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Actor represents an authenticated identity and its profile
type Actor struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	FullName   *string   `json:"full_name,omitempty"`
	AvatarURL  *string   `json:"avatar_url,omitempty"`
	Role       Role      `json:"role"`
	Department *string   `json:"department,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (a *Actor) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

// DisplayName returns the full name if set, falling back to the email.
func (a *Actor) DisplayName() string {
	if a.FullName != nil && *a.FullName != "" {
		return *a.FullName
	}
	return a.Email
}

// RolePermissions lists what a role is allowed to do.
type RolePermissions struct {
	CanCreateAnnouncements bool `json:"can_create_announcements"`
	CanManageGames         bool `json:"can_manage_games"`
	CanViewAnalytics       bool `json:"can_view_analytics"`
	CanManageUsers         bool `json:"can_manage_users"`
}

// PermissionsFor returns the permission set for a role. Unknown roles get member permissions.
func PermissionsFor(role Role) RolePermissions {
	switch role {
	case RoleAdmin:
		return RolePermissions{
			CanCreateAnnouncements: true,
			CanManageGames:         true,
			CanViewAnalytics:       true,
			CanManageUsers:         true,
		}
	default:
		return RolePermissions{}
	}
}
