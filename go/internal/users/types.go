package users

// UpdateProfileRequest represents the profile fields an actor may edit on themselves.
// Roles are not editable here.
type UpdateProfileRequest struct {
	FullName   *string `json:"full_name,omitempty"`
	AvatarURL  *string `json:"avatar_url,omitempty"`
	Department *string `json:"department,omitempty"`
}
