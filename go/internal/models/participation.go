package models

import (
	"time"

	"github.com/google/uuid"
)

// ProfileSnapshot is the presentation copy of an actor's profile carried on a participation.
type ProfileSnapshot struct {
	FullName  string  `json:"full_name"`
	Email     string  `json:"email"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// Participation represents one actor's membership in a session.
type Participation struct {
	ID        uuid.UUID        `json:"id"`
	SessionID uuid.UUID        `json:"game_id"`
	UserID    uuid.UUID        `json:"user_id"`
	JoinedAt  time.Time        `json:"joined_at"`
	Score     int              `json:"score"`
	IsActive  bool             `json:"is_active"`
	Profile   *ProfileSnapshot `json:"profile,omitempty"`
}
