package participation

import (
	"github.com/mcdev12/breakroom/go/internal/models"
)

// Admission decides whether a caller may join a locked session.
// existing is the caller's previous, inactive row, or nil.
type Admission func(s *models.Session, existing *models.Participation) error

// JoinResult is the outcome of a join. Joined is false when the caller was already active.
type JoinResult struct {
	Participation models.Participation
	Session       models.Session
	Joined        bool
}

// LeaveResult is the outcome of a leave or removal. Left is false when there was nothing to leave.
type LeaveResult struct {
	Session models.Session
	Left    bool
}
