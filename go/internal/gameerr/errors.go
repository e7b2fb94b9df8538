package gameerr

import (
	"errors"
	"fmt"

	"connectrpc.com/connect"
)

// ReasonHeader carries the refined error reason across the RPC boundary.
const ReasonHeader = "Breakroom-Reason"

// Base error kinds. Every error returned by the app layers wraps exactly one of these.
var (
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrRemoteUnavailable = errors.New("remote unavailable")
	ErrUnknown           = errors.New("unknown error")
)

// Refined conflicts.
var (
	ErrSessionFull         = fmt.Errorf("%w: session is full", ErrConflict)
	ErrNotReady            = fmt.Errorf("%w: not enough players to start", ErrConflict)
	ErrInsufficientPlayers = fmt.Errorf("%w: at least two active participants required", ErrConflict)
	ErrInvalidTransition   = fmt.Errorf("%w: invalid session status transition", ErrConflict)
	ErrAlreadyPressed      = fmt.Errorf("%w: already pressed this round", ErrConflict)
	ErrAlreadyAnswered     = fmt.Errorf("%w: already answered this question", ErrConflict)
	ErrRoundClosed         = fmt.Errorf("%w: round is not open", ErrConflict)
	ErrWrongKind           = fmt.Errorf("%w: operation not supported by this game kind", ErrConflict)
	ErrSessionInactive     = fmt.Errorf("%w: session is not accepting this action", ErrConflict)
	ErrNotParticipant      = fmt.Errorf("%w: caller is not an active participant", ErrConflict)
	ErrInFlight            = fmt.Errorf("%w: an identical request is already in flight", ErrConflict)
	ErrEmailTaken          = fmt.Errorf("%w: email is already registered", ErrConflict)
)

// reasons maps each refined conflict to the string sent in ReasonHeader.
var reasons = map[string]error{
	"session_full":         ErrSessionFull,
	"not_ready":            ErrNotReady,
	"insufficient_players": ErrInsufficientPlayers,
	"invalid_transition":   ErrInvalidTransition,
	"already_pressed":      ErrAlreadyPressed,
	"already_answered":     ErrAlreadyAnswered,
	"round_closed":         ErrRoundClosed,
	"wrong_kind":           ErrWrongKind,
	"session_inactive":     ErrSessionInactive,
	"not_participant":      ErrNotParticipant,
	"in_flight":            ErrInFlight,
	"email_taken":          ErrEmailTaken,
}

// Reason returns the refined reason for err, or "" when err carries none.
func Reason(err error) string {
	for reason, target := range reasons {
		if errors.Is(err, target) {
			return reason
		}
	}
	return ""
}

// Code maps an error to its connect code.
func Code(err error) connect.Code {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return connect.CodeUnauthenticated
	case errors.Is(err, ErrForbidden):
		return connect.CodePermissionDenied
	case errors.Is(err, ErrNotFound):
		return connect.CodeNotFound
	case errors.Is(err, ErrInvalidArgument):
		return connect.CodeInvalidArgument
	case errors.Is(err, ErrSessionFull):
		return connect.CodeResourceExhausted
	case errors.Is(err, ErrConflict):
		return connect.CodeFailedPrecondition
	case errors.Is(err, ErrRemoteUnavailable):
		return connect.CodeUnavailable
	default:
		return connect.CodeUnknown
	}
}

// ToConnect converts an app error into a connect error carrying the refined reason.
func ToConnect(err error) error {
	if err == nil {
		return nil
	}
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce
	}
	ce = connect.NewError(Code(err), err)
	if reason := Reason(err); reason != "" {
		ce.Meta().Set(ReasonHeader, reason)
	}
	return ce
}

// FromConnect converts an error returned by a connect client back into the taxonomy.
// Errors without a connect code, and transport-level codes, become ErrRemoteUnavailable.
func FromConnect(err error) error {
	if err == nil {
		return nil
	}
	var ce *connect.Error
	if !errors.As(err, &ce) {
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	if target, ok := reasons[ce.Meta().Get(ReasonHeader)]; ok {
		return fmt.Errorf("%w: %s", target, ce.Message())
	}
	switch ce.Code() {
	case connect.CodeUnauthenticated:
		return fmt.Errorf("%w: %s", ErrUnauthenticated, ce.Message())
	case connect.CodePermissionDenied:
		return fmt.Errorf("%w: %s", ErrForbidden, ce.Message())
	case connect.CodeNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, ce.Message())
	case connect.CodeInvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidArgument, ce.Message())
	case connect.CodeResourceExhausted:
		return fmt.Errorf("%w: %s", ErrSessionFull, ce.Message())
	case connect.CodeFailedPrecondition, connect.CodeAlreadyExists, connect.CodeAborted:
		return fmt.Errorf("%w: %s", ErrConflict, ce.Message())
	case connect.CodeUnavailable, connect.CodeDeadlineExceeded, connect.CodeCanceled:
		return fmt.Errorf("%w: %s", ErrRemoteUnavailable, ce.Message())
	default:
		return fmt.Errorf("%w: %s", ErrUnknown, ce.Message())
	}
}
