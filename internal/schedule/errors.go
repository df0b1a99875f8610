package schedule

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidRange  = errors.New("session end must be after session start")
	ErrNoSessions    = errors.New("doctor has no sessions on this day")
	ErrNoSuchSession = errors.New("no session with this index on this day")
)

// ValidationError rejects a break placement with a user-facing reason. It is
// recovered locally, never retried.
type ValidationError struct {
	SessionIndex int
	Reason       string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid break for session %d: %s", e.SessionIndex, e.Reason)
}

// OverlapWithNextSessionError blocks an extension choice that would run the
// current session into the next one.
type OverlapWithNextSessionError struct {
	SessionIndex     int
	ProposedEnd      time.Time
	NextSessionStart time.Time
}

func (e *OverlapWithNextSessionError) Error() string {
	return fmt.Sprintf("extending session %d to %s would overlap the next session starting %s",
		e.SessionIndex,
		e.ProposedEnd.Format("15:04"),
		e.NextSessionStart.Format("15:04"))
}
