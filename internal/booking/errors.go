package booking

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrBreakNotFound       = errors.New("break not found")
)

// SlotTakenError means the targeted physical slot already has a reservation.
// Callers retry against the next free slot, bounded.
type SlotTakenError struct {
	DoctorName string
	Date       string
	SlotIndex  int
}

func (e *SlotTakenError) Error() string {
	return fmt.Sprintf("slot %d for %s on %s is already taken", e.SlotIndex, e.DoctorName, e.Date)
}

// InvalidSlotError rejects an advance booking aimed at a slot the session
// cannot offer: an index past the session's slot grid or a slot covered by
// a break. Picking a different slot is the only recovery.
type InvalidSlotError struct {
	SessionIndex int
	SlotIndex    int
	Reason       string
}

func (e *InvalidSlotError) Error() string {
	return fmt.Sprintf("slot %d in session %d cannot be booked: %s", e.SlotIndex, e.SessionIndex, e.Reason)
}

// CapacityExceededError is terminal for the current booking request.
type CapacityExceededError struct {
	SessionIndex int
	Booked       int
	Capacity     int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("session %d is at capacity (%d of %d slots booked)", e.SessionIndex, e.Booked, e.Capacity)
}

// ShiftApplicationError reports appointments whose times could not be
// updated after a break commit. The break itself stands; the session is
// queued for reconciliation.
type ShiftApplicationError struct {
	BreakID uuid.UUID
	Failed  []uuid.UUID
	Err     error
}

func (e *ShiftApplicationError) Error() string {
	return fmt.Sprintf("break %s saved but %d appointment(s) could not be shifted; times may need review", e.BreakID, len(e.Failed))
}

func (e *ShiftApplicationError) Unwrap() error { return e.Err }
