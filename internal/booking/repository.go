package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/session-scheduling/internal/schedule"
)

const (
	EventBreakInserted      = "BREAK_INSERTED"
	EventBreakRemoved       = "BREAK_REMOVED"
	EventAppointmentShifted = "APPOINTMENT_SHIFTED"
	EventWalkInBooked       = "WALKIN_BOOKED"
	EventAdvanceBooked      = "ADVANCE_BOOKED"
	EventSessionReconciled  = "SESSION_RECONCILED"
)

// SessionKey identifies one session of one doctor's day.
type SessionKey struct {
	ClinicID     string
	DoctorName   string
	Date         string
	SessionIndex int
}

// ClinicSettings are the clinic-level walk-in knobs read from the store.
type ClinicSettings struct {
	WalkInTokenAllotment    int
	WalkInCapacityThreshold float64
	WalkInReserveRatio      float64
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Repository contains all store interactions the engine needs. Break and
// extension state for a session commit in one transaction; the slot
// reservation pair commits in another. Appointment time updates are
// individual best-effort writes; a failed one queues the session for
// reconciliation.
type Repository interface {
	// GetDoctor returns the doctor with breaks and extensions populated
	// for the given date only.
	GetDoctor(ctx context.Context, clinicID, name, date string) (*schedule.Doctor, error)
	GetClinicSettings(ctx context.Context, clinicID string) (*ClinicSettings, error)

	ListSessionAppointments(ctx context.Context, clinicID, doctorName, date string, sessionIndex int) ([]schedule.Appointment, error)
	ListDayAppointments(ctx context.Context, clinicID, doctorName, date string) ([]schedule.Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*schedule.Appointment, error)

	// UpdateAppointmentTimes persists ArriveBy, CutOff, NoShow, Delay,
	// AppliedBreakIDs, Status and CancelledByBreak for one appointment.
	UpdateAppointmentTimes(ctx context.Context, a *schedule.Appointment) error

	// ReplaceSessionBreaks atomically replaces the session's break set and
	// its extension entry (batched multi-row write, single transaction).
	ReplaceSessionBreaks(ctx context.Context, key SessionKey, breaks []schedule.BreakPeriod, ext schedule.SessionExtension) error

	// ReserveSlot atomically creates the reservation claim and the
	// appointment record, failing with *SlotTakenError when the claim
	// already exists.
	ReserveSlot(ctx context.Context, a *schedule.Appointment) (*schedule.Appointment, error)
	// ReleaseSlot deletes the claim; deleting an absent claim is not an
	// error.
	ReleaseSlot(ctx context.Context, clinicID, doctorName, date string, slotIndex int) error
	// ReleaseBlockedSlots frees claims held by break-displaced appointments
	// once the claim is older than the cutoff. Returns the number released.
	ReleaseBlockedSlots(ctx context.Context, before time.Time) (int, error)

	// Reconciliation queue for sessions whose shifts failed mid-way.
	MarkSessionDirty(ctx context.Context, key SessionKey) error
	ListDirtySessions(ctx context.Context, limit int) ([]SessionKey, error)
	ClearSessionDirty(ctx context.Context, key SessionKey) error

	InsertEvent(ctx context.Context, ev EventLog) error
}
