package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire/storage format for clinic dates. All times are
// clinic-local; the engine does not handle multiple timezones.
const DateLayout = "2006-01-02"

const DefaultConsultingMinutes = 15

// ClockTime is a time of day in minutes from midnight, clinic-local.
type ClockTime int

func ParseClock(s string) (ClockTime, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse clock time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock time %q out of range", s)
	}
	return ClockTime(h*60 + m), nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On anchors the clock time to a concrete date.
func (c ClockTime) On(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), int(c)/60, int(c)%60, 0, 0, date.Location())
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

func (c *ClockTime) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// SessionWindow is one working-hours block in the weekly template,
// identified by its index within the weekday's session list.
type SessionWindow struct {
	Start ClockTime `json:"start"`
	End   ClockTime `json:"end"`
}

type DayAvailability struct {
	Weekday  time.Weekday    `json:"weekday"`
	Sessions []SessionWindow `json:"sessions"`
}

type BreakKind string

const (
	BreakAdHoc     BreakKind = "ad_hoc"
	BreakRecurring BreakKind = "recurring"
)

// BreakPeriod is an operator-declared unavailable sub-range of a session.
// Slots is the exact contiguous set of slot instants covered:
// StartTime == Slots[0] and EndTime == last slot + slot duration.
type BreakPeriod struct {
	ID              uuid.UUID   `json:"id"`
	StartTime       time.Time   `json:"start_time"`
	EndTime         time.Time   `json:"end_time"`
	DurationMinutes int         `json:"duration_minutes"`
	SessionIndex    int         `json:"session_index"`
	Slots           []time.Time `json:"slots"`
	Kind            BreakKind   `json:"kind"`
}

func (b BreakPeriod) Duration() time.Duration {
	return time.Duration(b.DurationMinutes) * time.Minute
}

// Covers reports whether t falls inside the break window.
func (b BreakPeriod) Covers(t time.Time) bool {
	return !t.Before(b.StartTime) && t.Before(b.EndTime)
}

// SessionExtension records the user-confirmed extension of one session's
// end on one date. TotalExtendedMinutes is a decision, not derived: it may
// be zero, the minimal amount, or the full break total.
type SessionExtension struct {
	SessionIndex         int           `json:"session_index"`
	Breaks               []BreakPeriod `json:"breaks"`
	TotalExtendedMinutes int           `json:"total_extended_minutes"`
	OriginalEnd          time.Time     `json:"original_end"`
	NewEnd               time.Time     `json:"new_end"`
}

// Doctor is the engine's read view of a doctor record. Per-date overrides
// are keyed by DateLayout strings.
type Doctor struct {
	ClinicID                 string
	Name                     string
	Availability             []DayAvailability
	AverageConsultingMinutes int
	Breaks                   map[string][]BreakPeriod
	Extensions               map[string][]SessionExtension
}

func (d *Doctor) SlotDuration() time.Duration {
	m := d.AverageConsultingMinutes
	if m <= 0 {
		m = DefaultConsultingMinutes
	}
	return time.Duration(m) * time.Minute
}

// SessionsOn returns the weekday's session windows for the given date.
func (d *Doctor) SessionsOn(date time.Time) []SessionWindow {
	for _, day := range d.Availability {
		if day.Weekday == date.Weekday() {
			return day.Sessions
		}
	}
	return nil
}

// SessionInfo is the derived, single-authority view of one session on one
// date with breaks and any confirmed extension folded in.
type SessionInfo struct {
	SessionIndex      int           `json:"session_index"`
	Start             time.Time     `json:"start"`
	End               time.Time     `json:"end"`
	Breaks            []BreakPeriod `json:"breaks"`
	TotalBreakMinutes int           `json:"total_break_minutes"`
	EffectiveEnd      time.Time     `json:"effective_end"`
	OriginalEnd       time.Time     `json:"original_end"`
}

// SlotInfo is one bookable unit in a day schedule view.
type SlotInfo struct {
	Instant       time.Time `json:"instant"`
	SessionIndex  int       `json:"session_index"`
	TimeFormatted string    `json:"time_formatted"`
	IsTaken       bool      `json:"is_taken"`
}

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no_show"
	StatusSkipped   AppointmentStatus = "skipped"
)

type BookingChannel string

const (
	ViaAdvanceBooking BookingChannel = "advance_booking"
	ViaWalkIn         BookingChannel = "walk_in"
	ViaOnline         BookingChannel = "online"
)

// Appointment is the engine's view of a booked token. The Base* fields hold
// the un-shifted times as computed at booking; break shifts are always
// applied against these baselines so repeated shifts compose additively.
type Appointment struct {
	ID           uuid.UUID         `json:"id"`
	ClinicID     string            `json:"clinic_id"`
	DoctorName   string            `json:"doctor_name"`
	PatientName  string            `json:"patient_name"`
	Date         string            `json:"date"`
	Time         time.Time         `json:"time"`
	ArriveBy     time.Time         `json:"arrive_by"`
	SessionIndex int               `json:"session_index"`
	SlotIndex    int               `json:"slot_index"`
	Status       AppointmentStatus `json:"status"`
	TokenNumber  string            `json:"token_number"`
	BookedVia    BookingChannel    `json:"booked_via"`

	CancelledByBreak bool      `json:"cancelled_by_break"`
	CutOff           time.Time `json:"cut_off"`
	NoShow           time.Time `json:"no_show"`
	DelayMinutes     int       `json:"delay_minutes"`

	BaseArriveBy time.Time `json:"base_arrive_by"`
	BaseCutOff   time.Time `json:"base_cut_off"`
	BaseNoShow   time.Time `json:"base_no_show"`

	AppliedBreakIDs []uuid.UUID `json:"applied_break_ids"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the appointment still occupies its slot.
func (a *Appointment) Active() bool {
	return a.Status != StatusCancelled
}

// Queued reports whether the patient is still waiting to be seen.
func (a *Appointment) Queued() bool {
	return a.Status == StatusPending || a.Status == StatusConfirmed
}

// HasAppliedBreak reports whether the shift for the given break id has
// already been applied to this appointment.
func (a *Appointment) HasAppliedBreak(id uuid.UUID) bool {
	for _, b := range a.AppliedBreakIDs {
		if b == id {
			return true
		}
	}
	return false
}
