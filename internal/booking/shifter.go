package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/clinicore/session-scheduling/internal/schedule"
)

// Shifter moves sibling appointment times when a break enters or leaves a
// session. Shifts are keyed by break id on each appointment, so re-applying
// the same break is a no-op, and cutoff/no-show times are always rebuilt
// from the un-shifted baselines so repeated shifts compose additively.
type Shifter struct {
	repo Repository
	log  *logrus.Entry
}

func NewShifter(repo Repository, log *logrus.Entry) *Shifter {
	return &Shifter{repo: repo, log: log}
}

// ShiftForNewBreak advances every non-cancelled appointment at or after the
// break's start by the break's duration. Failures are collected, the
// session is queued for reconciliation, and a *ShiftApplicationError is
// returned; appointments already updated stay updated.
func (s *Shifter) ShiftForNewBreak(ctx context.Context, key SessionKey, brk schedule.BreakPeriod) error {
	appts, err := s.repo.ListSessionAppointments(ctx, key.ClinicID, key.DoctorName, key.Date, key.SessionIndex)
	if err != nil {
		return fmt.Errorf("load session appointments: %w", err)
	}

	var failed []uuid.UUID
	var lastErr error
	for i := range appts {
		a := &appts[i]
		if !a.Active() || a.CancelledByBreak {
			continue
		}
		if a.ArriveBy.Before(brk.StartTime) {
			continue
		}
		if a.HasAppliedBreak(brk.ID) {
			continue
		}

		applyShift(a, brk.ID, a.ArriveBy.Add(brk.Duration()))

		if err := s.repo.UpdateAppointmentTimes(ctx, a); err != nil {
			failed = append(failed, a.ID)
			lastErr = err
			continue
		}
		s.logShift(ctx, a, brk.ID)
	}

	if len(failed) > 0 {
		if err := s.repo.MarkSessionDirty(ctx, key); err != nil {
			s.log.WithError(err).Warn("could not queue session for reconciliation")
		}
		return &ShiftApplicationError{BreakID: brk.ID, Failed: failed, Err: lastErr}
	}
	return nil
}

// UnshiftForRemovedBreak reverses a break's shift on every appointment that
// carries it. When openSlots is chosen, appointments the break had
// displaced are reverted to cancelled and their claims released, making the
// slots bookable again; otherwise they stay blocked.
func (s *Shifter) UnshiftForRemovedBreak(ctx context.Context, key SessionKey, brk schedule.BreakPeriod, openSlots bool) error {
	appts, err := s.repo.ListSessionAppointments(ctx, key.ClinicID, key.DoctorName, key.Date, key.SessionIndex)
	if err != nil {
		return fmt.Errorf("load session appointments: %w", err)
	}

	var failed []uuid.UUID
	var lastErr error
	for i := range appts {
		a := &appts[i]

		if openSlots && a.CancelledByBreak && a.Status == schedule.StatusCompleted && brk.Covers(a.Time) {
			a.Status = schedule.StatusCancelled
			a.CancelledByBreak = false
			if err := s.repo.UpdateAppointmentTimes(ctx, a); err != nil {
				failed = append(failed, a.ID)
				lastErr = err
				continue
			}
			if err := s.repo.ReleaseSlot(ctx, key.ClinicID, key.DoctorName, key.Date, a.SlotIndex); err != nil {
				failed = append(failed, a.ID)
				lastErr = err
			}
			continue
		}

		if !a.Active() || !a.HasAppliedBreak(brk.ID) {
			continue
		}

		applyShift(a, uuid.Nil, a.ArriveBy.Add(-brk.Duration()))
		removeAppliedBreak(a, brk.ID)

		if err := s.repo.UpdateAppointmentTimes(ctx, a); err != nil {
			failed = append(failed, a.ID)
			lastErr = err
			continue
		}
		s.logShift(ctx, a, brk.ID)
	}

	if len(failed) > 0 {
		if err := s.repo.MarkSessionDirty(ctx, key); err != nil {
			s.log.WithError(err).Warn("could not queue session for reconciliation")
		}
		return &ShiftApplicationError{BreakID: brk.ID, Failed: failed, Err: lastErr}
	}
	return nil
}

// applyShift moves the appointment to newArriveBy and rebuilds the cutoff
// and no-show times from the baselines. A non-nil break id is recorded as
// applied.
func applyShift(a *schedule.Appointment, breakID uuid.UUID, newArriveBy time.Time) {
	a.ArriveBy = newArriveBy

	total := a.ArriveBy.Sub(a.BaseArriveBy)
	a.CutOff = a.BaseCutOff.Add(total)
	a.NoShow = a.BaseNoShow.Add(total)
	a.DelayMinutes = int(total / time.Minute)

	if breakID != uuid.Nil {
		a.AppliedBreakIDs = append(a.AppliedBreakIDs, breakID)
	}
}

func removeAppliedBreak(a *schedule.Appointment, id uuid.UUID) {
	kept := a.AppliedBreakIDs[:0]
	for _, b := range a.AppliedBreakIDs {
		if b != id {
			kept = append(kept, b)
		}
	}
	a.AppliedBreakIDs = kept
}

func (s *Shifter) logShift(ctx context.Context, a *schedule.Appointment, breakID uuid.UUID) {
	payload := []byte(fmt.Sprintf(`{"break_id":%q,"arrive_by":%q,"delay_minutes":%d}`,
		breakID, a.ArriveBy.Format(time.RFC3339), a.DelayMinutes))

	id := a.ID
	ev := EventLog{
		EventType:     EventAppointmentShifted,
		AppointmentID: &id,
		Payload:       payload,
		CreatedAt:     time.Now(),
	}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.WithError(err).WithField("appointment_id", a.ID).Warn("could not record shift event")
	}
}
