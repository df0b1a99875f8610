package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/clinicore/session-scheduling/internal/schedule"
)

const defaultBookingRetries = 3

// Service is the booking entry point used by request handlers: walk-in
// estimates, walk-in and advance booking through the reservation gateway,
// and the derived day schedule view.
type Service struct {
	repo    Repository
	gateway *Gateway
	retries int
	log     *logrus.Entry
}

func NewService(repo Repository, gateway *Gateway, retries int, log *logrus.Entry) *Service {
	if retries <= 0 {
		retries = defaultBookingRetries
	}
	return &Service{repo: repo, gateway: gateway, retries: retries, log: log}
}

// WalkInEstimate answers "how long is the wait" for a walk-in arriving now,
// without booking anything.
func (s *Service) WalkInEstimate(ctx context.Context, clinicID, doctorName string, now time.Time) (*WalkInEstimate, error) {
	doc, info, appts, set, err := s.loadWalkInContext(ctx, clinicID, doctorName, now)
	if err != nil {
		return nil, err
	}
	return PlanWalkIn(doc, info, appts, now, *set)
}

// BookWalkIn plans and reserves a slot for a walk-in patient. Losing a race
// for the computed slot retries against the next free slot up to the
// configured attempt bound, then surfaces the conflict.
func (s *Service) BookWalkIn(ctx context.Context, clinicID, doctorName, patientName string, now time.Time) (*schedule.Appointment, error) {
	var lastErr error

	for attempt := 0; attempt < s.retries; attempt++ {
		doc, info, appts, set, err := s.loadWalkInContext(ctx, clinicID, doctorName, now)
		if err != nil {
			return nil, err
		}

		plan, err := PlanWalkIn(doc, info, appts, now, *set)
		if err != nil {
			return nil, err
		}

		draft := newDraft(clinicID, doctorName, now.Format(schedule.DateLayout), info, plan.SlotIndex, doc.SlotDuration())
		draft.PatientName = patientName
		draft.TokenNumber = plan.TokenNumber
		draft.BookedVia = schedule.ViaWalkIn

		appt, err := s.gateway.Reserve(ctx, draft)
		if err != nil {
			var taken *SlotTakenError
			if errors.As(err, &taken) {
				lastErr = err
				s.log.WithFields(logrus.Fields{
					"doctor":     doctorName,
					"slot_index": taken.SlotIndex,
					"attempt":    attempt + 1,
				}).Info("slot lost to a concurrent booking, retrying")
				continue
			}
			return nil, err
		}

		s.recordBooking(ctx, appt, EventWalkInBooked)
		return appt, nil
	}

	return nil, fmt.Errorf("walk-in booking failed after %d attempts: %w", s.retries, lastErr)
}

// BookAdvance reserves a concrete slot for a pre-booked patient. The
// clinic's walk-in reserve ratio holds back a fraction of the session's
// capacity from advance booking.
func (s *Service) BookAdvance(ctx context.Context, clinicID, doctorName, patientName, date string, sessionIndex, slotIndex int) (*schedule.Appointment, error) {
	doc, err := s.repo.GetDoctor(ctx, clinicID, doctorName, date)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	set, err := s.repo.GetClinicSettings(ctx, clinicID)
	if err != nil {
		return nil, fmt.Errorf("load clinic settings: %w", err)
	}

	day, err := time.ParseInLocation(schedule.DateLayout, date, time.Local)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", date, err)
	}
	info, err := schedule.Resolver{}.ResolveSession(doc, day, sessionIndex)
	if err != nil {
		return nil, err
	}

	slotDur := doc.SlotDuration()
	if slotIndex < 0 || slotIndex >= schedule.SlotCount(info.Start, info.EffectiveEnd, slotDur) {
		return nil, &InvalidSlotError{SessionIndex: sessionIndex, SlotIndex: slotIndex, Reason: "outside the session"}
	}
	if coveredByAny(info.Start.Add(time.Duration(slotIndex)*slotDur), schedule.MergeAdjacentBreaks(info.Breaks)) {
		return nil, &InvalidSlotError{SessionIndex: sessionIndex, SlotIndex: slotIndex, Reason: "covered by a break"}
	}

	appts, err := s.repo.ListSessionAppointments(ctx, clinicID, doctorName, date, sessionIndex)
	if err != nil {
		return nil, fmt.Errorf("load session appointments: %w", err)
	}

	capacity := sessionCapacity(info, slotDur)
	advance := 0
	for i := range appts {
		if appts[i].Active() && appts[i].BookedVia != schedule.ViaWalkIn {
			advance++
		}
	}
	reserved := int(float64(capacity) * set.WalkInReserveRatio)
	if capacity > 0 && advance >= capacity-reserved {
		return nil, &CapacityExceededError{SessionIndex: sessionIndex, Booked: advance, Capacity: capacity - reserved}
	}

	draft := newDraft(clinicID, doctorName, date, info, slotIndex, slotDur)
	draft.PatientName = patientName
	draft.TokenNumber = fmt.Sprintf("A%d", advance+1)
	draft.BookedVia = schedule.ViaAdvanceBooking

	appt, err := s.gateway.Reserve(ctx, draft)
	if err != nil {
		return nil, err
	}

	s.recordBooking(ctx, appt, EventAdvanceBooked)
	return appt, nil
}

// CancelAppointment frees the appointment's slot claim and cancels it.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID) error {
	a, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return err
	}
	if a.Status == schedule.StatusCancelled {
		return nil
	}

	a.Status = schedule.StatusCancelled
	if err := s.repo.UpdateAppointmentTimes(ctx, a); err != nil {
		return fmt.Errorf("cancel appointment: %w", err)
	}
	return s.gateway.Release(ctx, a.ClinicID, a.DoctorName, a.Date, a.SlotIndex)
}

// DaySchedule returns the taken/open state of every slot in the doctor's
// day. A slot is taken when an active appointment holds it or a break
// covers it.
func (s *Service) DaySchedule(ctx context.Context, clinicID, doctorName, date string) ([]schedule.SlotInfo, error) {
	doc, err := s.repo.GetDoctor(ctx, clinicID, doctorName, date)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	day, err := time.ParseInLocation(schedule.DateLayout, date, time.Local)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", date, err)
	}
	appts, err := s.repo.ListDayAppointments(ctx, clinicID, doctorName, date)
	if err != nil {
		return nil, fmt.Errorf("load day appointments: %w", err)
	}
	return BuildDaySchedule(doc, day, appts)
}

func (s *Service) loadWalkInContext(ctx context.Context, clinicID, doctorName string, now time.Time) (*schedule.Doctor, schedule.SessionInfo, []schedule.Appointment, *ClinicSettings, error) {
	date := now.Format(schedule.DateLayout)

	doc, err := s.repo.GetDoctor(ctx, clinicID, doctorName, date)
	if err != nil {
		return nil, schedule.SessionInfo{}, nil, nil, fmt.Errorf("load doctor: %w", err)
	}
	set, err := s.repo.GetClinicSettings(ctx, clinicID)
	if err != nil {
		return nil, schedule.SessionInfo{}, nil, nil, fmt.Errorf("load clinic settings: %w", err)
	}

	info, err := schedule.Resolver{}.ActiveOrUpcomingSession(doc, now, now)
	if err != nil {
		return nil, schedule.SessionInfo{}, nil, nil, err
	}

	appts, err := s.repo.ListSessionAppointments(ctx, clinicID, doctorName, date, info.SessionIndex)
	if err != nil {
		return nil, schedule.SessionInfo{}, nil, nil, fmt.Errorf("load session appointments: %w", err)
	}

	return doc, info, appts, set, nil
}

// newDraft builds an appointment at the session's slotIndex with cutoff and
// no-show windows derived from the slot time. The Base* fields snapshot the
// un-shifted times for later break shifts to compose against.
func newDraft(clinicID, doctorName, date string, info schedule.SessionInfo, slotIndex int, slotDur time.Duration) *schedule.Appointment {
	at := info.Start.Add(time.Duration(slotIndex) * slotDur)

	return &schedule.Appointment{
		ID:           uuid.New(),
		ClinicID:     clinicID,
		DoctorName:   doctorName,
		Date:         date,
		Time:         at,
		ArriveBy:     at,
		SessionIndex: info.SessionIndex,
		SlotIndex:    slotIndex,
		Status:       schedule.StatusPending,
		CutOff:       at.Add(slotDur),
		NoShow:       at.Add(2 * slotDur),
		BaseArriveBy: at,
		BaseCutOff:   at.Add(slotDur),
		BaseNoShow:   at.Add(2 * slotDur),
	}
}

func (s *Service) recordBooking(ctx context.Context, a *schedule.Appointment, eventType string) {
	id := a.ID
	payload := []byte(fmt.Sprintf(`{"token":%q,"slot_index":%d,"session_index":%d}`,
		a.TokenNumber, a.SlotIndex, a.SessionIndex))

	ev := EventLog{EventType: eventType, AppointmentID: &id, Payload: payload, CreatedAt: time.Now()}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.WithError(err).WithField("appointment_id", a.ID).Warn("could not record booking event")
	}
}
