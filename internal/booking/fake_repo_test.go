package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/session-scheduling/internal/schedule"
)

var errAppointmentWriteFailed = errors.New("appointment write failed")

// fakeRepo is an in-memory Repository with the same per-slot uniqueness
// guarantee the store provides. Safe for concurrent use so the gateway
// race tests exercise real contention.
type fakeRepo struct {
	mu sync.Mutex

	doctor       *schedule.Doctor
	settings     ClinicSettings
	appointments map[uuid.UUID]*schedule.Appointment
	reservations map[string]uuid.UUID
	dirty        map[SessionKey]bool
	events       []EventLog

	failTimesFor map[uuid.UUID]bool // appointment ids whose time updates fail
}

func newFakeRepo(doc *schedule.Doctor, settings ClinicSettings) *fakeRepo {
	return &fakeRepo{
		doctor:       doc,
		settings:     settings,
		appointments: map[uuid.UUID]*schedule.Appointment{},
		reservations: map[string]uuid.UUID{},
		dirty:        map[SessionKey]bool{},
		failTimesFor: map[uuid.UUID]bool{},
	}
}

func slotKey(clinicID, doctor, date string, slotIndex int) string {
	return fmt.Sprintf("%s|%s|%s|%d", clinicID, doctor, date, slotIndex)
}

func (f *fakeRepo) GetDoctor(_ context.Context, _, _, _ string) (*schedule.Doctor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.doctor == nil {
		return nil, ErrDoctorNotFound
	}
	cp := *f.doctor
	return &cp, nil
}

func (f *fakeRepo) GetClinicSettings(_ context.Context, _ string) (*ClinicSettings, error) {
	s := f.settings
	return &s, nil
}

func (f *fakeRepo) ListSessionAppointments(_ context.Context, _, _, date string, sessionIndex int) ([]schedule.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []schedule.Appointment
	for _, a := range f.appointments {
		if a.Date == date && a.SessionIndex == sessionIndex {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListDayAppointments(_ context.Context, _, _, date string) ([]schedule.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []schedule.Appointment
	for _, a := range f.appointments {
		if a.Date == date {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*schedule.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) UpdateAppointmentTimes(_ context.Context, a *schedule.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTimesFor[a.ID] {
		return errAppointmentWriteFailed
	}
	stored, ok := f.appointments[a.ID]
	if !ok {
		return ErrAppointmentNotFound
	}
	cp := *a
	cp.AppliedBreakIDs = append([]uuid.UUID(nil), a.AppliedBreakIDs...)
	*stored = cp
	return nil
}

func (f *fakeRepo) ReplaceSessionBreaks(_ context.Context, key SessionKey, breaks []schedule.BreakPeriod, ext schedule.SessionExtension) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var kept []schedule.BreakPeriod
	for _, b := range f.doctor.Breaks[key.Date] {
		if b.SessionIndex != key.SessionIndex {
			kept = append(kept, b)
		}
	}
	kept = append(kept, breaks...)
	if f.doctor.Breaks == nil {
		f.doctor.Breaks = map[string][]schedule.BreakPeriod{}
	}
	f.doctor.Breaks[key.Date] = kept

	if f.doctor.Extensions == nil {
		f.doctor.Extensions = map[string][]schedule.SessionExtension{}
	}
	var exts []schedule.SessionExtension
	for _, e := range f.doctor.Extensions[key.Date] {
		if e.SessionIndex != key.SessionIndex {
			exts = append(exts, e)
		}
	}
	f.doctor.Extensions[key.Date] = append(exts, ext)
	return nil
}

func (f *fakeRepo) ReserveSlot(_ context.Context, a *schedule.Appointment) (*schedule.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := slotKey(a.ClinicID, a.DoctorName, a.Date, a.SlotIndex)
	if _, exists := f.reservations[key]; exists {
		return nil, &SlotTakenError{DoctorName: a.DoctorName, Date: a.Date, SlotIndex: a.SlotIndex}
	}
	f.reservations[key] = a.ID

	cp := *a
	f.appointments[a.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeRepo) ReleaseSlot(_ context.Context, clinicID, doctorName, date string, slotIndex int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.reservations, slotKey(clinicID, doctorName, date, slotIndex))
	return nil
}

func (f *fakeRepo) ReleaseBlockedSlots(_ context.Context, before time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	released := 0
	for key, id := range f.reservations {
		a, ok := f.appointments[id]
		if !ok || !a.CancelledByBreak || a.Status != schedule.StatusCompleted {
			continue
		}
		if a.CreatedAt.Before(before) {
			delete(f.reservations, key)
			released++
		}
	}
	return released, nil
}

func (f *fakeRepo) MarkSessionDirty(_ context.Context, key SessionKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirty[key] = true
	return nil
}

func (f *fakeRepo) ListDirtySessions(_ context.Context, limit int) ([]SessionKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []SessionKey
	for k := range f.dirty {
		if len(out) == limit {
			break
		}
		out = append(out, k)
	}
	return out, nil
}

func (f *fakeRepo) ClearSessionDirty(_ context.Context, key SessionKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.dirty, key)
	return nil
}

func (f *fakeRepo) InsertEvent(_ context.Context, ev EventLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeRepo) add(a schedule.Appointment) *schedule.Appointment {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	f.appointments[a.ID] = &a
	f.reservations[slotKey(a.ClinicID, a.DoctorName, a.Date, a.SlotIndex)] = a.ID
	return &a
}

// passLocker runs the critical section without any real locking; the fake
// repo's mutex provides the atomicity the store would.
type passLocker struct{}

func (passLocker) WithSlotLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
