package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/clinicore/session-scheduling/internal/schedule"
)

// BreakProposal is the outcome of the validation phase, handed back to the
// operator for an extension decision. Nothing is persisted until Commit.
type BreakProposal struct {
	Key        SessionKey                `json:"key"`
	Break      schedule.BreakPeriod      `json:"break"`
	HasOverrun bool                      `json:"has_overrun"`
	Options    schedule.ExtensionOptions `json:"options"`
}

// BreakWorkflow orchestrates break insertion and removal: validate
// placement, merge with neighbours, recompute the extension, persist break
// and extension atomically, then shift dependent appointments best-effort.
type BreakWorkflow struct {
	repo    Repository
	shifter *Shifter
	log     *logrus.Entry
}

func NewBreakWorkflow(repo Repository, shifter *Shifter, log *logrus.Entry) *BreakWorkflow {
	return &BreakWorkflow{repo: repo, shifter: shifter, log: log}
}

// Prepare validates the selected slots and computes the extension options.
// HasOverrun tells the operator whether the last booked patient would run
// past the session's effective end; either way the minimal/full choice is
// theirs, never applied silently.
func (w *BreakWorkflow) Prepare(ctx context.Context, key SessionKey, slots []time.Time) (*BreakProposal, error) {
	doc, info, appts, err := w.loadSession(ctx, key)
	if err != nil {
		return nil, err
	}
	slotDur := doc.SlotDuration()

	if err := schedule.ValidateBreakSlots(slots, info.Breaks, key.SessionIndex, info.Start, info.EffectiveEnd, slotDur); err != nil {
		return nil, err
	}

	brk, err := schedule.NewBreakPeriod(slots, key.SessionIndex, slotDur)
	if err != nil {
		return nil, err
	}

	allBreaks := append(append([]schedule.BreakPeriod{}, info.Breaks...), brk)
	opts := schedule.CalculateSessionExtension(key.SessionIndex, allBreaks, info.Start, info.OriginalEnd, appts, slotDur)

	return &BreakProposal{
		Key:        key,
		Break:      brk,
		HasOverrun: hasOverrun(info, appts, brk, slotDur),
		Options:    opts,
	}, nil
}

// Commit persists the proposal with the operator's chosen extension (zero,
// minimal or full, in minutes). Break set and extension entry commit in one
// transaction; the appointment shift that follows is best-effort. A
// *ShiftApplicationError reports a saved break whose dependent times need
// review, never a rollback.
func (w *BreakWorkflow) Commit(ctx context.Context, p *BreakProposal, extendByMinutes int) error {
	key := p.Key

	doc, info, appts, err := w.loadSession(ctx, key)
	if err != nil {
		return err
	}
	slotDur := doc.SlotDuration()

	// Re-validate: requests are stateless and the session may have changed
	// since Prepare.
	if err := schedule.ValidateBreakSlots(p.Break.Slots, info.Breaks, key.SessionIndex, info.Start, info.EffectiveEnd, slotDur); err != nil {
		return err
	}

	newEnd := info.OriginalEnd.Add(time.Duration(extendByMinutes) * time.Minute)
	if extendByMinutes > 0 {
		date, err := time.ParseInLocation(schedule.DateLayout, key.Date, time.Local)
		if err != nil {
			return fmt.Errorf("parse date %q: %w", key.Date, err)
		}
		if err := schedule.ValidateBreakOverlapWithNextSession(doc, date, key.SessionIndex, newEnd); err != nil {
			return err
		}
	}

	merged := schedule.MergeAdjacentBreaks(append(append([]schedule.BreakPeriod{}, info.Breaks...), p.Break))
	ext := schedule.SessionExtension{
		SessionIndex:         key.SessionIndex,
		Breaks:               merged,
		TotalExtendedMinutes: extendByMinutes,
		OriginalEnd:          info.OriginalEnd,
		NewEnd:               newEnd,
	}

	if err := w.repo.ReplaceSessionBreaks(ctx, key, merged, ext); err != nil {
		return fmt.Errorf("commit break set: %w", err)
	}
	w.logBreakEvent(ctx, EventBreakInserted, key, p.Break, extendByMinutes)

	if err := w.displaceCoveredAppointments(ctx, appts, p.Break); err != nil {
		w.log.WithError(err).Warn("could not mark displaced appointments")
	}

	return w.shifter.ShiftForNewBreak(ctx, key, p.Break)
}

// RemoveBreak deletes one break (a merged period is removed whole) and
// reverses its shift. retractExtension recalculates what part of the
// recorded extension still-booked patients genuinely need and keeps only
// that remainder; openSlots reopens slots the break had displaced.
func (w *BreakWorkflow) RemoveBreak(ctx context.Context, key SessionKey, breakID uuid.UUID, openSlots, retractExtension bool) error {
	doc, info, appts, err := w.loadSession(ctx, key)
	if err != nil {
		return err
	}
	slotDur := doc.SlotDuration()

	var removed *schedule.BreakPeriod
	remaining := make([]schedule.BreakPeriod, 0, len(info.Breaks))
	for _, b := range info.Breaks {
		if b.ID == breakID {
			bb := b
			removed = &bb
			continue
		}
		remaining = append(remaining, b)
	}
	if removed == nil {
		return ErrBreakNotFound
	}

	extendBy := currentExtensionMinutes(doc, key)
	if retractExtension {
		opts := schedule.CalculateSessionExtension(key.SessionIndex, remaining, info.Start, info.OriginalEnd, appts, slotDur)
		if opts.Minimal.ExtendByMinutes < extendBy {
			extendBy = opts.Minimal.ExtendByMinutes
		}
	}

	ext := schedule.SessionExtension{
		SessionIndex:         key.SessionIndex,
		Breaks:               remaining,
		TotalExtendedMinutes: extendBy,
		OriginalEnd:          info.OriginalEnd,
		NewEnd:               info.OriginalEnd.Add(time.Duration(extendBy) * time.Minute),
	}

	if err := w.repo.ReplaceSessionBreaks(ctx, key, remaining, ext); err != nil {
		return fmt.Errorf("commit break removal: %w", err)
	}
	w.logBreakEvent(ctx, EventBreakRemoved, key, *removed, extendBy)

	return w.shifter.UnshiftForRemovedBreak(ctx, key, *removed, openSlots)
}

func (w *BreakWorkflow) loadSession(ctx context.Context, key SessionKey) (*schedule.Doctor, schedule.SessionInfo, []schedule.Appointment, error) {
	doc, err := w.repo.GetDoctor(ctx, key.ClinicID, key.DoctorName, key.Date)
	if err != nil {
		return nil, schedule.SessionInfo{}, nil, fmt.Errorf("load doctor: %w", err)
	}

	date, err := time.ParseInLocation(schedule.DateLayout, key.Date, time.Local)
	if err != nil {
		return nil, schedule.SessionInfo{}, nil, fmt.Errorf("parse date %q: %w", key.Date, err)
	}

	info, err := schedule.Resolver{}.ResolveSession(doc, date, key.SessionIndex)
	if err != nil {
		return nil, schedule.SessionInfo{}, nil, err
	}

	appts, err := w.repo.ListSessionAppointments(ctx, key.ClinicID, key.DoctorName, key.Date, key.SessionIndex)
	if err != nil {
		return nil, schedule.SessionInfo{}, nil, fmt.Errorf("load session appointments: %w", err)
	}

	return doc, info, appts, nil
}

// hasOverrun checks whether appending the break pushes the session's last
// booked appointment past the effective end. arriveBy is used rather than
// the raw scheduled time since prior breaks may already have shifted it.
func hasOverrun(info schedule.SessionInfo, appts []schedule.Appointment, brk schedule.BreakPeriod, slotDur time.Duration) bool {
	var last time.Time
	for i := range appts {
		a := &appts[i]
		if a.Active() && a.ArriveBy.After(last) {
			last = a.ArriveBy
		}
	}
	if last.IsZero() {
		return false
	}
	return last.Add(slotDur).Add(brk.Duration()).After(info.EffectiveEnd)
}

// displaceCoveredAppointments marks bookings whose slot falls inside the new
// break: the patient is displaced, the slot stays blocked while the break
// stands.
func (w *BreakWorkflow) displaceCoveredAppointments(ctx context.Context, appts []schedule.Appointment, brk schedule.BreakPeriod) error {
	var firstErr error
	for i := range appts {
		a := &appts[i]
		if !a.Queued() || !brk.Covers(a.Time) {
			continue
		}
		a.Status = schedule.StatusCompleted
		a.CancelledByBreak = true
		if err := w.repo.UpdateAppointmentTimes(ctx, a); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func currentExtensionMinutes(doc *schedule.Doctor, key SessionKey) int {
	for _, ext := range doc.Extensions[key.Date] {
		if ext.SessionIndex == key.SessionIndex {
			return ext.TotalExtendedMinutes
		}
	}
	return 0
}

func (w *BreakWorkflow) logBreakEvent(ctx context.Context, eventType string, key SessionKey, brk schedule.BreakPeriod, extendBy int) {
	payload := []byte(fmt.Sprintf(`{"break_id":%q,"session_index":%d,"start":%q,"end":%q,"extended_by_minutes":%d}`,
		brk.ID, key.SessionIndex, brk.StartTime.Format(time.RFC3339), brk.EndTime.Format(time.RFC3339), extendBy))

	ev := EventLog{EventType: eventType, Payload: payload, CreatedAt: time.Now()}
	if err := w.repo.InsertEvent(ctx, ev); err != nil {
		w.log.WithError(err).WithFields(logrus.Fields{
			"doctor": key.DoctorName,
			"date":   key.Date,
		}).Warn("could not record break event")
	}
}
