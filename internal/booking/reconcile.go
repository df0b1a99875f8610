package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/clinicore/session-scheduling/internal/schedule"
)

// Reconciler is the corrective entry point for sessions whose best-effort
// shifts failed part way: it recomputes every appointment's arrive-by,
// cutoff and no-show from the baselines and the committed break set from
// scratch, rather than trusting the incremental shift history.
type Reconciler struct {
	repo Repository
	log  *logrus.Entry
}

func NewReconciler(repo Repository, log *logrus.Entry) *Reconciler {
	return &Reconciler{repo: repo, log: log}
}

// RebuildSessionTimes derives the correct shifted times for every active
// appointment in the session by replaying the committed breaks in start
// order against the progressively shifted time. The running value matters:
// an earlier break can push an appointment to or past a later break's
// start, and that later break must then shift it again, exactly as the
// incremental shifts would have.
func (r *Reconciler) RebuildSessionTimes(ctx context.Context, key SessionKey) error {
	doc, err := r.repo.GetDoctor(ctx, key.ClinicID, key.DoctorName, key.Date)
	if err != nil {
		return fmt.Errorf("load doctor: %w", err)
	}

	date, err := time.ParseInLocation(schedule.DateLayout, key.Date, time.Local)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", key.Date, err)
	}

	breaks := schedule.MergeAdjacentBreaks(schedule.Resolver{}.SessionBreaks(doc, date, key.SessionIndex))

	appts, err := r.repo.ListSessionAppointments(ctx, key.ClinicID, key.DoctorName, key.Date, key.SessionIndex)
	if err != nil {
		return fmt.Errorf("load session appointments: %w", err)
	}

	for i := range appts {
		a := &appts[i]
		if !a.Active() || a.CancelledByBreak {
			continue
		}

		arrive := a.BaseArriveBy
		applied := make([]uuid.UUID, 0, len(breaks))
		for _, b := range breaks {
			if arrive.Before(b.StartTime) {
				continue
			}
			arrive = arrive.Add(b.Duration())
			applied = append(applied, b.ID)
		}

		if arrive.Equal(a.ArriveBy) && len(applied) == len(a.AppliedBreakIDs) {
			continue
		}

		a.AppliedBreakIDs = applied
		applyShift(a, uuid.Nil, arrive)
		if err := r.repo.UpdateAppointmentTimes(ctx, a); err != nil {
			return fmt.Errorf("rebuild appointment %s: %w", a.ID, err)
		}
	}

	ev := EventLog{
		EventType: EventSessionReconciled,
		Payload: []byte(fmt.Sprintf(`{"doctor":%q,"date":%q,"session_index":%d}`,
			key.DoctorName, key.Date, key.SessionIndex)),
		CreatedAt: time.Now(),
	}
	if err := r.repo.InsertEvent(ctx, ev); err != nil {
		r.log.WithError(err).Warn("could not record reconcile event")
	}

	return nil
}

// RunOnce drains the dirty-session queue, rebuilding each flagged session.
func (r *Reconciler) RunOnce(ctx context.Context, limit int) error {
	keys, err := r.repo.ListDirtySessions(ctx, limit)
	if err != nil {
		return fmt.Errorf("list dirty sessions: %w", err)
	}

	for _, key := range keys {
		if err := r.RebuildSessionTimes(ctx, key); err != nil {
			r.log.WithError(err).WithFields(logrus.Fields{
				"doctor":        key.DoctorName,
				"date":          key.Date,
				"session_index": key.SessionIndex,
			}).Error("session rebuild failed, leaving queued")
			continue
		}
		if err := r.repo.ClearSessionDirty(ctx, key); err != nil {
			r.log.WithError(err).Warn("could not clear reconciled session")
		}
	}

	return nil
}

// ReleaseBlocked frees slot claims still held by break-displaced
// appointments once they are older than the retention window. A zero or
// negative window means slots stay blocked until a staff member reopens
// them.
func (r *Reconciler) ReleaseBlocked(ctx context.Context, retention time.Duration) error {
	if retention <= 0 {
		return nil
	}

	n, err := r.repo.ReleaseBlockedSlots(ctx, time.Now().Add(-retention))
	if err != nil {
		return fmt.Errorf("release blocked slots: %w", err)
	}
	if n > 0 {
		r.log.WithField("released", n).Info("released blocked slots")
	}
	return nil
}
