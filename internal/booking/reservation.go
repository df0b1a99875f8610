package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	redisclient "github.com/clinicore/session-scheduling/internal/redis"
	"github.com/clinicore/session-scheduling/internal/schedule"
)

// Gateway is the transactional boundary for slot occupancy. The reservation
// claim keyed by (clinic, doctor, date, slotIndex) is the sole source of
// truth for "is this physical slot occupied"; it is created atomically with
// the appointment record. A Redis lock narrows the race window, the store's
// uniqueness check is the backstop.
type Gateway struct {
	repo   Repository
	locker redisclient.Locker
	log    *logrus.Entry
}

func NewGateway(repo Repository, locker redisclient.Locker, log *logrus.Entry) *Gateway {
	return &Gateway{repo: repo, locker: locker, log: log}
}

// Reserve claims the draft's slot and creates the appointment in one store
// transaction. Exactly one of two concurrent calls for the same slot
// succeeds; the other receives *SlotTakenError. A lock conflict or store
// transaction timeout is reported as the same retryable error.
func (g *Gateway) Reserve(ctx context.Context, draft *schedule.Appointment) (*schedule.Appointment, error) {
	key := redisclient.SlotKey(draft.ClinicID, draft.DoctorName, draft.Date, draft.SlotIndex)

	var created *schedule.Appointment
	err := g.locker.WithSlotLock(ctx, key, func(lockCtx context.Context) error {
		appt, err := g.repo.ReserveSlot(lockCtx, draft)
		if err != nil {
			return err
		}
		created = appt
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &SlotTakenError{
				DoctorName: draft.DoctorName,
				Date:       draft.Date,
				SlotIndex:  draft.SlotIndex,
			}
		}
		var taken *SlotTakenError
		if errors.As(err, &taken) {
			return nil, taken
		}
		return nil, fmt.Errorf("reserve slot %d: %w", draft.SlotIndex, err)
	}

	g.log.WithFields(logrus.Fields{
		"doctor":     created.DoctorName,
		"date":       created.Date,
		"slot_index": created.SlotIndex,
		"token":      created.TokenNumber,
	}).Info("slot reserved")

	return created, nil
}

// Release frees the slot's claim. Releasing an absent claim is a no-op.
func (g *Gateway) Release(ctx context.Context, clinicID, doctorName, date string, slotIndex int) error {
	if err := g.repo.ReleaseSlot(ctx, clinicID, doctorName, date, slotIndex); err != nil {
		return fmt.Errorf("release slot %d: %w", slotIndex, err)
	}
	return nil
}
