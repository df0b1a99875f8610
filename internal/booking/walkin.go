package booking

import (
	"fmt"
	"time"

	"github.com/clinicore/session-scheduling/internal/schedule"
)

// WalkInEstimate is the answer given to an unscheduled patient arriving now.
type WalkInEstimate struct {
	SessionIndex  int       `json:"session_index"`
	PatientsAhead int       `json:"patients_ahead"`
	EstimatedTime time.Time `json:"estimated_time"`
	TokenNumber   string    `json:"token_number"`
	AfterToken    int       `json:"after_token"`
	SlotIndex     int       `json:"slot_index"`
}

// PlanWalkIn computes queue position, estimated consultation time and slot
// placement for a walk-in arriving at now, against the given session state.
// Pure: callers load the doctor, session and appointments first.
func PlanWalkIn(doc *schedule.Doctor, info schedule.SessionInfo, appts []schedule.Appointment, now time.Time, set ClinicSettings) (*WalkInEstimate, error) {
	slotDur := doc.SlotDuration()

	capacity := sessionCapacity(info, slotDur)
	booked := 0
	for i := range appts {
		if appts[i].Active() {
			booked++
		}
	}
	if set.WalkInCapacityThreshold > 0 && capacity > 0 {
		if float64(booked)/float64(capacity) >= set.WalkInCapacityThreshold {
			return nil, &CapacityExceededError{SessionIndex: info.SessionIndex, Booked: booked, Capacity: capacity}
		}
	}

	ahead := 0
	advance, walkIns := 0, 0
	for i := range appts {
		a := &appts[i]
		if !a.Active() {
			continue
		}
		if a.BookedVia == schedule.ViaWalkIn {
			walkIns++
		} else {
			advance++
		}
		if a.Queued() {
			ahead++
		}
	}

	base := now
	if base.Before(info.Start) {
		base = info.Start
	}
	est := base.Add(time.Duration(ahead) * slotDur)
	est = schedule.AdvancePastBreaks(est, schedule.MergeAdjacentBreaks(info.Breaks))

	slotIndex, err := nextFreeSlot(info, appts, slotDur, est)
	if err != nil {
		return nil, err
	}

	return &WalkInEstimate{
		SessionIndex:  info.SessionIndex,
		PatientsAhead: ahead,
		EstimatedTime: est,
		TokenNumber:   fmt.Sprintf("W%d", walkIns+1),
		AfterToken:    WalkInInsertionPoint(advance, walkIns+1, set.WalkInTokenAllotment),
		SlotIndex:     slotIndex,
	}, nil
}

// WalkInInsertionPoint returns the advance token number the n-th walk-in
// (1-based) slots in after: one walk-in after every allotment advance
// tokens, never reordering the advance tokens themselves. A walk-in past
// the end of the advance list simply queues after the last advance token.
func WalkInInsertionPoint(advanceCount, walkInIndex, allotment int) int {
	if allotment <= 0 {
		return advanceCount
	}
	after := allotment * walkInIndex
	if after > advanceCount {
		after = advanceCount
	}
	return after
}

// sessionCapacity is the session's slot count net of break coverage.
func sessionCapacity(info schedule.SessionInfo, slotDur time.Duration) int {
	total := schedule.SlotCount(info.Start, info.EffectiveEnd, slotDur)
	blocked := info.TotalBreakMinutes / int(slotDur/time.Minute)
	if blocked > total {
		blocked = total
	}
	return total - blocked
}

// nextFreeSlot finds the first slot at or after target that is neither
// reserved by an active appointment nor covered by a break.
func nextFreeSlot(info schedule.SessionInfo, appts []schedule.Appointment, slotDur time.Duration, target time.Time) (int, error) {
	slots, err := schedule.ExpandSlots(info.Start, info.EffectiveEnd, slotDur)
	if err != nil {
		return 0, err
	}

	taken := make(map[int]bool, len(appts))
	for i := range appts {
		if appts[i].Active() {
			taken[appts[i].SlotIndex] = true
		}
	}

	// The slot containing target is the first one not already over.
	first := schedule.SlotIndexAt(info.Start, slotDur, target)
	if first < 0 {
		first = 0
	}

	merged := schedule.MergeAdjacentBreaks(info.Breaks)
	for idx := first; idx < len(slots); idx++ {
		if taken[idx] || coveredByAny(slots[idx], merged) {
			continue
		}
		return idx, nil
	}

	booked := len(taken)
	return 0, &CapacityExceededError{SessionIndex: info.SessionIndex, Booked: booked, Capacity: len(slots)}
}

func coveredByAny(t time.Time, breaks []schedule.BreakPeriod) bool {
	for _, b := range breaks {
		if b.Covers(t) {
			return true
		}
	}
	return false
}
