package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// MaxBreaksPerSession caps active breaks per (date, session). Attempts past
// the cap are rejected, never silently truncated.
const MaxBreaksPerSession = 3

// NewBreakPeriod builds a break from a non-empty, strictly increasing,
// contiguous sequence of slot instants aligned to slotDuration.
func NewBreakPeriod(slotInstants []time.Time, sessionIndex int, slotDuration time.Duration) (BreakPeriod, error) {
	if len(slotInstants) == 0 {
		return BreakPeriod{}, &ValidationError{SessionIndex: sessionIndex, Reason: "break must cover at least one slot"}
	}
	for i := 1; i < len(slotInstants); i++ {
		if slotInstants[i].Sub(slotInstants[i-1]) != slotDuration {
			return BreakPeriod{}, &ValidationError{
				SessionIndex: sessionIndex,
				Reason:       "break slots must be contiguous and aligned to the slot duration",
			}
		}
	}

	slots := make([]time.Time, len(slotInstants))
	copy(slots, slotInstants)

	end := slots[len(slots)-1].Add(slotDuration)
	return BreakPeriod{
		ID:              uuid.New(),
		StartTime:       slots[0],
		EndTime:         end,
		DurationMinutes: int(end.Sub(slots[0]) / time.Minute),
		SessionIndex:    sessionIndex,
		Slots:           slots,
		Kind:            BreakAdHoc,
	}, nil
}

// ValidateBreakSlots checks a candidate break against the session bounds,
// existing breaks, and the per-session cap. Adjacency to an existing break
// does not count against the cap since the two merge on commit.
func ValidateBreakSlots(candidate []time.Time, existing []BreakPeriod, sessionIndex int, sessionStart, sessionEnd time.Time, slotDuration time.Duration) error {
	if len(candidate) == 0 {
		return &ValidationError{SessionIndex: sessionIndex, Reason: "break must cover at least one slot"}
	}

	for _, s := range candidate {
		if s.Before(sessionStart) || !s.Before(sessionEnd) {
			return &ValidationError{
				SessionIndex: sessionIndex,
				Reason: fmt.Sprintf("break slot %s falls outside the session %s-%s",
					s.Format("15:04"), sessionStart.Format("15:04"), sessionEnd.Format("15:04")),
			}
		}
	}

	// Contiguity is checked when the break is built, so grid alignment of
	// the first candidate implies alignment of all of them.
	if candidate[0].Sub(sessionStart)%slotDuration != 0 {
		return &ValidationError{
			SessionIndex: sessionIndex,
			Reason: fmt.Sprintf("break slot %s is not aligned to the session's %d-minute slot grid",
				candidate[0].Format("15:04"), int(slotDuration/time.Minute)),
		}
	}

	sessionBreaks := breaksForSession(existing, sessionIndex)
	for _, b := range sessionBreaks {
		for _, s := range candidate {
			if b.Covers(s) {
				return &ValidationError{
					SessionIndex: sessionIndex,
					Reason: fmt.Sprintf("break overlaps the existing break %s-%s",
						b.StartTime.Format("15:04"), b.EndTime.Format("15:04")),
				}
			}
		}
	}

	trial, err := NewBreakPeriod(candidate, sessionIndex, slotDuration)
	if err != nil {
		return err
	}
	merged := MergeAdjacentBreaks(append(sessionBreaks, trial))
	if len(merged) > MaxBreaksPerSession {
		return &ValidationError{
			SessionIndex: sessionIndex,
			Reason:       fmt.Sprintf("at most %d breaks are allowed per session", MaxBreaksPerSession),
		}
	}

	return nil
}

// MergeAdjacentBreaks sorts breaks by start time and coalesces zero-gap
// neighbours (one break's end equals the next one's start) into a single
// period whose slots are the union of the pair. Idempotent.
func MergeAdjacentBreaks(breaks []BreakPeriod) []BreakPeriod {
	if len(breaks) <= 1 {
		return breaks
	}

	sorted := make([]BreakPeriod, len(breaks))
	copy(sorted, breaks)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartTime.Before(sorted[j].StartTime)
	})

	merged := []BreakPeriod{sorted[0]}
	for _, next := range sorted[1:] {
		cur := &merged[len(merged)-1]
		if cur.EndTime.Equal(next.StartTime) {
			cur.Slots = append(cur.Slots, next.Slots...)
			cur.EndTime = next.EndTime
			cur.DurationMinutes = int(cur.EndTime.Sub(cur.StartTime) / time.Minute)
			continue
		}
		merged = append(merged, next)
	}
	return merged
}

// ValidateBreakOverlapWithNextSession rejects a proposed session end that
// would run into the start of the day's next session.
func ValidateBreakOverlapWithNextSession(doc *Doctor, date time.Time, sessionIndex int, proposedSessionEnd time.Time) error {
	sessions := doc.SessionsOn(date)
	if sessionIndex+1 >= len(sessions) {
		return nil
	}

	nextStart := sessions[sessionIndex+1].Start.On(date)
	if proposedSessionEnd.After(nextStart) {
		return &OverlapWithNextSessionError{
			SessionIndex:     sessionIndex,
			ProposedEnd:      proposedSessionEnd,
			NextSessionStart: nextStart,
		}
	}
	return nil
}

func breaksForSession(breaks []BreakPeriod, sessionIndex int) []BreakPeriod {
	var out []BreakPeriod
	for _, b := range breaks {
		if b.SessionIndex == sessionIndex {
			out = append(out, b)
		}
	}
	return out
}

// TotalBreakMinutes sums the durations of the given breaks.
func TotalBreakMinutes(breaks []BreakPeriod) int {
	total := 0
	for _, b := range breaks {
		total += b.DurationMinutes
	}
	return total
}
