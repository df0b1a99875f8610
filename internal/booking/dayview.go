package booking

import (
	"time"

	"github.com/clinicore/session-scheduling/internal/schedule"
)

// BuildDaySchedule expands every session of the doctor's day into SlotInfo
// values. Pure function of the loaded state.
func BuildDaySchedule(doc *schedule.Doctor, date time.Time, appts []schedule.Appointment) ([]schedule.SlotInfo, error) {
	sessions := doc.SessionsOn(date)
	if len(sessions) == 0 {
		return nil, schedule.ErrNoSessions
	}
	slotDur := doc.SlotDuration()

	takenBySession := make(map[int]map[int]bool)
	for i := range appts {
		a := &appts[i]
		if !a.Active() {
			continue
		}
		if takenBySession[a.SessionIndex] == nil {
			takenBySession[a.SessionIndex] = make(map[int]bool)
		}
		takenBySession[a.SessionIndex][a.SlotIndex] = true
	}

	var out []schedule.SlotInfo
	for idx := range sessions {
		info, err := (schedule.Resolver{}).ResolveSession(doc, date, idx)
		if err != nil {
			return nil, err
		}

		slots, err := schedule.ExpandSlots(info.Start, info.EffectiveEnd, slotDur)
		if err != nil {
			return nil, err
		}

		merged := schedule.MergeAdjacentBreaks(info.Breaks)
		for i, slot := range slots {
			out = append(out, schedule.SlotInfo{
				Instant:       slot,
				SessionIndex:  idx,
				TimeFormatted: slot.Format("15:04"),
				IsTaken:       takenBySession[idx][i] || coveredByAny(slot, merged),
			})
		}
	}
	return out, nil
}
