package schedule

import (
	"sort"
	"time"
)

// ExtensionChoice is one of the two options offered whenever a break needs
// a session end decision.
type ExtensionChoice struct {
	ExtendByMinutes int       `json:"extend_by_minutes"`
	NewSessionEnd   time.Time `json:"new_session_end"`
}

// ExtensionOptions carries both choices. Minimal is just enough for every
// already-booked patient to finish by the new end; Full moves the end by the
// entire break total regardless of booking pressure. Neither is applied
// without an explicit caller decision.
type ExtensionOptions struct {
	TotalBreakMinutes int             `json:"total_break_minutes"`
	Minimal           ExtensionChoice `json:"minimal"`
	Full              ExtensionChoice `json:"full"`
}

// CalculateSessionExtension computes the extension options for a session
// carrying the given breaks. When appointments are supplied the minimal
// choice uses gap absorption: idle slots soak up displaced time, so only
// genuinely displaced bookings push the end out. Without appointment
// context the minimal choice falls back to the full break total.
func CalculateSessionExtension(sessionIndex int, breaks []BreakPeriod, sessionStart, sessionEnd time.Time, appointments []Appointment, slotDuration time.Duration) ExtensionOptions {
	total := TotalBreakMinutes(breaksForSession(breaks, sessionIndex))

	opts := ExtensionOptions{
		TotalBreakMinutes: total,
		Full: ExtensionChoice{
			ExtendByMinutes: total,
			NewSessionEnd:   sessionEnd.Add(time.Duration(total) * time.Minute),
		},
	}

	if appointments == nil {
		opts.Minimal = opts.Full
		return opts
	}

	need := requiredExtensionMinutes(breaksForSession(breaks, sessionIndex), sessionStart, sessionEnd, appointments, slotDuration)
	opts.Minimal = ExtensionChoice{
		ExtendByMinutes: need,
		NewSessionEnd:   sessionEnd.Add(time.Duration(need) * time.Minute),
	}
	return opts
}

// requiredExtensionMinutes replays the session with the breaks in place and
// returns how far past sessionEnd the last booked appointment would finish.
// Appointments keep their relative order; each one starts no earlier than
// its originally scheduled time and no earlier than the previous one
// finishes, and never starts inside a break.
func requiredExtensionMinutes(breaks []BreakPeriod, sessionStart, sessionEnd time.Time, appointments []Appointment, slotDuration time.Duration) int {
	booked := make([]Appointment, 0, len(appointments))
	for _, a := range appointments {
		if a.Active() {
			booked = append(booked, a)
		}
	}
	if len(booked) == 0 {
		return 0
	}

	sort.Slice(booked, func(i, j int) bool {
		return booked[i].Time.Before(booked[j].Time)
	})

	ordered := MergeAdjacentBreaks(breaks)

	nextFree := sessionStart
	lastFinish := sessionStart
	for _, a := range booked {
		startAt := a.Time
		if startAt.Before(nextFree) {
			startAt = nextFree
		}
		startAt = AdvancePastBreaks(startAt, ordered)
		lastFinish = startAt.Add(slotDuration)
		nextFree = lastFinish
	}

	if !lastFinish.After(sessionEnd) {
		return 0
	}
	return int(lastFinish.Sub(sessionEnd) / time.Minute)
}

// AdvancePastBreaks advances t past any break window containing it so an
// estimate never lands inside a break. Breaks must be in start order;
// adjacent windows are already merged so one pass per window suffices.
func AdvancePastBreaks(t time.Time, ordered []BreakPeriod) time.Time {
	for _, b := range ordered {
		if b.Covers(t) {
			t = b.EndTime
		}
	}
	return t
}
