package schedule

import "time"

// ExpandSlots expands a session window into its ordered slot instants,
// stepping by slotDuration from sessionStart up to the last slot whose start
// is strictly before sessionEnd. The boundary slot is always included even
// when slotDuration does not divide the window evenly.
func ExpandSlots(sessionStart, sessionEnd time.Time, slotDuration time.Duration) ([]time.Time, error) {
	if !sessionEnd.After(sessionStart) {
		return nil, ErrInvalidRange
	}
	if slotDuration <= 0 {
		return nil, ErrInvalidRange
	}

	var slots []time.Time
	for t := sessionStart; t.Before(sessionEnd); t = t.Add(slotDuration) {
		slots = append(slots, t)
	}
	return slots, nil
}

// SlotCount returns the number of slots ExpandSlots would produce.
func SlotCount(sessionStart, sessionEnd time.Time, slotDuration time.Duration) int {
	if !sessionEnd.After(sessionStart) || slotDuration <= 0 {
		return 0
	}
	window := sessionEnd.Sub(sessionStart)
	n := int(window / slotDuration)
	if window%slotDuration != 0 {
		n++
	}
	return n
}

// SlotIndexAt returns the zero-based index of the slot containing t, or -1
// if t is before the session start.
func SlotIndexAt(sessionStart time.Time, slotDuration time.Duration, t time.Time) int {
	if t.Before(sessionStart) {
		return -1
	}
	return int(t.Sub(sessionStart) / slotDuration)
}
