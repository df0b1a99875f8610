package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/session-scheduling/internal/schedule"
)

func TestBuildDaySchedule(t *testing.T) {
	doc := mondayDoctor()
	brk := sessionBreak(t, 0, at(10, 0))
	doc.Breaks[testDate] = []schedule.BreakPeriod{brk}

	repo := newFakeRepo(doc, ClinicSettings{})
	bookSession(t, repo, 0, 2, at(9, 0))
	appts, err := repo.ListDayAppointments(nil, testClinic, testDoctor, testDate)
	require.NoError(t, err)

	slots, err := BuildDaySchedule(doc, at(0, 0), appts)
	require.NoError(t, err)

	// 16 morning slots plus 12 afternoon slots.
	require.Len(t, slots, 28)

	bySession := map[int]int{}
	for _, s := range slots {
		bySession[s.SessionIndex]++
	}
	assert.Equal(t, 16, bySession[0])
	assert.Equal(t, 12, bySession[1])

	assert.True(t, slots[0].IsTaken)  // booked 09:00
	assert.True(t, slots[1].IsTaken)  // booked 09:15
	assert.False(t, slots[2].IsTaken) // free 09:30
	assert.True(t, slots[4].IsTaken)  // 10:00 covered by the break
	assert.Equal(t, "10:00", slots[4].TimeFormatted)
}

func TestBuildDayScheduleNoSessions(t *testing.T) {
	doc := mondayDoctor()
	sunday := at(0, 0).AddDate(0, 0, -1)

	_, err := BuildDaySchedule(doc, sunday, nil)
	assert.ErrorIs(t, err, schedule.ErrNoSessions)
}
