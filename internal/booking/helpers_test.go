package booking

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/session-scheduling/internal/schedule"
)

const (
	testClinic = "clinic-1"
	testDoctor = "Dr. Asha Rao"
	testDate   = "2026-03-02" // a Monday
)

const testSlotDur = 15 * time.Minute

func at(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.Local)
}

// mondayDoctor works 09:00-13:00 and 14:00-17:00 on Mondays.
func mondayDoctor() *schedule.Doctor {
	return &schedule.Doctor{
		ClinicID: testClinic,
		Name:     testDoctor,
		Availability: []schedule.DayAvailability{
			{
				Weekday: time.Monday,
				Sessions: []schedule.SessionWindow{
					{Start: schedule.ClockTime(9 * 60), End: schedule.ClockTime(13 * 60)},
					{Start: schedule.ClockTime(14 * 60), End: schedule.ClockTime(17 * 60)},
				},
			},
		},
		AverageConsultingMinutes: 15,
		Breaks:                   map[string][]schedule.BreakPeriod{},
		Extensions:               map[string][]schedule.SessionExtension{},
	}
}

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func morningSessionKey() SessionKey {
	return SessionKey{ClinicID: testClinic, DoctorName: testDoctor, Date: testDate, SessionIndex: 0}
}

// bookSession books count advance appointments from the session start.
func bookSession(t *testing.T, repo *fakeRepo, sessionIndex, count int, start time.Time) []*schedule.Appointment {
	t.Helper()
	out := make([]*schedule.Appointment, count)
	for i := 0; i < count; i++ {
		slot := start.Add(time.Duration(i) * testSlotDur)
		a := schedule.Appointment{
			ClinicID:     testClinic,
			DoctorName:   testDoctor,
			Date:         testDate,
			Time:         slot,
			ArriveBy:     slot,
			SessionIndex: sessionIndex,
			SlotIndex:    i,
			Status:       schedule.StatusConfirmed,
			BookedVia:    schedule.ViaAdvanceBooking,
			CutOff:       slot.Add(testSlotDur),
			NoShow:       slot.Add(2 * testSlotDur),
			BaseArriveBy: slot,
			BaseCutOff:   slot.Add(testSlotDur),
			BaseNoShow:   slot.Add(2 * testSlotDur),
		}
		out[i] = repo.add(a)
	}
	return out
}

func sessionBreak(t *testing.T, sessionIndex int, slots ...time.Time) schedule.BreakPeriod {
	t.Helper()
	b, err := schedule.NewBreakPeriod(slots, sessionIndex, testSlotDur)
	require.NoError(t, err)
	return b
}
