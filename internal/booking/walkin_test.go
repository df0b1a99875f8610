package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/session-scheduling/internal/schedule"
)

func morningInfo(t *testing.T, doc *schedule.Doctor) schedule.SessionInfo {
	t.Helper()
	info, err := schedule.Resolver{}.ResolveSession(doc, at(0, 0), 0)
	require.NoError(t, err)
	return info
}

// One walk-in after every three advance tokens: with seven advance tokens
// pending, walk-ins slot in after tokens 3 and 6 without renumbering them.
func TestWalkInInsertionPoints(t *testing.T) {
	assert.Equal(t, 3, WalkInInsertionPoint(7, 1, 3))
	assert.Equal(t, 6, WalkInInsertionPoint(7, 2, 3))
	// Past the end of the advance list the walk-in queues at the back.
	assert.Equal(t, 7, WalkInInsertionPoint(7, 3, 3))
	// Disabled allotment appends.
	assert.Equal(t, 5, WalkInInsertionPoint(5, 1, 0))
}

func TestPlanWalkIn(t *testing.T) {
	doc := mondayDoctor()
	repo := newFakeRepo(doc, ClinicSettings{WalkInTokenAllotment: 3})
	bookSession(t, repo, 0, 7, at(9, 0))
	appts, err := repo.ListSessionAppointments(nil, testClinic, testDoctor, testDate, 0)
	require.NoError(t, err)

	est, err := PlanWalkIn(doc, morningInfo(t, doc), appts, at(9, 0), ClinicSettings{WalkInTokenAllotment: 3})
	require.NoError(t, err)

	assert.Equal(t, 7, est.PatientsAhead)
	assert.Equal(t, at(10, 45), est.EstimatedTime)
	assert.Equal(t, "W1", est.TokenNumber)
	assert.Equal(t, 3, est.AfterToken)
	assert.Equal(t, 7, est.SlotIndex)
}

func TestPlanWalkInSkipsBreaks(t *testing.T) {
	doc := mondayDoctor()
	brk := sessionBreak(t, 0, at(9, 30), at(9, 45))
	doc.Breaks[testDate] = []schedule.BreakPeriod{brk}

	repo := newFakeRepo(doc, ClinicSettings{})
	bookSession(t, repo, 0, 2, at(9, 0))
	appts, err := repo.ListSessionAppointments(nil, testClinic, testDoctor, testDate, 0)
	require.NoError(t, err)

	est, err := PlanWalkIn(doc, morningInfo(t, doc), appts, at(9, 0), ClinicSettings{})
	require.NoError(t, err)

	// Two ahead lands the raw estimate at 09:30, inside the break; it is
	// pushed to the break's end and the slot after the break is offered.
	assert.Equal(t, at(10, 0), est.EstimatedTime)
	assert.Equal(t, 4, est.SlotIndex)
}

func TestPlanWalkInCapacityThreshold(t *testing.T) {
	doc := mondayDoctor()
	repo := newFakeRepo(doc, ClinicSettings{})
	bookSession(t, repo, 0, 13, at(9, 0)) // 13 of 16 slots
	appts, err := repo.ListSessionAppointments(nil, testClinic, testDoctor, testDate, 0)
	require.NoError(t, err)

	set := ClinicSettings{WalkInCapacityThreshold: 0.8}
	_, err = PlanWalkIn(doc, morningInfo(t, doc), appts, at(9, 0), set)

	var capErr *CapacityExceededError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 0, capErr.SessionIndex)
	assert.Equal(t, 13, capErr.Booked)
}

func TestPlanWalkInFullSession(t *testing.T) {
	doc := mondayDoctor()
	repo := newFakeRepo(doc, ClinicSettings{})
	bookSession(t, repo, 0, 16, at(9, 0))
	appts, err := repo.ListSessionAppointments(nil, testClinic, testDoctor, testDate, 0)
	require.NoError(t, err)

	_, err = PlanWalkIn(doc, morningInfo(t, doc), appts, at(9, 0), ClinicSettings{})

	var capErr *CapacityExceededError
	assert.ErrorAs(t, err, &capErr)
}

func TestPlanWalkInNumbersTokensSequentially(t *testing.T) {
	doc := mondayDoctor()
	repo := newFakeRepo(doc, ClinicSettings{})
	bookSession(t, repo, 0, 4, at(9, 0))

	w := schedule.Appointment{
		ClinicID: testClinic, DoctorName: testDoctor, Date: testDate,
		Time: at(10, 0), ArriveBy: at(10, 0), SessionIndex: 0, SlotIndex: 4,
		Status: schedule.StatusPending, BookedVia: schedule.ViaWalkIn, TokenNumber: "W1",
	}
	repo.add(w)

	appts, err := repo.ListSessionAppointments(nil, testClinic, testDoctor, testDate, 0)
	require.NoError(t, err)

	est, err := PlanWalkIn(doc, morningInfo(t, doc), appts, at(9, 0), ClinicSettings{WalkInTokenAllotment: 2})
	require.NoError(t, err)
	assert.Equal(t, "W2", est.TokenNumber)
	assert.Equal(t, 4, est.AfterToken)
}
