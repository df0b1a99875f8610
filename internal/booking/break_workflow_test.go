package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/session-scheduling/internal/schedule"
)

func newWorkflow(repo *fakeRepo) *BreakWorkflow {
	return NewBreakWorkflow(repo, NewShifter(repo, testLog()), testLog())
}

func TestPrepareRejectsInvalidPlacement(t *testing.T) {
	doc := mondayDoctor()
	doc.Breaks[testDate] = []schedule.BreakPeriod{sessionBreak(t, 0, at(10, 0))}
	repo := newFakeRepo(doc, ClinicSettings{})
	wf := newWorkflow(repo)
	ctx := context.Background()

	var verr *schedule.ValidationError

	// Overlap with an existing break.
	_, err := wf.Prepare(ctx, morningSessionKey(), []time.Time{at(10, 0)})
	require.ErrorAs(t, err, &verr)

	// Outside the session.
	_, err = wf.Prepare(ctx, morningSessionKey(), []time.Time{at(13, 15)})
	require.ErrorAs(t, err, &verr)
}

func TestPrepareEnforcesBreakCap(t *testing.T) {
	doc := mondayDoctor()
	doc.Breaks[testDate] = []schedule.BreakPeriod{
		sessionBreak(t, 0, at(9, 30)),
		sessionBreak(t, 0, at(10, 30)),
		sessionBreak(t, 0, at(11, 30)),
	}
	repo := newFakeRepo(doc, ClinicSettings{})
	wf := newWorkflow(repo)

	_, err := wf.Prepare(context.Background(), morningSessionKey(), []time.Time{at(12, 15)})

	var verr *schedule.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "at most 3 breaks")
}

func TestPrepareReportsOverrunAndOptions(t *testing.T) {
	doc := mondayDoctor()
	repo := newFakeRepo(doc, ClinicSettings{})
	bookSession(t, repo, 0, 16, at(9, 0)) // fully booked through 12:45
	wf := newWorkflow(repo)

	p, err := wf.Prepare(context.Background(), morningSessionKey(), []time.Time{at(10, 0), at(10, 15)})
	require.NoError(t, err)

	assert.True(t, p.HasOverrun)
	assert.Equal(t, 30, p.Options.TotalBreakMinutes)
	assert.Equal(t, 30, p.Options.Minimal.ExtendByMinutes)
	assert.Equal(t, 30, p.Options.Full.ExtendByMinutes)
	assert.Equal(t, at(13, 30), p.Options.Full.NewSessionEnd)
}

func TestPrepareNoOverrunOnIdleTail(t *testing.T) {
	doc := mondayDoctor()
	repo := newFakeRepo(doc, ClinicSettings{})
	bookSession(t, repo, 0, 10, at(9, 0)) // done by 11:30
	wf := newWorkflow(repo)

	p, err := wf.Prepare(context.Background(), morningSessionKey(), []time.Time{at(11, 30)})
	require.NoError(t, err)

	assert.False(t, p.HasOverrun)
	assert.Equal(t, 0, p.Options.Minimal.ExtendByMinutes)
	assert.Equal(t, 15, p.Options.Full.ExtendByMinutes)
}

func TestCommitPersistsBreakExtensionAndShifts(t *testing.T) {
	doc := mondayDoctor()
	repo := newFakeRepo(doc, ClinicSettings{})
	booked := bookSession(t, repo, 0, 16, at(9, 0))
	wf := newWorkflow(repo)
	ctx := context.Background()

	p, err := wf.Prepare(ctx, morningSessionKey(), []time.Time{at(10, 0), at(10, 15)})
	require.NoError(t, err)
	require.NoError(t, wf.Commit(ctx, p, p.Options.Minimal.ExtendByMinutes))

	// Break and extension are recorded on the doctor.
	stored, err := repo.GetDoctor(ctx, testClinic, testDoctor, testDate)
	require.NoError(t, err)
	require.Len(t, stored.Breaks[testDate], 1)
	require.Len(t, stored.Extensions[testDate], 1)
	ext := stored.Extensions[testDate][0]
	assert.Equal(t, 30, ext.TotalExtendedMinutes)
	assert.Equal(t, at(13, 0), ext.OriginalEnd)
	assert.Equal(t, at(13, 30), ext.NewEnd)

	// The effective end moves; the template end does not.
	info, err := schedule.Resolver{}.ResolveSession(stored, at(0, 0), 0)
	require.NoError(t, err)
	assert.Equal(t, at(13, 30), info.EffectiveEnd)
	assert.Equal(t, at(13, 0), info.OriginalEnd)

	// Bookings inside the break window were displaced, later ones shifted.
	displaced, err := repo.GetAppointmentByID(ctx, booked[4].ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusCompleted, displaced.Status)
	assert.True(t, displaced.CancelledByBreak)

	last, err := repo.GetAppointmentByID(ctx, booked[15].ID)
	require.NoError(t, err)
	assert.Equal(t, booked[15].BaseArriveBy.Add(30*time.Minute), last.ArriveBy)
}

func TestCommitMergesAdjacentBreaks(t *testing.T) {
	doc := mondayDoctor()
	doc.Breaks[testDate] = []schedule.BreakPeriod{sessionBreak(t, 0, at(10, 0))}
	repo := newFakeRepo(doc, ClinicSettings{})
	wf := newWorkflow(repo)
	ctx := context.Background()

	p, err := wf.Prepare(ctx, morningSessionKey(), []time.Time{at(10, 15)})
	require.NoError(t, err)
	require.NoError(t, wf.Commit(ctx, p, 0))

	stored, err := repo.GetDoctor(ctx, testClinic, testDoctor, testDate)
	require.NoError(t, err)
	require.Len(t, stored.Breaks[testDate], 1)
	assert.Equal(t, at(10, 0), stored.Breaks[testDate][0].StartTime)
	assert.Equal(t, at(10, 30), stored.Breaks[testDate][0].EndTime)
	assert.Equal(t, 30, stored.Breaks[testDate][0].DurationMinutes)
}

func TestCommitRejectsOverlapWithNextSession(t *testing.T) {
	doc := mondayDoctor()
	repo := newFakeRepo(doc, ClinicSettings{})
	wf := newWorkflow(repo)
	ctx := context.Background()

	p, err := wf.Prepare(ctx, morningSessionKey(), []time.Time{at(12, 45)})
	require.NoError(t, err)

	// 90 minutes past 13:00 runs into the 14:00 afternoon session.
	err = wf.Commit(ctx, p, 90)

	var overlap *schedule.OverlapWithNextSessionError
	require.ErrorAs(t, err, &overlap)
	assert.Equal(t, at(14, 0), overlap.NextSessionStart)

	// Nothing was persisted.
	stored, err := repo.GetDoctor(ctx, testClinic, testDoctor, testDate)
	require.NoError(t, err)
	assert.Empty(t, stored.Breaks[testDate])
}

func TestCommitSurfacesShiftFailureAsDegradedSuccess(t *testing.T) {
	doc := mondayDoctor()
	repo := newFakeRepo(doc, ClinicSettings{})
	booked := bookSession(t, repo, 0, 4, at(9, 0))
	repo.failTimesFor[booked[3].ID] = true
	wf := newWorkflow(repo)
	ctx := context.Background()

	p, err := wf.Prepare(ctx, morningSessionKey(), []time.Time{at(9, 0)})
	require.NoError(t, err)

	err = wf.Commit(ctx, p, 0)
	var shiftErr *ShiftApplicationError
	require.ErrorAs(t, err, &shiftErr)

	// The break stands despite the failed shift.
	stored, err := repo.GetDoctor(ctx, testClinic, testDoctor, testDate)
	require.NoError(t, err)
	assert.Len(t, stored.Breaks[testDate], 1)
	assert.True(t, repo.dirty[morningSessionKey()])
}

// Inserting a break and removing it with "open slots" restores every
// shifted arrive-by to its pre-break value.
func TestInsertRemoveRoundTrip(t *testing.T) {
	doc := mondayDoctor()
	repo := newFakeRepo(doc, ClinicSettings{})
	booked := bookSession(t, repo, 0, 12, at(9, 0))
	wf := newWorkflow(repo)
	ctx := context.Background()

	p, err := wf.Prepare(ctx, morningSessionKey(), []time.Time{at(9, 30), at(9, 45)})
	require.NoError(t, err)
	require.NoError(t, wf.Commit(ctx, p, p.Options.Minimal.ExtendByMinutes))

	require.NoError(t, wf.RemoveBreak(ctx, morningSessionKey(), p.Break.ID, true, true))

	stored, err := repo.GetDoctor(ctx, testClinic, testDoctor, testDate)
	require.NoError(t, err)
	assert.Empty(t, stored.Breaks[testDate])

	for _, orig := range booked {
		a, err := repo.GetAppointmentByID(ctx, orig.ID)
		require.NoError(t, err)
		if a.Status == schedule.StatusCancelled {
			continue // displaced by the break, reopened on removal
		}
		assert.Equal(t, orig.ArriveBy, a.ArriveBy)
	}

	// The retracted extension keeps nothing once the break is gone.
	require.Len(t, stored.Extensions[testDate], 1)
	assert.Zero(t, stored.Extensions[testDate][0].TotalExtendedMinutes)
}

func TestRemoveBreakKeepsNeededExtension(t *testing.T) {
	doc := mondayDoctor()
	repo := newFakeRepo(doc, ClinicSettings{})
	bookSession(t, repo, 0, 16, at(9, 0))
	wf := newWorkflow(repo)
	ctx := context.Background()

	// Two separate breaks, both extended in full (45 minutes).
	p1, err := wf.Prepare(ctx, morningSessionKey(), []time.Time{at(9, 30)})
	require.NoError(t, err)
	require.NoError(t, wf.Commit(ctx, p1, p1.Options.Full.ExtendByMinutes))

	p2, err := wf.Prepare(ctx, morningSessionKey(), []time.Time{at(11, 0), at(11, 15)})
	require.NoError(t, err)
	require.NoError(t, wf.Commit(ctx, p2, p2.Options.Full.ExtendByMinutes))

	stored, err := repo.GetDoctor(ctx, testClinic, testDoctor, testDate)
	require.NoError(t, err)
	require.Len(t, stored.Extensions[testDate], 1)
	require.Equal(t, 45, stored.Extensions[testDate][0].TotalExtendedMinutes)

	// Removing the 30-minute break retracts only its share: the fully
	// booked session still needs the remaining 15.
	require.NoError(t, wf.RemoveBreak(ctx, morningSessionKey(), p2.Break.ID, false, true))

	stored, err = repo.GetDoctor(ctx, testClinic, testDoctor, testDate)
	require.NoError(t, err)
	require.Len(t, stored.Extensions[testDate], 1)
	assert.Equal(t, 15, stored.Extensions[testDate][0].TotalExtendedMinutes)
}

func TestRemoveBreakUnknownID(t *testing.T) {
	repo := newFakeRepo(mondayDoctor(), ClinicSettings{})
	wf := newWorkflow(repo)

	err := wf.RemoveBreak(context.Background(), morningSessionKey(), uuid.New(), false, false)
	assert.ErrorIs(t, err, ErrBreakNotFound)
}
