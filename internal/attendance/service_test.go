package attendance_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/SuPReme-0/ClassLens/internal/attendance"
	"github.com/SuPReme-0/ClassLens/internal/attendance/repofake"
	"github.com/SuPReme-0/ClassLens/internal/auth"
	"github.com/SuPReme-0/ClassLens/internal/metrics"
)

type recordingNotifier struct {
	mu       sync.Mutex
	sessions []attendance.SessionStarted
	marks    []attendance.AttendanceMarked
}

func (n *recordingNotifier) AnnounceSessionStarted(_ context.Context, evt attendance.SessionStarted) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sessions = append(n.sessions, evt)
}

func (n *recordingNotifier) AnnounceAttendanceMarked(_ context.Context, evt attendance.AttendanceMarked) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.marks = append(n.marks, evt)
}

type fixture struct {
	store    *repofake.FakeStore
	notifier *recordingNotifier
	codec    *auth.Codec
	service  *attendance.Service
	now      time.Time
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    repofake.NewFakeStore(),
		notifier: &recordingNotifier{},
		now:      time.Unix(1000, 0),
	}
	codec, err := auth.NewCodec("test-secret", "classlens-test", auth.SessionWindow)
	require.NoError(t, err)
	f.codec = codec

	f.store.AddUser("T1", "Ada Teacher", "ada@school.test")
	f.store.AddUser("S1", "Sam Student", "sam@school.test")
	f.store.AddUser("S2", "Kim Student", "kim@school.test")
	f.store.AddClass("C1", "Physics 101", "T1")
	f.store.AddClass("C2", "Chemistry", "T1")
	f.store.Enroll("S1", "C1")

	f.service = attendance.NewService(f.store, codec, f.notifier,
		attendance.WithClock(func() time.Time { return f.now }),
		attendance.WithLocation(time.UTC),
	)
	return f
}

func ptr[T any](v T) *T { return &v }

func TestClassroomScenario(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	token, err := f.service.StartSession(ctx, "C1", "T1")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Len(t, f.notifier.sessions, 1)
	require.Equal(t, "C1", f.notifier.sessions[0].ClassID)
	require.Equal(t, "Physics 101", f.notifier.sessions[0].ClassName)
	require.Equal(t, token, f.notifier.sessions[0].SessionToken)

	f.now = time.Unix(1010, 0)
	rec, err := f.service.Mark(ctx, attendance.MarkRequest{ClassID: "C1", StudentID: "S1", SignalStrength: ptr(-60.0)})
	require.NoError(t, err)
	require.True(t, rec.Marked)
	require.Equal(t, "1970-01-01", rec.Date)
	require.Equal(t, -60.0, *rec.SignalStrength)
	require.Nil(t, rec.ScanPayload)
	require.NotEmpty(t, rec.ID)
	require.Len(t, f.notifier.marks, 1)
	require.Equal(t, "S1", f.notifier.marks[0].StudentID)
	require.Equal(t, rec, f.notifier.marks[0].Record)

	f.now = time.Unix(1020, 0)
	_, err = f.service.Mark(ctx, attendance.MarkRequest{ClassID: "C1", StudentID: "S1"})
	require.ErrorIs(t, err, attendance.ErrAlreadyMarked)

	_, err = f.service.Mark(ctx, attendance.MarkRequest{ClassID: "C1", StudentID: "S2"})
	require.ErrorIs(t, err, attendance.ErrNotEnrolled)

	require.Len(t, f.store.Records(), 1)
	require.Len(t, f.notifier.marks, 1)
}

func TestMarkNewDayResets(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.now = time.Date(2026, 3, 9, 23, 59, 0, 0, time.UTC)

	first, err := f.service.Mark(ctx, attendance.MarkRequest{ClassID: "C1", StudentID: "S1"})
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Minute)
	second, err := f.service.Mark(ctx, attendance.MarkRequest{ClassID: "C1", StudentID: "S1"})
	require.NoError(t, err)
	require.Equal(t, "2026-03-09", first.Date)
	require.Equal(t, "2026-03-10", second.Date)
}

func TestMarkUsesConfiguredLocation(t *testing.T) {
	f := setupFixture(t)
	loc := time.FixedZone("UTC+5:30", 5*3600+1800)
	svc := attendance.NewService(f.store, f.codec, f.notifier,
		attendance.WithClock(func() time.Time { return time.Date(2026, 3, 9, 20, 0, 0, 0, time.UTC) }),
		attendance.WithLocation(loc),
	)
	rec, err := svc.Mark(context.Background(), attendance.MarkRequest{ClassID: "C1", StudentID: "S1"})
	require.NoError(t, err)
	require.Equal(t, "2026-03-10", rec.Date)
}

func TestMarkValidation(t *testing.T) {
	f := setupFixture(t)
	for _, req := range []attendance.MarkRequest{
		{ClassID: "", StudentID: "S1"},
		{ClassID: "C1", StudentID: "  "},
	} {
		_, err := f.service.Mark(context.Background(), req)
		require.ErrorIs(t, err, attendance.ErrMissingField)
	}
}

func TestMarkNotEnrolledIgnoresExistingRecords(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.store.Enroll("S2", "C2")
	_, err := f.store.InsertRecord(ctx, attendance.Record{ID: "x", ClassID: "C1", StudentID: "S2", Date: "1970-01-01"})
	require.NoError(t, err)

	_, err = f.service.Mark(ctx, attendance.MarkRequest{ClassID: "C1", StudentID: "S2"})
	require.ErrorIs(t, err, attendance.ErrNotEnrolled)
}

func TestMarkStoreFailureFailsClosed(t *testing.T) {
	f := setupFixture(t)
	f.store.Err = errors.New("connection refused")

	_, err := f.service.Mark(context.Background(), attendance.MarkRequest{ClassID: "C1", StudentID: "S1"})
	require.ErrorIs(t, err, attendance.ErrNotEnrolled)
	require.Empty(t, f.notifier.marks)
}

func TestMarkDuplicateInsertMapsToAlreadyMarked(t *testing.T) {
	f := setupFixture(t)
	f.store.SkipPreCheck = true
	ctx := context.Background()
	raceLost := metrics.Marks.WithLabelValues(metrics.MarkRaceLost)
	before := testutil.ToFloat64(raceLost)

	_, err := f.service.Mark(ctx, attendance.MarkRequest{ClassID: "C1", StudentID: "S1"})
	require.NoError(t, err)
	_, err = f.service.Mark(ctx, attendance.MarkRequest{ClassID: "C1", StudentID: "S1"})
	require.ErrorIs(t, err, attendance.ErrAlreadyMarked)
	require.Equal(t, before+1, testutil.ToFloat64(raceLost))
}

func TestConcurrentMarksProduceOneRecord(t *testing.T) {
	f := setupFixture(t)
	f.store.SkipPreCheck = true

	const workers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.service.Mark(context.Background(), attendance.MarkRequest{ClassID: "C1", StudentID: "S1"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, attendance.ErrAlreadyMarked):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Equal(t, workers-1, conflicts)
	require.Len(t, f.store.Records(), 1)
	require.Len(t, f.notifier.marks, 1)
}

func TestStartSessionRequiresOwnership(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	_, err := f.service.StartSession(ctx, "C1", "T2")
	require.ErrorIs(t, err, attendance.ErrNotOwner)

	_, err = f.service.StartSession(ctx, "", "T1")
	require.ErrorIs(t, err, attendance.ErrMissingField)

	f.store.Err = errors.New("timeout")
	_, err = f.service.StartSession(ctx, "C1", "T1")
	require.ErrorIs(t, err, attendance.ErrNotOwner)
	require.Empty(t, f.notifier.sessions)
}

func TestValidateSession(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	token, err := f.service.StartSession(ctx, "C1", "T1")
	require.NoError(t, err)

	info, err := f.service.ValidateSession(ctx, token)
	require.NoError(t, err)
	require.Equal(t, attendance.SessionInfo{ClassID: "C1", ClassName: "Physics 101", TeacherID: "T1"}, info)

	_, err = f.service.ValidateSession(ctx, "")
	require.ErrorIs(t, err, attendance.ErrMissingField)

	f.now = f.now.Add(auth.SessionWindow + time.Second)
	_, err = f.service.ValidateSession(ctx, token)
	require.ErrorIs(t, err, auth.ErrExpired)
}

func TestValidateSessionUnknownClass(t *testing.T) {
	f := setupFixture(t)
	token, err := f.codec.Mint("GONE", "T1", f.now)
	require.NoError(t, err)

	_, err = f.service.ValidateSession(context.Background(), token)
	require.ErrorIs(t, err, attendance.ErrClassNotFound)
}

func TestAttendanceQueries(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.store.Enroll("S1", "C2")

	_, err := f.service.Mark(ctx, attendance.MarkRequest{ClassID: "C1", StudentID: "S1", ScanPayload: ptr("blob")})
	require.NoError(t, err)
	_, err = f.service.Mark(ctx, attendance.MarkRequest{ClassID: "C2", StudentID: "S1"})
	require.NoError(t, err)

	byClass, err := f.service.ClassAttendance(ctx, "C1", "")
	require.NoError(t, err)
	require.Len(t, byClass, 1)
	require.Equal(t, "Sam Student", byClass[0].StudentName)
	require.Equal(t, "blob", *byClass[0].ScanPayload)

	filtered, err := f.service.ClassAttendance(ctx, "C1", "2001-01-01")
	require.NoError(t, err)
	require.Empty(t, filtered)

	_, err = f.service.ClassAttendance(ctx, "C1", "01/02/2001")
	require.ErrorIs(t, err, attendance.ErrInvalidDate)

	_, err = f.service.ClassAttendance(ctx, "", "")
	require.ErrorIs(t, err, attendance.ErrMissingField)

	byStudent, err := f.service.StudentAttendance(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, byStudent, 2)

	_, err = f.service.StudentAttendance(ctx, "")
	require.ErrorIs(t, err, attendance.ErrMissingField)
}
