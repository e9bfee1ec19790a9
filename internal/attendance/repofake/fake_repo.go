package repofake

import (
	"context"
	"sort"
	"sync"

	"github.com/SuPReme-0/ClassLens/internal/attendance"
)

type user struct {
	name  string
	email string
}

type recordKey struct {
	classID, studentID, date string
}

// FakeStore is an in-memory attendance.Store that enforces the same
// (class, student, date) uniqueness as the Postgres schema.
type FakeStore struct {
	mu          sync.Mutex
	classes     map[string]attendance.Class
	users       map[string]user
	enrollments map[[2]string]struct{}
	records     map[recordKey]attendance.Record

	// SkipPreCheck makes FindRecord always miss, as if a concurrent request
	// had not inserted yet when the check ran.
	SkipPreCheck bool
	// Err, when set, is returned from every call.
	Err error
}

var _ attendance.Store = (*FakeStore)(nil)

// NewFakeStore returns an empty store.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		classes:     make(map[string]attendance.Class),
		users:       make(map[string]user),
		enrollments: make(map[[2]string]struct{}),
		records:     make(map[recordKey]attendance.Record),
	}
}

// AddClass registers a class owned by teacherID.
func (f *FakeStore) AddClass(id, name, teacherID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classes[id] = attendance.Class{ID: id, Name: name, TeacherID: teacherID}
}

// AddUser registers a user's identity.
func (f *FakeStore) AddUser(id, name, email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id] = user{name: name, email: email}
}

// Enroll adds studentID to classID.
func (f *FakeStore) Enroll(studentID, classID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enrollments[[2]string{classID, studentID}] = struct{}{}
}

// Records returns every stored record.
func (f *FakeStore) Records() []attendance.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]attendance.Record, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r)
	}
	sortRecords(out)
	return out
}

func (f *FakeStore) OwnsClass(_ context.Context, teacherID, classID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return false, f.Err
	}
	c, ok := f.classes[classID]
	return ok && c.TeacherID == teacherID, nil
}

func (f *FakeStore) IsEnrolled(_ context.Context, studentID, classID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return false, f.Err
	}
	_, ok := f.enrollments[[2]string{classID, studentID}]
	return ok, nil
}

func (f *FakeStore) GetClass(_ context.Context, classID string) (*attendance.Class, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	c, ok := f.classes[classID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *FakeStore) FindRecord(_ context.Context, classID, studentID, date string) (*attendance.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if f.SkipPreCheck {
		return nil, nil
	}
	r, ok := f.records[recordKey{classID, studentID, date}]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (f *FakeStore) InsertRecord(_ context.Context, rec attendance.Record) (attendance.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return attendance.Record{}, f.Err
	}
	key := recordKey{rec.ClassID, rec.StudentID, rec.Date}
	if _, exists := f.records[key]; exists {
		return attendance.Record{}, attendance.ErrDuplicateKey
	}
	rec.Marked = true
	f.records[key] = rec
	return rec, nil
}

func (f *FakeStore) ListClassAttendance(_ context.Context, classID, date string) ([]attendance.StudentAttendance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var recs []attendance.Record
	for k, r := range f.records {
		if k.classID == classID && (date == "" || k.date == date) {
			recs = append(recs, r)
		}
	}
	sortRecords(recs)
	out := []attendance.StudentAttendance{}
	for _, r := range recs {
		u, ok := f.users[r.StudentID]
		if !ok {
			continue
		}
		out = append(out, attendance.StudentAttendance{Record: r, StudentName: u.name, StudentEmail: u.email})
	}
	return out, nil
}

func (f *FakeStore) ListStudentAttendance(_ context.Context, studentID string) ([]attendance.ClassAttendance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var recs []attendance.Record
	for k, r := range f.records {
		if k.studentID == studentID {
			recs = append(recs, r)
		}
	}
	sortRecords(recs)
	out := []attendance.ClassAttendance{}
	for _, r := range recs {
		c, ok := f.classes[r.ClassID]
		if !ok {
			continue
		}
		out = append(out, attendance.ClassAttendance{Record: r, ClassName: c.Name})
	}
	return out, nil
}

// sortRecords orders newest first, matching the Postgres queries.
func sortRecords(recs []attendance.Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Date != recs[j].Date {
			return recs[i].Date > recs[j].Date
		}
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
}
