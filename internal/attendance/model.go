package attendance

import (
	"context"
	"time"
)

// DateLayout is the calendar-day format used in the uniqueness key.
const DateLayout = "2006-01-02"

// Record is one attendance mark for a student in a class on a calendar day.
type Record struct {
	ID             string    `json:"id"`
	ClassID        string    `json:"class_id"`
	StudentID      string    `json:"student_id"`
	Date           string    `json:"date"`
	Marked         bool      `json:"marked"`
	SignalStrength *float64  `json:"signal_strength,omitempty"`
	ScanPayload    *string   `json:"scan_payload,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Class is the subset of class data this service reads.
type Class struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	TeacherID string `json:"teacher_id"`
}

// StudentAttendance is a record joined with the student's identity.
type StudentAttendance struct {
	Record
	StudentName  string `json:"student_name"`
	StudentEmail string `json:"student_email"`
}

// ClassAttendance is a record joined with the class identity.
type ClassAttendance struct {
	Record
	ClassName string `json:"class_name"`
}

// Store is the data store gateway the service depends on.
type Store interface {
	OwnsClass(ctx context.Context, teacherID, classID string) (bool, error)
	IsEnrolled(ctx context.Context, studentID, classID string) (bool, error)
	// GetClass returns nil without error when the class does not exist.
	GetClass(ctx context.Context, classID string) (*Class, error)
	// FindRecord returns nil without error when no record exists for the key.
	FindRecord(ctx context.Context, classID, studentID, date string) (*Record, error)
	// InsertRecord fails with ErrDuplicateKey when the key already exists.
	InsertRecord(ctx context.Context, rec Record) (Record, error)
	ListClassAttendance(ctx context.Context, classID, date string) ([]StudentAttendance, error)
	ListStudentAttendance(ctx context.Context, studentID string) ([]ClassAttendance, error)
}

// SessionStarted is emitted after a teacher opens an attendance window.
type SessionStarted struct {
	ClassID      string    `json:"class_id"`
	ClassName    string    `json:"class_name"`
	TeacherID    string    `json:"teacher_id"`
	SessionToken string    `json:"session_token"`
	Timestamp    time.Time `json:"timestamp"`
}

// AttendanceMarked is emitted after a record is written.
type AttendanceMarked struct {
	ClassID   string    `json:"class_id"`
	StudentID string    `json:"student_id"`
	Record    Record    `json:"record"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier tells subscribers what happened. Delivery is best effort.
type Notifier interface {
	AnnounceSessionStarted(ctx context.Context, evt SessionStarted)
	AnnounceAttendanceMarked(ctx context.Context, evt AttendanceMarked)
}
