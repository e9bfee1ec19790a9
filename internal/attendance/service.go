package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/SuPReme-0/ClassLens/internal/auth"
	"github.com/SuPReme-0/ClassLens/internal/metrics"
)

// MarkRequest is the input to Mark.
type MarkRequest struct {
	ClassID        string
	StudentID      string
	SignalStrength *float64
	ScanPayload    *string
}

// Service coordinates session start, validation and attendance marking.
type Service struct {
	store     Store
	validator *Validator
	codec     *auth.Codec
	notifier  Notifier
	loc       *time.Location
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the server clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the time zone attendance dates are derived in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewService creates a service backed by a store.
func NewService(store Store, codec *auth.Codec, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		store:     store,
		validator: NewValidator(store),
		codec:     codec,
		notifier:  notifier,
		loc:       time.UTC,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the calendar day for t in the service location.
func (s *Service) Today(t time.Time) string {
	return t.In(s.loc).Format(DateLayout)
}

// Mark records attendance for a student once per class per calendar day.
func (s *Service) Mark(ctx context.Context, req MarkRequest) (Record, error) {
	req.ClassID = strings.TrimSpace(req.ClassID)
	req.StudentID = strings.TrimSpace(req.StudentID)
	if req.ClassID == "" || req.StudentID == "" {
		return Record{}, fmt.Errorf("class_id and student_id: %w", ErrMissingField)
	}
	if !s.validator.StudentEnrolled(ctx, req.StudentID, req.ClassID) {
		metrics.Marks.WithLabelValues(metrics.MarkNotEnrolled).Inc()
		return Record{}, ErrNotEnrolled
	}

	now := s.now()
	date := s.Today(now)

	existing, err := s.store.FindRecord(ctx, req.ClassID, req.StudentID, date)
	if err != nil {
		metrics.Marks.WithLabelValues(metrics.MarkError).Inc()
		return Record{}, fmt.Errorf("find record: %w", err)
	}
	if existing != nil {
		metrics.Marks.WithLabelValues(metrics.MarkDuplicate).Inc()
		return Record{}, ErrAlreadyMarked
	}

	rec, err := s.store.InsertRecord(ctx, Record{
		ID:             uuid.NewString(),
		ClassID:        req.ClassID,
		StudentID:      req.StudentID,
		Date:           date,
		Marked:         true,
		SignalStrength: req.SignalStrength,
		ScanPayload:    req.ScanPayload,
		CreatedAt:      now.UTC(),
	})
	if errors.Is(err, ErrDuplicateKey) {
		// another submission for the same key won between our check and insert
		metrics.Marks.WithLabelValues(metrics.MarkRaceLost).Inc()
		log.Info().Str("class_id", req.ClassID).Str("student_id", req.StudentID).Str("date", date).Msg("concurrent duplicate mark rejected by store")
		return Record{}, ErrAlreadyMarked
	}
	if err != nil {
		metrics.Marks.WithLabelValues(metrics.MarkError).Inc()
		return Record{}, fmt.Errorf("insert record: %w", err)
	}
	metrics.Marks.WithLabelValues(metrics.MarkOK).Inc()

	s.notifier.AnnounceAttendanceMarked(ctx, AttendanceMarked{
		ClassID:   rec.ClassID,
		StudentID: rec.StudentID,
		Record:    rec,
		Timestamp: now.UTC(),
	})
	return rec, nil
}

// ClassAttendance lists records of a class, optionally for one date.
func (s *Service) ClassAttendance(ctx context.Context, classID, date string) ([]StudentAttendance, error) {
	classID = strings.TrimSpace(classID)
	if classID == "" {
		return nil, fmt.Errorf("class_id: %w", ErrMissingField)
	}
	if date != "" {
		if _, err := time.Parse(DateLayout, date); err != nil {
			return nil, ErrInvalidDate
		}
	}
	return s.store.ListClassAttendance(ctx, classID, date)
}

// StudentAttendance lists every record of a student.
func (s *Service) StudentAttendance(ctx context.Context, studentID string) ([]ClassAttendance, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, fmt.Errorf("student_id: %w", ErrMissingField)
	}
	return s.store.ListStudentAttendance(ctx, studentID)
}
