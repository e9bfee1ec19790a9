package attendance

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Validator answers ownership and enrollment questions. Lookup errors count as "no".
type Validator struct {
	store Store
}

// NewValidator creates a validator over the store.
func NewValidator(store Store) *Validator {
	return &Validator{store: store}
}

// TeacherOwnsClass reports whether teacherID owns classID.
func (v *Validator) TeacherOwnsClass(ctx context.Context, teacherID, classID string) bool {
	ok, err := v.store.OwnsClass(ctx, teacherID, classID)
	if err != nil {
		log.Error().Err(err).Str("teacher_id", teacherID).Str("class_id", classID).Msg("ownership lookup failed")
		return false
	}
	return ok
}

// StudentEnrolled reports whether studentID is enrolled in classID.
func (v *Validator) StudentEnrolled(ctx context.Context, studentID, classID string) bool {
	ok, err := v.store.IsEnrolled(ctx, studentID, classID)
	if err != nil {
		log.Error().Err(err).Str("student_id", studentID).Str("class_id", classID).Msg("enrollment lookup failed")
		return false
	}
	return ok
}
