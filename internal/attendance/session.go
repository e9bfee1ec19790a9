package attendance

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/SuPReme-0/ClassLens/internal/metrics"
)

// SessionInfo is what a verified session token resolves to.
type SessionInfo struct {
	ClassID   string `json:"class_id"`
	ClassName string `json:"class_name"`
	TeacherID string `json:"teacher_id"`
}

// StartSession opens an attendance window for a class the teacher owns.
func (s *Service) StartSession(ctx context.Context, classID, teacherID string) (string, error) {
	classID = strings.TrimSpace(classID)
	teacherID = strings.TrimSpace(teacherID)
	if classID == "" || teacherID == "" {
		return "", fmt.Errorf("class_id and teacher_id: %w", ErrMissingField)
	}
	if !s.validator.TeacherOwnsClass(ctx, teacherID, classID) {
		return "", ErrNotOwner
	}

	class, err := s.store.GetClass(ctx, classID)
	if err != nil {
		return "", fmt.Errorf("get class: %w", err)
	}
	if class == nil {
		return "", ErrNotOwner
	}

	now := s.now()
	token, err := s.codec.Mint(classID, teacherID, now)
	if err != nil {
		return "", fmt.Errorf("mint session: %w", err)
	}
	metrics.SessionsStarted.Inc()
	log.Info().Str("class_id", classID).Str("teacher_id", teacherID).Msg("attendance session started")

	s.notifier.AnnounceSessionStarted(ctx, SessionStarted{
		ClassID:      classID,
		ClassName:    class.Name,
		TeacherID:    teacherID,
		SessionToken: token,
		Timestamp:    now.UTC(),
	})
	return token, nil
}

// ValidateSession verifies a token and resolves its class. A token for a class
// that no longer exists fails with ErrClassNotFound.
func (s *Service) ValidateSession(ctx context.Context, token string) (SessionInfo, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return SessionInfo{}, fmt.Errorf("session_token: %w", ErrMissingField)
	}
	sess, err := s.codec.Verify(token, s.now())
	if err != nil {
		return SessionInfo{}, err
	}
	class, err := s.store.GetClass(ctx, sess.ClassID)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("get class: %w", err)
	}
	if class == nil {
		return SessionInfo{}, ErrClassNotFound
	}
	return SessionInfo{ClassID: sess.ClassID, ClassName: class.Name, TeacherID: sess.TeacherID}, nil
}
