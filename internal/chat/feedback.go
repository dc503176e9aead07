package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/isabella-tue/retrofit/internal/log"
)

// Rating bounds for response feedback.
const (
	MinRating = 1
	MaxRating = 5
)

// ErrBadRating indicates a rating outside the allowed 1..5 range.
var ErrBadRating = errors.New("rating must be between 1 and 5")

// Execer is the subset of pgxpool.Pool the feedback store depends on.
// Defined here, by the consumer, so tests can substitute a lighter
// implementation.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Feedback is one user rating of an assistant response.
type Feedback struct {
	SessionID    string `json:"session_id"`
	ResponseID   string `json:"response_id,omitempty"`
	MessageIndex int    `json:"message_index"`
	Rating       int    `json:"rating"` // 1..5
	Comment      string `json:"comment,omitempty"`
}

// Validate checks the feedback payload before persisting.
func (f Feedback) Validate() error {
	if f.SessionID == "" {
		return errors.New("session_id is required")
	}
	if f.Rating < MinRating || f.Rating > MaxRating {
		return ErrBadRating
	}
	return nil
}

// FeedbackStore persists response ratings to PostgreSQL.
type FeedbackStore struct {
	db     Execer
	logger log.Logger
}

// NewFeedbackStore creates a feedback store over the given connection pool.
func NewFeedbackStore(db Execer, logger log.Logger) *FeedbackStore {
	return &FeedbackStore{db: db, logger: logger}
}

// Record validates and stores one feedback entry.
func (s *FeedbackStore) Record(ctx context.Context, f Feedback) error {
	if err := f.Validate(); err != nil {
		return err
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO chat_feedback (session_id, response_id, message_index, rating, comment)
		VALUES ($1, $2, $3, $4, $5)`,
		f.SessionID, f.ResponseID, f.MessageIndex, f.Rating, f.Comment)
	if err != nil {
		return fmt.Errorf("recording feedback: %w", err)
	}

	s.logger.Info("feedback recorded",
		"session_id", f.SessionID,
		"response_id", f.ResponseID,
		"rating", f.Rating,
		"has_comment", f.Comment != "")
	return nil
}
