package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-session-service/internal/domain"
)

type attemptRow struct {
	bun.BaseModel `bun:"table:quiz_attempts"`

	ID               string    `bun:"id,pk"`
	UserID           string    `bun:"user_id"`
	SubjectID        string    `bun:"subject_id"`
	TotalQuestions   int       `bun:"total_questions"`
	AnsweredCount    int       `bun:"answered_count"`
	CorrectCount     int       `bun:"correct_count"`
	ScorePercentage  int       `bun:"score_percentage"`
	Multiplier       float64   `bun:"multiplier"`
	XPEarned         int       `bun:"xp_earned"`
	CoinsEarned      int       `bun:"coins_earned"`
	TotalTimeSeconds int       `bun:"total_time_seconds"`
	CompletedAt      time.Time `bun:"completed_at"`
	CreatedAt        time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type questionAttemptRow struct {
	bun.BaseModel `bun:"table:quiz_question_attempts"`

	AttemptID        string `bun:"attempt_id,pk"`
	QuestionID       string `bun:"question_id,pk"`
	SelectedOptionID string `bun:"selected_option_id"`
	TimeTakenSeconds int    `bun:"time_taken_seconds"`
	IsCorrect        bool   `bun:"is_correct"`
}

// AttemptSink stores finished attempts in Postgres. It implements app.AttemptSink;
// storing the same attempt twice is a no-op.
type AttemptSink struct {
	db *bun.DB
}

func NewAttemptSink(db *bun.DB) *AttemptSink {
	return &AttemptSink{db: db}
}

func (s *AttemptSink) Submit(ctx context.Context, payload domain.SubmissionPayload) error {
	row := attemptRow{
		ID:               payload.AttemptID,
		UserID:           payload.UserID,
		SubjectID:        payload.SubjectID,
		TotalQuestions:   payload.Score.TotalQuestions,
		AnsweredCount:    payload.Score.AnsweredCount,
		CorrectCount:     payload.Score.CorrectCount,
		ScorePercentage:  payload.Score.ScorePercentage,
		Multiplier:       payload.Score.Multiplier,
		XPEarned:         payload.Score.XPEarned,
		CoinsEarned:      payload.Score.CoinsEarned,
		TotalTimeSeconds: payload.TotalTimeSeconds(),
		CompletedAt:      payload.CompletedAt,
	}
	items := make([]questionAttemptRow, 0, len(payload.Questions))
	for _, q := range payload.Questions {
		items = append(items, questionAttemptRow{
			AttemptID:        payload.AttemptID,
			QuestionID:       q.QuestionID,
			SelectedOptionID: q.SelectedOptionID,
			TimeTakenSeconds: q.TimeTakenSeconds,
			IsCorrect:        q.Correct,
		})
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewInsert().Model(&row).On("CONFLICT (id) DO NOTHING").Exec(ctx)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return nil
		}
		if len(items) == 0 {
			return nil
		}
		_, err = tx.NewInsert().Model(&items).Exec(ctx)
		return err
	})
	return classify(err)
}

// Attempts lists the user's stored attempts, newest first.
func (s *AttemptSink) Attempts(ctx context.Context, userID string, limit int) ([]domain.AttemptSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	var rows []attemptRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		OrderExpr("completed_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	out := make([]domain.AttemptSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.AttemptSummary{
			AttemptID:       r.ID,
			SubjectID:       r.SubjectID,
			AnsweredCount:   r.AnsweredCount,
			CorrectCount:    r.CorrectCount,
			ScorePercentage: r.ScorePercentage,
			XPEarned:        r.XPEarned,
			CoinsEarned:     r.CoinsEarned,
			CompletedAt:     r.CompletedAt,
		})
	}
	return out, nil
}

// classify maps storage failures onto the delivery outcomes of app.AttemptSink.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.IntegrityViolation() {
		return fmt.Errorf("%w: %v", domain.ErrDeliveryRejected, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", domain.ErrDeliveryUnreachable, err)
	}
	return fmt.Errorf("store attempt: %w", err)
}
