package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-session-service/internal/domain"
)

// QuestionLoader loads subject JSONB from Postgres.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadSubject(ctx context.Context, subjectID string) (domain.Subject, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM subjects WHERE id=$1`, subjectID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Subject{}, domain.ErrSubjectNotFound
	}
	if err != nil {
		return domain.Subject{}, fmt.Errorf("load subject: %w", err)
	}
	var subject domain.Subject
	if err := json.Unmarshal(raw, &subject); err != nil {
		return domain.Subject{}, fmt.Errorf("unmarshal subject: %w", err)
	}
	if subject.ID == "" {
		subject.ID = subjectID
	}
	return subject, nil
}
