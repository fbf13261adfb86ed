package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-session-service/internal/domain"
)

func TestQuestionRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		SubjectLoader: NewStaticSubjectLoader(map[string]domain.Subject{
			"physics": sampleSubject(),
		}),
	}
	repo := NewQuestionRepository(loader, time.Minute)

	questions, err := repo.Questions(context.Background(), "physics")
	if err != nil {
		t.Fatalf("get questions: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := repo.Questions(context.Background(), "physics"); err != nil {
		t.Fatalf("get questions 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestQuestionRepositoryExpires(t *testing.T) {
	loader := &countingLoader{
		SubjectLoader: NewStaticSubjectLoader(map[string]domain.Subject{
			"physics": sampleSubject(),
		}),
	}
	repo := NewQuestionRepository(loader, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	_, _ = repo.Questions(context.Background(), "physics")
	now = now.Add(2 * time.Minute)
	_, _ = repo.Questions(context.Background(), "physics")
	if loader.calls != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls)
	}
}

func TestQuestionRepositoryErrors(t *testing.T) {
	repo := NewQuestionRepository(NewStaticSubjectLoader(map[string]domain.Subject{
		"empty": {ID: "empty"},
	}), time.Minute)

	if _, err := repo.Questions(context.Background(), "missing"); !errors.Is(err, domain.ErrSubjectNotFound) {
		t.Fatalf("expected subject not found, got %v", err)
	}
	if _, err := repo.Questions(context.Background(), "empty"); !errors.Is(err, domain.ErrEmptyQuestionSet) {
		t.Fatalf("expected empty question set, got %v", err)
	}
}

type countingLoader struct {
	SubjectLoader
	calls int
}

func (l *countingLoader) LoadSubject(ctx context.Context, subjectID string) (domain.Subject, error) {
	l.calls++
	return l.SubjectLoader.LoadSubject(ctx, subjectID)
}

func sampleSubject() domain.Subject {
	return domain.Subject{
		ID:   "physics",
		Name: "Physics",
		Questions: []domain.Question{
			{
				ID:     "q1",
				Prompt: "What is the SI unit of force?",
				Options: []domain.Option{
					{ID: "o1", Text: "Joule", Order: 1},
					{ID: "o2", Text: "Newton", Correct: true, Order: 2},
				},
				XPReward:   10,
				CoinReward: 2,
			},
			{
				ID:     "q2",
				Prompt: "What is g on Earth (m/s^2)?",
				Options: []domain.Option{
					{ID: "o3", Text: "9.8", Correct: true, Order: 1},
					{ID: "o4", Text: "3.7", Order: 2},
				},
				XPReward:   10,
				CoinReward: 2,
			},
		},
	}
}
