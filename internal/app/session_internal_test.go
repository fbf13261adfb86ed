package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-session-service/internal/domain"
)

type staticSource []domain.Question

func (s staticSource) Questions(context.Context, string) ([]domain.Question, error) {
	return s, nil
}

type mapKV map[string][]byte

func (m mapKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m mapKV) Set(_ context.Context, key string, value []byte) error {
	m[key] = value
	return nil
}

func (m mapKV) Remove(_ context.Context, key string) error {
	delete(m, key)
	return nil
}

func (m mapKV) Keys(context.Context, string) ([]string, error) {
	return nil, nil
}

func TestCorruptedRecordForcesExit(t *testing.T) {
	questions := staticSource{
		{ID: "q1", Options: []domain.Option{{ID: "o1", Correct: true}}},
		{ID: "q2", Options: []domain.Option{{ID: "o2", Correct: true}}},
	}
	kv := mapKV{}
	cfg := DefaultSessionConfig()
	cfg.TimerEnabled = false
	s := NewSession("u1", "math", cfg, SessionDeps{
		Source:      questions,
		Checkpoints: NewCheckpoints(kv, nil),
		NewTicker: func(time.Duration) (<-chan time.Time, func()) {
			return nil, func() {}
		},
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.SaveCheckpoint(context.Background()); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}

	s.mu.Lock()
	s.record.Position = 7
	s.mu.Unlock()

	err := s.Advance()
	if !errors.Is(err, domain.ErrCorruptAttempt) {
		t.Fatalf("expected corrupt attempt, got %v", err)
	}
	if s.State() != StateExited {
		t.Fatalf("expected exited, got %s", s.State())
	}
	if len(kv) != 0 {
		t.Fatalf("expected checkpoint cleared, got %v", kv)
	}
	select {
	case <-s.Done():
	default:
		t.Fatalf("expected done closed")
	}
}

func TestReconcileClampsPosition(t *testing.T) {
	record := domain.AttemptRecord{
		Questions: []domain.Question{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		Answers:   map[string]string{"a": "x", "c": "y"},
		Position:  2,
	}
	out := reconcile(record, []domain.Question{{ID: "a"}, {ID: "b"}})
	if len(out.Questions) != 2 || out.Position != 1 {
		t.Fatalf("unexpected reconcile result %+v", out)
	}
	if _, ok := out.Answers["c"]; ok || out.Answers["a"] != "x" {
		t.Fatalf("unexpected answers %v", out.Answers)
	}
}

func TestReconcileFollowsCurrentQuestion(t *testing.T) {
	stored := []domain.Question{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	tests := []struct {
		name     string
		position int
		current  []domain.Question
		wantID   string
	}{
		{name: "earlier question removed", position: 1, current: []domain.Question{{ID: "b"}, {ID: "c"}}, wantID: "b"},
		{name: "current question removed", position: 1, current: []domain.Question{{ID: "a"}, {ID: "c"}, {ID: "d"}}, wantID: "c"},
		{name: "current and later removed", position: 2, current: []domain.Question{{ID: "a"}, {ID: "b"}}, wantID: "b"},
		{name: "nothing removed", position: 3, current: stored, wantID: "d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := reconcile(domain.AttemptRecord{Questions: stored, Position: tt.position}, tt.current)
			if got := out.Questions[out.Position].ID; got != tt.wantID {
				t.Fatalf("expected position on %q, got %q (position %d)", tt.wantID, got, out.Position)
			}
		})
	}
}
