package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
)

func TestQuizServiceStartReplacesLiveSession(t *testing.T) {
	f := newFixture(makeSubject("math", 3, 10, 2))
	svc := f.service(t)
	ctx := context.Background()

	first, err := svc.Start(ctx, "u1", "math")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	second, err := svc.Start(ctx, "u1", "math")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if first == second {
		t.Fatalf("expected a new session")
	}
	if first.State() != app.StateExited {
		t.Fatalf("expected previous session exited, got %s", first.State())
	}

	live, err := svc.Session("u1", "math")
	if err != nil || live != second {
		t.Fatalf("expected second session to be live, err=%v", err)
	}
}

func TestQuizServiceSessionNotFound(t *testing.T) {
	f := newFixture(makeSubject("math", 3, 10, 2))
	svc := f.service(t)
	if _, err := svc.Session("u1", "math"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
	if err := svc.Exit(context.Background(), "u1", "math"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
}

func TestQuizServiceForgetsFinishedSessions(t *testing.T) {
	f := newFixture(makeSubject("math", 1, 10, 2))
	svc := f.service(t)
	ctx := context.Background()

	s, err := svc.Start(ctx, "u1", "math")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	answerCurrent(t, s, true)
	if err := s.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	waitDone(t, s)
	eventually(t, "session forgotten", func() bool {
		_, err := svc.Session("u1", "math")
		return errors.Is(err, domain.ErrSessionNotFound)
	})
}

func TestQuizServiceRestore(t *testing.T) {
	f := newFixture(makeSubject("math", 3, 10, 2))
	ctx := context.Background()

	svc := f.service(t)
	s, err := svc.Start(ctx, "u1", "math")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if same, err := svc.Restore(ctx, "u1", "math"); err != nil || same != s {
		t.Fatalf("expected live session from restore, err=%v", err)
	}
	answerCurrent(t, s, true)
	if err := s.SaveCheckpoint(ctx); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
	cp, ok, err := svc.Checkpoint(ctx, "u1", "math")
	if err != nil || !ok || cp.AttemptID != s.Record().AttemptID {
		t.Fatalf("expected checkpoint for the attempt, ok=%v err=%v", ok, err)
	}
	if _, ok, _ := svc.Checkpoint(ctx, "u2", "math"); ok {
		t.Fatalf("checkpoints must be scoped per user")
	}

	// a fresh process sees only storage
	restarted := f.service(t)
	restored, err := restarted.Restore(ctx, "u1", "math")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Record().AttemptID != s.Record().AttemptID || len(restored.Record().Answers) != 1 {
		t.Fatalf("unexpected restored record %+v", restored.Record())
	}
	if _, err := restarted.Restore(ctx, "u2", "math"); !errors.Is(err, domain.ErrCheckpointNotFound) {
		t.Fatalf("expected checkpoint not found for other user, got %v", err)
	}
}

func TestQuizServiceFlushAll(t *testing.T) {
	f := newFixture(makeSubject("math", 1, 10, 2))
	f.sink.SetOffline(true)
	svc := f.service(t)
	ctx := context.Background()

	for _, user := range []string{"u1", "u2"} {
		s, err := svc.Start(ctx, user, "math")
		if err != nil {
			t.Fatalf("start %s: %v", user, err)
		}
		answerCurrent(t, s, true)
		_ = s.Advance()
		waitDone(t, s)
		if res, _ := s.Result(); res.Status != domain.DeliveryQueued {
			t.Fatalf("expected queued, got %s", res.Status)
		}
	}

	report, err := svc.FlushAll(ctx)
	if err != nil {
		t.Fatalf("flush while offline: %v", err)
	}
	if report.Delivered != 0 || report.Remaining != 2 {
		t.Fatalf("unexpected offline report %+v", report)
	}

	f.sink.SetOffline(false)
	report, err = svc.FlushAll(ctx)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if report.Delivered != 2 || report.Remaining != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	users := map[string]bool{}
	for _, p := range f.sink.Delivered() {
		users[p.UserID] = true
	}
	if !users["u1"] || !users["u2"] {
		t.Fatalf("expected both users delivered, got %v", users)
	}
}

// slowSource delays every fetch so concurrent callers overlap.
type slowSource struct {
	next  app.QuestionSource
	delay time.Duration
}

func (s slowSource) Questions(ctx context.Context, subjectID string) ([]domain.Question, error) {
	time.Sleep(s.delay)
	return s.next.Questions(ctx, subjectID)
}

func (f *fixture) slowService(t *testing.T) *app.QuizService {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return app.NewQuizService(ctx, f.cfg, app.ServiceDeps{
		Sessions:  memory.NewSessionStore(),
		Questions: slowSource{next: f.loader, delay: 20 * time.Millisecond},
		Sink:      f.sink,
		Storage:   f.storage,
		Now:       f.clock.Now,
		NewTicker: f.tickers.New,
		Seed:      f.seed,
	})
}

func TestQuizServiceConcurrentStartsLeaveOneLiveSession(t *testing.T) {
	f := newFixture(makeSubject("math", 3, 10, 2))
	svc := f.slowService(t)
	ctx := context.Background()

	const n = 4
	sessions := make([]*app.Session, n)
	errs := make([]error, n)
	gate := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-gate
			sessions[i], errs[i] = svc.Start(ctx, "u1", "math")
		}(i)
	}
	close(gate)
	wg.Wait()

	tracked, err := svc.Session("u1", "math")
	if err != nil {
		t.Fatalf("expected a tracked session: %v", err)
	}
	live := 0
	for i, s := range sessions {
		if errs[i] != nil {
			t.Fatalf("start %d: %v", i, errs[i])
		}
		if s.State().Terminal() {
			continue
		}
		live++
		if s != tracked {
			t.Fatalf("session %d is live but not tracked", i)
		}
	}
	if live != 1 {
		t.Fatalf("expected exactly one live session, got %d", live)
	}
	for _, s := range sessions {
		if s != tracked && s.State() != app.StateExited {
			t.Fatalf("replaced session left in %s", s.State())
		}
	}
}

func TestQuizServiceConcurrentRestoresShareOneSession(t *testing.T) {
	f := newFixture(makeSubject("math", 3, 10, 2))
	ctx := context.Background()

	s, err := f.service(t).Start(ctx, "u1", "math")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.SaveCheckpoint(ctx); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}

	// another instance sharing storage
	svc := f.slowService(t)
	var (
		wg       sync.WaitGroup
		restored [2]*app.Session
		errs     [2]error
	)
	for i := range restored {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			restored[i], errs[i] = svc.Restore(ctx, "u1", "math")
		}(i)
	}
	wg.Wait()
	if errs[0] != nil || errs[1] != nil {
		t.Fatalf("restore: %v / %v", errs[0], errs[1])
	}
	if restored[0] != restored[1] {
		t.Fatalf("concurrent restores built two sessions")
	}
}

func TestQuizServiceFlushAllWithColonInUserID(t *testing.T) {
	f := newFixture(makeSubject("math", 1, 10, 2))
	f.sink.SetOffline(true)
	svc := f.service(t)
	ctx := context.Background()

	s, err := svc.Start(ctx, "org:42", "math")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	answerCurrent(t, s, true)
	_ = s.Advance()
	waitDone(t, s)

	f.sink.SetOffline(false)
	report, err := svc.FlushAll(ctx)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if report.Delivered != 1 {
		t.Fatalf("expected the queued attempt delivered, got %+v", report)
	}
	if got := f.sink.Delivered(); len(got) != 1 || got[0].UserID != "org:42" {
		t.Fatalf("unexpected deliveries %+v", got)
	}
}
