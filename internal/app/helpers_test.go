package app_test

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeTickers hands out tickers that only fire when the test says so.
type fakeTickers struct {
	mu      sync.Mutex
	chans   map[time.Duration][]chan time.Time
	started int
	stopped int
}

func newFakeTickers() *fakeTickers {
	return &fakeTickers{chans: make(map[time.Duration][]chan time.Time)}
}

func (f *fakeTickers) New(d time.Duration) (<-chan time.Time, func()) {
	ch := make(chan time.Time)
	f.mu.Lock()
	f.chans[d] = append(f.chans[d], ch)
	f.started++
	f.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			f.stopped++
			f.mu.Unlock()
		})
	}
}

// Fire delivers one tick on the most recent ticker of period d.
func (f *fakeTickers) Fire(t *testing.T, d time.Duration) {
	t.Helper()
	f.mu.Lock()
	list := f.chans[d]
	f.mu.Unlock()
	if len(list) == 0 {
		t.Fatalf("no ticker with period %v", d)
	}
	select {
	case list[len(list)-1] <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatalf("ticker %v not consumed", d)
	}
}

func (f *fakeTickers) counts() (started, stopped int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started, f.stopped
}

type fixture struct {
	clock   *fakeClock
	tickers *fakeTickers
	storage *memory.KVStore
	sink    *memory.AttemptSink
	loader  *memory.StaticSubjectLoader
	cfg     app.SessionConfig
	seed    int64
}

func newFixture(subjects ...domain.Subject) *fixture {
	bySubject := make(map[string]domain.Subject, len(subjects))
	for _, s := range subjects {
		bySubject[s.ID] = s
	}
	return &fixture{
		clock:   newFakeClock(),
		tickers: newFakeTickers(),
		storage: memory.NewKVStore(),
		sink:    memory.NewAttemptSink(),
		loader:  memory.NewStaticSubjectLoader(bySubject),
		cfg:     app.DefaultSessionConfig(),
		seed:    42,
	}
}

func (f *fixture) checkpoints() *app.Checkpoints {
	return app.NewCheckpoints(f.storage, nil)
}

func (f *fixture) queue() *app.OfflineQueue {
	return app.NewOfflineQueue(f.storage, nil)
}

func (f *fixture) session(subjectID string) *app.Session {
	f.seed++
	return app.NewSession("u1", subjectID, f.cfg, app.SessionDeps{
		Source:      f.loader,
		Sink:        f.sink,
		Checkpoints: f.checkpoints(),
		Queue:       f.queue(),
		Now:         f.clock.Now,
		Rand:        rand.New(rand.NewSource(f.seed)),
		NewTicker:   f.tickers.New,
	})
}

func (f *fixture) started(t *testing.T, subjectID string) *app.Session {
	t.Helper()
	s := f.session(subjectID)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return s
}

func (f *fixture) service(t *testing.T) *app.QuizService {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return app.NewQuizService(ctx, f.cfg, app.ServiceDeps{
		Sessions:  memory.NewSessionStore(),
		Questions: f.loader,
		Sink:      f.sink,
		Storage:   f.storage,
		Now:       f.clock.Now,
		NewTicker: f.tickers.New,
		Seed:      f.seed,
	})
}

func waitDone(t *testing.T, s *app.Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session did not finish, state %s", s.State())
	}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// answerCurrent picks the correct or a wrong option of the current question.
func answerCurrent(t *testing.T, s *app.Session, correct bool) domain.AnswerFeedback {
	t.Helper()
	rec := s.Record()
	q := rec.Questions[rec.Position]
	for _, opt := range q.Options {
		if opt.Correct == correct {
			fb, err := s.SelectAnswer(opt.ID)
			if err != nil {
				t.Fatalf("select answer: %v", err)
			}
			return fb
		}
	}
	t.Fatalf("question %s has no option with correct=%v", q.ID, correct)
	return domain.AnswerFeedback{}
}

// makeSubject builds n questions worth xp/coins each; the correct option is "<qid>-ok".
func makeSubject(id string, n, xp, coins int) domain.Subject {
	subject := domain.Subject{ID: id, Name: id}
	for i := 1; i <= n; i++ {
		qid := fmt.Sprintf("%s-q%d", id, i)
		subject.Questions = append(subject.Questions, domain.Question{
			ID:          qid,
			Prompt:      fmt.Sprintf("Question %d", i),
			Explanation: fmt.Sprintf("Because %d", i),
			Options: []domain.Option{
				{ID: qid + "-no", Text: "wrong", Order: 1},
				{ID: qid + "-ok", Text: "right", Correct: true, Order: 2},
			},
			XPReward:   xp,
			CoinReward: coins,
		})
	}
	return subject
}

func checkpointExists(t *testing.T, f *fixture, subjectID string) bool {
	t.Helper()
	_, ok, err := f.checkpoints().Read(context.Background(), subjectID)
	if err != nil {
		t.Fatalf("read checkpoint: %v", err)
	}
	return ok
}
