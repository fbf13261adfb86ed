package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"quiz-session-service/internal/domain"
)

// SessionKey identifies the live session of a user for a subject.
type SessionKey struct {
	UserID    string
	SubjectID string
}

func (k SessionKey) String() string {
	return k.UserID + "/" + k.SubjectID
}

// SessionRepository abstracts where live sessions are tracked (in-memory, Redis, etc).
type SessionRepository interface {
	Get(key SessionKey) (*Session, bool)
	Put(key SessionKey, session *Session)
	// Delete removes key only while it still maps to session.
	Delete(key SessionKey, session *Session)
}

// LivenessReporter is implemented by repositories shared between instances.
// Live reports whether any instance holds a live session for key.
type LivenessReporter interface {
	Live(ctx context.Context, key SessionKey) (bool, error)
}

// ServiceDeps are the collaborators shared by every session of a QuizService.
type ServiceDeps struct {
	Sessions  SessionRepository
	Questions QuestionSource
	Sink      AttemptSink
	// Storage is scoped per user before it backs checkpoints and the offline queue.
	Storage   KeyValueStore
	Logger    logrus.FieldLogger
	Now       func() time.Time
	NewTicker TickerFunc
	Seed      int64
}

// QuizService contains the quiz session use cases.
type QuizService struct {
	ctx       context.Context
	cfg       SessionConfig
	sessions  SessionRepository
	questions QuestionSource
	sink      AttemptSink
	storage   KeyValueStore
	log       logrus.FieldLogger
	now       func() time.Time
	newTicker TickerFunc
	seed      atomic.Int64

	// keys serializes Start and Restore per (user, subject).
	keys keyedMutex
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[SessionKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// lock blocks until key is free and returns the unlock func.
func (k *keyedMutex) lock(key SessionKey) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[SessionKey]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// NewQuizService builds the service. ctx bounds background work of all sessions.
func NewQuizService(ctx context.Context, cfg SessionConfig, deps ServiceDeps) *QuizService {
	if deps.Logger == nil {
		deps.Logger = nopLogger()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewTicker == nil {
		deps.NewTicker = RealTicker
	}
	svc := &QuizService{
		ctx:       ctx,
		cfg:       cfg,
		sessions:  deps.Sessions,
		questions: deps.Questions,
		sink:      deps.Sink,
		storage:   deps.Storage,
		log:       deps.Logger,
		now:       deps.Now,
		newTicker: deps.NewTicker,
	}
	seed := deps.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	svc.seed.Store(seed)
	return svc
}

// Start begins a fresh attempt, replacing (and exiting) any live session for the subject.
// Concurrent starts for the same user and subject run one after the other.
func (s *QuizService) Start(ctx context.Context, userID, subjectID string) (*Session, error) {
	key := SessionKey{UserID: userID, SubjectID: subjectID}
	unlock := s.keys.lock(key)
	defer unlock()
	if existing, ok := s.sessions.Get(key); ok {
		switch existing.State() {
		case StateInProgress, StatePaused:
			if err := existing.Exit(ctx); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
				return nil, err
			}
		case StateSubmitting:
			return nil, &TransitionError{Op: "start", State: StateSubmitting, Reason: "previous attempt is still submitting"}
		}
	}

	session := s.newSession(userID, subjectID)
	if err := session.Start(ctx); err != nil {
		return nil, err
	}
	s.track(key, session)
	return session, nil
}

// Restore returns the live session or rebuilds it from the subject's checkpoint.
func (s *QuizService) Restore(ctx context.Context, userID, subjectID string) (*Session, error) {
	key := SessionKey{UserID: userID, SubjectID: subjectID}
	unlock := s.keys.lock(key)
	defer unlock()
	if existing, ok := s.sessions.Get(key); ok && !existing.State().Terminal() {
		return existing, nil
	}

	session := s.newSession(userID, subjectID)
	if err := session.Restore(ctx); err != nil {
		return nil, err
	}
	s.track(key, session)
	return session, nil
}

// Session returns the live session for a user and subject.
func (s *QuizService) Session(userID, subjectID string) (*Session, error) {
	session, ok := s.sessions.Get(SessionKey{UserID: userID, SubjectID: subjectID})
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// LiveElsewhere reports whether another instance holds a live session for the
// subject. It is false when this instance holds it or the repository is local.
func (s *QuizService) LiveElsewhere(ctx context.Context, userID, subjectID string) (bool, error) {
	key := SessionKey{UserID: userID, SubjectID: subjectID}
	if _, ok := s.sessions.Get(key); ok {
		return false, nil
	}
	reporter, ok := s.sessions.(LivenessReporter)
	if !ok {
		return false, nil
	}
	return reporter.Live(ctx, key)
}

// Exit discards the live session of a user for a subject.
func (s *QuizService) Exit(ctx context.Context, userID, subjectID string) error {
	session, err := s.Session(userID, subjectID)
	if err != nil {
		return err
	}
	return session.Exit(ctx)
}

// Checkpoint reports the resumable attempt of a user for a subject, if any.
func (s *QuizService) Checkpoint(ctx context.Context, userID, subjectID string) (domain.Checkpoint, bool, error) {
	return s.checkpointsFor(userID).Read(ctx, subjectID)
}

// FlushOffline replays the user's queued attempts to the sink.
func (s *QuizService) FlushOffline(ctx context.Context, userID string) (FlushReport, error) {
	if s.sink == nil {
		return FlushReport{}, domain.ErrDeliveryUnreachable
	}
	return s.queueFor(userID).Flush(ctx, s.sink)
}

// FlushAll replays queued attempts of every user found in storage.
func (s *QuizService) FlushAll(ctx context.Context) (FlushReport, error) {
	users, err := s.usersWithQueuedAttempts(ctx)
	if err != nil {
		return FlushReport{}, err
	}
	var total FlushReport
	for _, userID := range users {
		report, err := s.FlushOffline(ctx, userID)
		total.Delivered += report.Delivered
		total.Rejected += report.Rejected
		total.Remaining += report.Remaining
		if err != nil {
			return total, fmt.Errorf("flush user %s: %w", userID, err)
		}
	}
	return total, nil
}

func (s *QuizService) usersWithQueuedAttempts(ctx context.Context) ([]string, error) {
	keys, err := s.storage.Keys(ctx, "user:")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, key := range keys {
		rest := strings.TrimPrefix(key, "user:")
		escaped, item, ok := strings.Cut(rest, ":")
		if !ok || !strings.HasPrefix(item, offlineKeyPrefix) {
			continue
		}
		userID, err := url.QueryUnescape(escaped)
		if err != nil {
			s.log.WithField("key", key).Warn("skipping queue entry with malformed user segment")
			continue
		}
		seen[userID] = struct{}{}
	}
	users := make([]string, 0, len(seen))
	for userID := range seen {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users, nil
}

func (s *QuizService) newSession(userID, subjectID string) *Session {
	return NewSession(userID, subjectID, s.cfg, SessionDeps{
		Source:      s.questions,
		Sink:        s.sink,
		Checkpoints: s.checkpointsFor(userID),
		Queue:       s.queueFor(userID),
		Logger:      s.log,
		Now:         s.now,
		Rand:        rand.New(rand.NewSource(s.seed.Add(1))),
		NewTicker:   s.newTicker,
		Context:     s.ctx,
	})
}

// track registers session and forgets it once it reaches a terminal state.
func (s *QuizService) track(key SessionKey, session *Session) {
	s.sessions.Put(key, session)
	go func() {
		<-session.Done()
		s.sessions.Delete(key, session)
	}()
}

func (s *QuizService) checkpointsFor(userID string) *Checkpoints {
	return NewCheckpoints(Prefixed(s.storage, userPrefix(userID)), s.log)
}

func (s *QuizService) queueFor(userID string) *OfflineQueue {
	return NewOfflineQueue(Prefixed(s.storage, userPrefix(userID)), s.log)
}
