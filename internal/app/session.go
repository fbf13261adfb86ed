package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"quiz-session-service/internal/domain"
)

// QuestionSource supplies the questions of a subject.
type QuestionSource interface {
	Questions(ctx context.Context, subjectID string) ([]domain.Question, error)
}

// AttemptSink persists finished attempts remotely. A nil error means accepted;
// errors matching domain.ErrDeliveryUnreachable or domain.ErrDeliveryRejected
// classify the failure, anything else is transient.
type AttemptSink interface {
	Submit(ctx context.Context, payload domain.SubmissionPayload) error
}

// State is the lifecycle position of a Session.
type State int

const (
	StateNotStarted State = iota
	StateInProgress
	StatePaused
	StateSubmitting
	StateCompleted
	StateExited
)

var stateNames = map[State]string{
	StateNotStarted: "not_started",
	StateInProgress: "in_progress",
	StatePaused:     "paused",
	StateSubmitting: "submitting",
	StateCompleted:  "completed",
	StateExited:     "exited",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateExited
}

// TransitionError reports an operation that the current state does not allow.
type TransitionError struct {
	Op     string
	State  State
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s not allowed in state %s: %s", e.Op, e.State, e.Reason)
	}
	return fmt.Sprintf("%s not allowed in state %s", e.Op, e.State)
}

func (e *TransitionError) Is(target error) bool {
	return target == domain.ErrInvalidTransition
}

// SessionConfig controls timing of a session.
type SessionConfig struct {
	TimeLimit          time.Duration
	TimerEnabled       bool
	TickInterval       time.Duration
	CheckpointInterval time.Duration
	DeliveryTimeout    time.Duration
}

// DefaultSessionConfig is a one hour countdown with checkpoints every five seconds.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		TimeLimit:          time.Hour,
		TimerEnabled:       true,
		TickInterval:       time.Second,
		CheckpointInterval: 5 * time.Second,
		DeliveryTimeout:    10 * time.Second,
	}
}

func (c SessionConfig) withDefaults() SessionConfig {
	def := DefaultSessionConfig()
	if c.TimeLimit <= 0 {
		c.TimeLimit = def.TimeLimit
	}
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = def.CheckpointInterval
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = def.DeliveryTimeout
	}
	return c
}

// SessionDeps are the collaborators of a Session. Source and Checkpoints are required.
type SessionDeps struct {
	Source      QuestionSource
	Sink        AttemptSink
	Checkpoints CheckpointStore
	Queue       AttemptQueue
	Logger      logrus.FieldLogger
	Now         func() time.Time
	Rand        *rand.Rand
	NewTicker   TickerFunc
	// Context bounds background work (tick loop, delivery).
	Context context.Context
}

// Session owns one quiz attempt from start to submission.
type Session struct {
	userID    string
	subjectID string
	cfg       SessionConfig

	source      QuestionSource
	sink        AttemptSink
	checkpoints CheckpointStore
	queue       AttemptQueue
	log         logrus.FieldLogger
	now         func() time.Time
	newTicker   TickerFunc
	baseCtx     context.Context

	mu              sync.Mutex
	rnd             *rand.Rand
	state           State
	record          domain.AttemptRecord
	language        string
	questionShownAt time.Time
	pausedAt        time.Time
	timers          *timerHandle
	subscribers     map[chan Event]struct{}
	done            chan struct{}
	result          *SubmitResult
}

func NewSession(userID, subjectID string, cfg SessionConfig, deps SessionDeps) *Session {
	if deps.Logger == nil {
		deps.Logger = nopLogger()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if deps.NewTicker == nil {
		deps.NewTicker = RealTicker
	}
	if deps.Context == nil {
		deps.Context = context.Background()
	}
	return &Session{
		userID:      userID,
		subjectID:   subjectID,
		cfg:         cfg.withDefaults(),
		source:      deps.Source,
		sink:        deps.Sink,
		checkpoints: deps.Checkpoints,
		queue:       deps.Queue,
		log: deps.Logger.WithFields(logrus.Fields{
			"user":    userID,
			"subject": subjectID,
		}),
		now:         deps.Now,
		newTicker:   deps.NewTicker,
		baseCtx:     deps.Context,
		rnd:         deps.Rand,
		state:       StateNotStarted,
		subscribers: make(map[chan Event]struct{}),
		done:        make(chan struct{}),
	}
}

// Start fetches and shuffles the subject's questions and begins the attempt.
func (s *Session) Start(ctx context.Context) error {
	if err := s.requireState("start", StateNotStarted); err != nil {
		return err
	}

	questions, err := s.source.Questions(ctx, s.subjectID)
	if err != nil {
		return fmt.Errorf("fetch questions: %w", err)
	}
	if len(questions) == 0 {
		return domain.ErrEmptyQuestionSet
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateNotStarted {
		return &TransitionError{Op: "start", State: s.state}
	}

	now := s.now()
	s.record = domain.AttemptRecord{
		AttemptID:     uuid.NewString(),
		UserID:        s.userID,
		SubjectID:     s.subjectID,
		Questions:     shuffleQuestions(s.rnd, questions),
		Answers:       make(map[string]string),
		QuestionTimes: make(map[string]int),
		TimerEnabled:  s.cfg.TimerEnabled,
		StartedAt:     now.UTC(),
	}
	if s.record.TimerEnabled {
		s.record.RemainingSeconds = int(s.cfg.TimeLimit / time.Second)
	}
	if err := s.checkpoints.Clear(ctx, s.subjectID); err != nil {
		s.log.WithError(err).Warn("could not clear previous checkpoint")
	}

	s.state = StateInProgress
	s.questionShownAt = now
	s.log = s.log.WithField("attempt", s.record.AttemptID)
	s.log.WithField("questions", len(s.record.Questions)).Info("quiz session started")
	s.startTimersLocked()
	s.broadcastLocked(Event{Type: EventSnapshot})
	return nil
}

// Restore resumes the attempt stored in the subject's checkpoint. The stored
// question order is kept; questions that disappeared from the source are dropped
// together with their answers.
func (s *Session) Restore(ctx context.Context) error {
	if err := s.requireState("restore", StateNotStarted); err != nil {
		return err
	}

	cp, ok, err := s.checkpoints.Read(ctx, s.subjectID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrCheckpointNotFound
	}

	record := cp.AttemptRecord
	current, err := s.source.Questions(ctx, s.subjectID)
	switch {
	case err == nil:
		record = reconcile(record, current)
	case errors.Is(err, domain.ErrSubjectNotFound), errors.Is(err, domain.ErrEmptyQuestionSet):
		record = reconcile(record, nil)
	default:
		s.log.WithError(err).Warn("question source unavailable, restoring stored questions")
	}
	if len(record.Questions) == 0 {
		if err := s.checkpoints.Clear(ctx, s.subjectID); err != nil {
			s.log.WithError(err).Warn("could not clear stale checkpoint")
		}
		return domain.ErrCheckpointNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateNotStarted {
		return &TransitionError{Op: "restore", State: s.state}
	}

	now := s.now()
	record.UserID = s.userID
	s.record = record
	s.questionShownAt = now
	s.log = s.log.WithField("attempt", record.AttemptID)
	s.log.WithFields(logrus.Fields{
		"position": record.Position,
		"answered": len(record.Answers),
	}).Info("quiz session restored")

	if record.Paused {
		s.state = StatePaused
		s.pausedAt = now
		s.broadcastLocked(Event{Type: EventSnapshot})
		return nil
	}
	s.state = StateInProgress
	if record.TimerEnabled && record.RemainingSeconds <= 0 {
		s.beginSubmitLocked("time expired")
		return nil
	}
	s.startTimersLocked()
	s.broadcastLocked(Event{Type: EventSnapshot})
	return nil
}

// SelectAnswer records optionID for the current question and returns correctness feedback.
func (s *Session) SelectAnswer(optionID string) (domain.AnswerFeedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return domain.AnswerFeedback{}, &TransitionError{Op: "select answer", State: s.state}
	}
	if err := s.guardLocked(); err != nil {
		return domain.AnswerFeedback{}, err
	}

	q := s.record.Questions[s.record.Position]
	if _, answered := s.record.Answers[q.ID]; answered {
		return domain.AnswerFeedback{}, domain.ErrAlreadyAnswered
	}
	if _, ok := q.Option(optionID); !ok {
		return domain.AnswerFeedback{}, domain.ErrOptionNotFound
	}

	elapsed := s.now().Sub(s.questionShownAt)
	s.record.QuestionTimes[q.ID] = int(math.Round(elapsed.Seconds()))
	s.record.Answers[q.ID] = optionID

	fb := feedbackFor(q.Localized(s.language), optionID)
	s.broadcastLocked(Event{Type: EventFeedback, Feedback: &fb})
	return fb, nil
}

// Advance moves past an answered question. On the last question it submits.
func (s *Session) Advance() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return &TransitionError{Op: "advance", State: s.state}
	}
	if err := s.guardLocked(); err != nil {
		return err
	}
	q := s.record.Questions[s.record.Position]
	if _, answered := s.record.Answers[q.ID]; !answered {
		return &TransitionError{Op: "advance", State: s.state, Reason: "current question is unanswered"}
	}
	if s.record.Position == len(s.record.Questions)-1 {
		s.beginSubmitLocked("last question")
		return nil
	}
	s.moveLocked(1)
	return nil
}

// Skip moves to the next question without answering. Not valid on the last question.
func (s *Session) Skip() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return &TransitionError{Op: "skip", State: s.state}
	}
	if err := s.guardLocked(); err != nil {
		return err
	}
	if s.record.Position == len(s.record.Questions)-1 {
		return &TransitionError{Op: "skip", State: s.state, Reason: "already on the last question"}
	}
	s.moveLocked(1)
	return nil
}

// Retreat goes back one question. Recorded answers are left untouched.
func (s *Session) Retreat() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return &TransitionError{Op: "retreat", State: s.state}
	}
	if err := s.guardLocked(); err != nil {
		return err
	}
	if s.record.Position == 0 {
		return &TransitionError{Op: "retreat", State: s.state, Reason: "already on the first question"}
	}
	s.moveLocked(-1)
	return nil
}

// Pause suspends the countdown and periodic checkpoints.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return &TransitionError{Op: "pause", State: s.state}
	}
	s.stopTimersLocked()
	s.state = StatePaused
	s.record.Paused = true
	s.pausedAt = s.now()
	s.broadcastLocked(Event{Type: EventSnapshot})
	return nil
}

// Resume restarts the countdown after Pause. Time spent paused is not charged
// to the current question.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused {
		return &TransitionError{Op: "resume", State: s.state}
	}
	if !s.pausedAt.IsZero() {
		s.questionShownAt = s.questionShownAt.Add(s.now().Sub(s.pausedAt))
		s.pausedAt = time.Time{}
	}
	s.state = StateInProgress
	s.record.Paused = false
	s.startTimersLocked()
	s.broadcastLocked(Event{Type: EventSnapshot})
	return nil
}

// Finish submits the attempt before the last question is reached.
func (s *Session) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return &TransitionError{Op: "finish", State: s.state}
	}
	if err := s.guardLocked(); err != nil {
		return err
	}
	s.beginSubmitLocked("finished by user")
	return nil
}

// Exit discards the attempt without scoring or delivery.
func (s *Session) Exit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress && s.state != StatePaused {
		return &TransitionError{Op: "exit", State: s.state}
	}
	s.clearCheckpointLocked(ctx)
	s.log.Info("quiz session exited")
	s.record = domain.AttemptRecord{}
	s.teardownLocked(StateExited, Event{Type: EventExited})
	return nil
}

// Tick applies one countdown tick. At zero remaining time the attempt is submitted.
func (s *Session) Tick() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickLocked()
}

func (s *Session) tickLocked() error {
	if s.state != StateInProgress {
		return &TransitionError{Op: "tick", State: s.state}
	}
	if !s.record.TimerEnabled {
		return nil
	}
	if err := s.guardLocked(); err != nil {
		return err
	}
	s.record.RemainingSeconds--
	if s.record.RemainingSeconds <= 0 {
		s.record.RemainingSeconds = 0
		s.beginSubmitLocked("time expired")
		return nil
	}
	s.broadcastLocked(Event{Type: EventSnapshot})
	return nil
}

// SaveCheckpoint writes the current attempt to the checkpoint store.
func (s *Session) SaveCheckpoint(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress && s.state != StatePaused {
		return &TransitionError{Op: "checkpoint", State: s.state}
	}
	return s.writeCheckpointLocked(ctx)
}

// SetLanguage selects the translation used in snapshots and feedback.
func (s *Session) SetLanguage(lang string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.language = lang
	if !s.state.Terminal() {
		s.broadcastLocked(Event{Type: EventSnapshot})
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a read-only view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Record returns a copy of the attempt record.
func (s *Session) Record() domain.AttemptRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyRecord(s.record)
}

// Done is closed once the session is Completed or Exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Result returns the submission outcome once the session is Completed.
func (s *Session) Result() (SubmitResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return SubmitResult{}, false
	}
	return *s.result, true
}

// Subscribe returns a channel of session events, starting with the current snapshot.
// The channel is closed when the session ends; call cancel to stop listening earlier.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 8)

	s.mu.Lock()
	initial := Event{Type: EventSnapshot, Snapshot: s.snapshotLocked()}
	switch s.state {
	case StateCompleted:
		initial.Type = EventCompleted
		initial.Result = s.result
	case StateExited:
		initial.Type = EventExited
	}
	ch <- initial
	if s.state.Terminal() {
		close(ch)
		s.mu.Unlock()
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) requireState(op string, want State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != want {
		return &TransitionError{Op: op, State: s.state}
	}
	return nil
}

func (s *Session) moveLocked(delta int) {
	s.record.Position += delta
	s.questionShownAt = s.now()
	s.broadcastLocked(Event{Type: EventSnapshot})
}

// beginSubmitLocked freezes the record and hands the payload to the delivery goroutine.
func (s *Session) beginSubmitLocked(reason string) {
	s.stopTimersLocked()
	s.state = StateSubmitting
	s.record.Completed = true
	s.record.Paused = false

	score := ScoreAttempt(s.record.Questions, s.record.Answers)
	payload := s.payloadLocked(score)
	s.log.WithFields(logrus.Fields{
		"reason":   reason,
		"answered": score.AnsweredCount,
		"correct":  score.CorrectCount,
	}).Info("submitting quiz attempt")
	s.broadcastLocked(Event{Type: EventSubmitting})

	go s.deliver(payload)
}

func (s *Session) payloadLocked(score domain.Score) domain.SubmissionPayload {
	payload := domain.SubmissionPayload{
		AttemptID:   s.record.AttemptID,
		UserID:      s.record.UserID,
		SubjectID:   s.record.SubjectID,
		Questions:   make([]domain.SubmissionItem, 0, len(s.record.Answers)),
		Score:       score,
		CompletedAt: s.now().UTC(),
	}
	// shuffled order keeps the payload stable for a given attempt
	for _, q := range s.record.Questions {
		optionID, ok := s.record.Answers[q.ID]
		if !ok {
			continue
		}
		payload.Questions = append(payload.Questions, domain.SubmissionItem{
			QuestionID:       q.ID,
			SelectedOptionID: optionID,
			TimeTakenSeconds: s.record.QuestionTimes[q.ID],
			Correct:          isCorrect(q, optionID),
		})
	}
	return payload
}

func (s *Session) deliver(payload domain.SubmissionPayload) {
	ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.DeliveryTimeout)
	defer cancel()

	result := SubmitResult{Score: payload.Score, Payload: payload}
	status, err := s.deliverWithRetry(ctx, payload)
	result.Status = status
	result.Err = err

	log := s.log.WithField("status", status)
	switch status {
	case domain.DeliveryAccepted:
		log.Info("quiz attempt delivered")
	case domain.DeliveryRejected:
		result.Notice = "The attempt was rejected by the server; results are kept locally only."
		log.WithError(err).Warn("quiz attempt rejected")
	case domain.DeliveryQueued:
		result.Notice = "Quiz saved offline. It will sync when online."
		if s.queue == nil {
			result.Notice = "Quiz could not be delivered and no offline queue is configured."
			log.WithError(err).Error("dropping undeliverable quiz attempt")
			break
		}
		qctx, qcancel := s.storageContext()
		key, qerr := s.queue.Enqueue(qctx, payload)
		qcancel()
		if qerr != nil {
			result.Notice = "Quiz could not be delivered or saved offline."
			result.Err = errors.Join(err, qerr)
			log.WithError(qerr).Error("could not queue quiz attempt")
			break
		}
		result.QueueKey = key
		log.WithError(err).WithField("key", key).Warn("quiz attempt queued offline")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	clearCtx, clearCancel := s.storageContext()
	defer clearCancel()
	s.clearCheckpointLocked(clearCtx)
	s.result = &result
	s.teardownLocked(StateCompleted, Event{Type: EventCompleted, Result: &result})
}

// deliverWithRetry retries a transient failure once before falling back to the queue.
func (s *Session) deliverWithRetry(ctx context.Context, payload domain.SubmissionPayload) (domain.DeliveryStatus, error) {
	if s.sink == nil {
		return domain.DeliveryQueued, domain.ErrDeliveryUnreachable
	}
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		err := s.sink.Submit(ctx, payload)
		switch {
		case err == nil:
			return domain.DeliveryAccepted, nil
		case errors.Is(err, domain.ErrDeliveryUnreachable):
			return domain.DeliveryQueued, err
		case errors.Is(err, domain.ErrDeliveryRejected):
			return domain.DeliveryRejected, err
		}
		lastErr = err
		s.log.WithError(err).WithField("try", attempt).Warn("quiz attempt delivery failed")
	}
	return domain.DeliveryQueued, lastErr
}

// teardownLocked is the single path into a terminal state.
func (s *Session) teardownLocked(final State, ev Event) {
	s.stopTimersLocked()
	s.state = final
	s.broadcastLocked(ev)
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
	close(s.done)
}

func (s *Session) clearCheckpointLocked(ctx context.Context) {
	if err := s.checkpoints.Clear(ctx, s.subjectID); err != nil {
		s.log.WithError(err).Warn("could not clear checkpoint")
	}
}

// storageContext outlives cancellation of the base context so local cleanup still runs on shutdown.
func (s *Session) storageContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(s.baseCtx), s.cfg.DeliveryTimeout)
}

func (s *Session) writeCheckpointLocked(ctx context.Context) error {
	return s.checkpoints.Write(ctx, s.subjectID, s.record)
}

// guardLocked verifies record invariants and discards a corrupted attempt.
func (s *Session) guardLocked() error {
	err := checkRecord(s.record)
	if err == nil {
		return nil
	}
	s.log.WithError(err).Error("attempt state corrupted, discarding session")
	ctx, cancel := s.storageContext()
	defer cancel()
	s.clearCheckpointLocked(ctx)
	s.record = domain.AttemptRecord{}
	s.teardownLocked(StateExited, Event{Type: EventExited})
	return fmt.Errorf("%w: %v", domain.ErrCorruptAttempt, err)
}

func checkRecord(r domain.AttemptRecord) error {
	n := len(r.Questions)
	if n == 0 {
		return errors.New("no questions")
	}
	if r.Position < 0 || r.Position >= n {
		return fmt.Errorf("position %d outside [0,%d]", r.Position, n-1)
	}
	ids := make(map[string]struct{}, n)
	for _, q := range r.Questions {
		ids[q.ID] = struct{}{}
	}
	for questionID := range r.Answers {
		if _, ok := ids[questionID]; !ok {
			return fmt.Errorf("answer for unknown question %q", questionID)
		}
	}
	return nil
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		AttemptID:        s.record.AttemptID,
		SubjectID:        s.subjectID,
		State:            s.state,
		Position:         s.record.Position,
		TotalQuestions:   len(s.record.Questions),
		AnsweredCount:    len(s.record.Answers),
		RemainingSeconds: s.record.RemainingSeconds,
		TimerEnabled:     s.record.TimerEnabled,
	}
	if (s.state == StateInProgress || s.state == StatePaused) &&
		s.record.Position >= 0 && s.record.Position < len(s.record.Questions) {
		q := s.record.Questions[s.record.Position]
		snap.Current = newQuestionView(q, s.language, s.record.Answers[q.ID])
	}
	return snap
}

func (s *Session) broadcastLocked(ev Event) {
	ev.Snapshot = s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// drop the oldest event so slow consumers never block the session
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

func shuffleQuestions(rnd *rand.Rand, questions []domain.Question) []domain.Question {
	out := make([]domain.Question, len(questions))
	copy(out, questions)
	for i := len(out) - 1; i > 0; i-- {
		j := rnd.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// reconcile refreshes stored questions from current content, dropping removed
// questions and their answers. The position follows the question it pointed at;
// if that one was removed it moves to the next surviving question, else the last.
func reconcile(record domain.AttemptRecord, current []domain.Question) domain.AttemptRecord {
	byID := make(map[string]domain.Question, len(current))
	for _, q := range current {
		byID[q.ID] = q
	}

	out := record
	out.Questions = make([]domain.Question, 0, len(record.Questions))
	out.Answers = make(map[string]string, len(record.Answers))
	out.QuestionTimes = make(map[string]int, len(record.QuestionTimes))
	position := -1
	for i, stored := range record.Questions {
		q, ok := byID[stored.ID]
		if !ok {
			continue
		}
		if position < 0 && i >= record.Position {
			position = len(out.Questions)
		}
		out.Questions = append(out.Questions, q)
		if optionID, answered := record.Answers[q.ID]; answered {
			out.Answers[q.ID] = optionID
		}
		if secs, ok := record.QuestionTimes[q.ID]; ok {
			out.QuestionTimes[q.ID] = secs
		}
	}
	if position < 0 {
		position = len(out.Questions) - 1
	}
	if position < 0 {
		position = 0
	}
	out.Position = position
	return out
}

func copyRecord(r domain.AttemptRecord) domain.AttemptRecord {
	out := r
	out.Questions = append([]domain.Question(nil), r.Questions...)
	out.Answers = make(map[string]string, len(r.Answers))
	for k, v := range r.Answers {
		out.Answers[k] = v
	}
	out.QuestionTimes = make(map[string]int, len(r.QuestionTimes))
	for k, v := range r.QuestionTimes {
		out.QuestionTimes[k] = v
	}
	return out
}

func nopLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
