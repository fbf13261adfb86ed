package memory

import (
	"context"
	"sync"

	"quiz-session-service/internal/domain"
)

// AttemptSink records delivered attempts in memory. Fail, when set, decides the
// outcome of each delivery instead of accepting it.
type AttemptSink struct {
	mu        sync.Mutex
	delivered []domain.SubmissionPayload
	calls     int
	fail      func(call int) error
}

func NewAttemptSink() *AttemptSink {
	return &AttemptSink{}
}

// FailWith makes every subsequent delivery return the error produced by fn.
// A nil fn restores accepting behavior.
func (s *AttemptSink) FailWith(fn func(call int) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fn
}

// SetOffline makes the sink report every delivery as unreachable.
func (s *AttemptSink) SetOffline(offline bool) {
	if offline {
		s.FailWith(func(int) error { return domain.ErrDeliveryUnreachable })
		return
	}
	s.FailWith(nil)
}

func (s *AttemptSink) Submit(_ context.Context, payload domain.SubmissionPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail != nil {
		if err := s.fail(s.calls); err != nil {
			return err
		}
	}
	s.delivered = append(s.delivered, payload)
	return nil
}

// Delivered returns accepted payloads in delivery order.
func (s *AttemptSink) Delivered() []domain.SubmissionPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SubmissionPayload(nil), s.delivered...)
}

// Calls reports how many deliveries were attempted.
func (s *AttemptSink) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
