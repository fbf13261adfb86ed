package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-session-service/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Live sessions stay in a local map; their timers and subscribers are process-bound.
//   - Redis marks which (user, subject) pairs have a live session, keyed as
//     quiz:session:{userID}:{subjectID} with the attempt id as value. The TTL is
//     refreshed every ttl/2 until the session ends, so a crashed instance's
//     markers expire.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[app.SessionKey]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[app.SessionKey]*app.Session),
	}
}

func (s *SessionStore) Put(key app.SessionKey, session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[key] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(key), session.Record().AttemptID, s.ttl).Err()
	if s.ttl > 0 {
		go s.keepAlive(key, session)
	}
}

// keepAlive refreshes the marker TTL while session is live and still stored under key.
func (s *SessionStore) keepAlive(key app.SessionKey, session *app.Session) {
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-session.Done():
			return
		case <-ticker.C:
			if current, ok := s.Get(key); !ok || current != session {
				return
			}
			_ = s.client.Expire(context.Background(), s.key(key), s.ttl).Err()
		}
	}
}

func (s *SessionStore) Get(key app.SessionKey) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[key]
	return session, ok
}

func (s *SessionStore) Delete(key app.SessionKey, session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[key]
	if !ok || current != session {
		return
	}
	delete(s.sessions, key)
	_ = s.client.Del(context.Background(), s.key(key)).Err()
}

// Live reports whether any instance marked a live session for key. It implements
// app.LivenessReporter.
func (s *SessionStore) Live(ctx context.Context, key app.SessionKey) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SessionStore) key(key app.SessionKey) string {
	return "quiz:session:" + key.UserID + ":" + key.SubjectID
}
