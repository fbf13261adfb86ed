package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-session-service/internal/domain"
)

// SubjectLoader fetches subject content from a backing store (e.g., document DB).
type SubjectLoader interface {
	LoadSubject(ctx context.Context, subjectID string) (domain.Subject, error)
}

// QuestionRepository caches subjects with TTL to avoid repeated DB hits.
type QuestionRepository struct {
	loader SubjectLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedSubject
}

type cachedSubject struct {
	subject   domain.Subject
	expiresAt time.Time
}

func NewQuestionRepository(loader SubjectLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedSubject),
	}
}

// Questions implements app.QuestionSource.
func (r *QuestionRepository) Questions(ctx context.Context, subjectID string) ([]domain.Question, error) {
	subject, err := r.GetSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if len(subject.Questions) == 0 {
		return nil, domain.ErrEmptyQuestionSet
	}
	out := make([]domain.Question, len(subject.Questions))
	copy(out, subject.Questions)
	return out, nil
}

func (r *QuestionRepository) GetSubject(ctx context.Context, subjectID string) (domain.Subject, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[subjectID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.subject, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(subjectID, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[subjectID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.subject, nil
		}
		r.mu.RUnlock()

		subject, err := r.loader.LoadSubject(ctx, subjectID)
		if err != nil {
			return domain.Subject{}, err
		}

		r.mu.Lock()
		r.cache[subjectID] = cachedSubject{
			subject:   subject,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return subject, nil
	})
	if err != nil {
		return domain.Subject{}, err
	}
	return result.(domain.Subject), nil
}

// StaticSubjectLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticSubjectLoader struct {
	subjects map[string]domain.Subject
}

func NewStaticSubjectLoader(subjects map[string]domain.Subject) *StaticSubjectLoader {
	return &StaticSubjectLoader{subjects: subjects}
}

func (l *StaticSubjectLoader) LoadSubject(_ context.Context, subjectID string) (domain.Subject, error) {
	if subject, ok := l.subjects[subjectID]; ok {
		return subject, nil
	}
	return domain.Subject{}, domain.ErrSubjectNotFound
}

// Questions lets the static loader act as an uncached app.QuestionSource.
func (l *StaticSubjectLoader) Questions(ctx context.Context, subjectID string) ([]domain.Question, error) {
	subject, err := l.LoadSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if len(subject.Questions) == 0 {
		return nil, domain.ErrEmptyQuestionSet
	}
	return append([]domain.Question(nil), subject.Questions...), nil
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
