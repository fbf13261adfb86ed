package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"quiz-session-service/internal/domain"
)

// SubjectLoader fetches subject content from a backing store (e.g., Postgres).
type SubjectLoader interface {
	LoadSubject(ctx context.Context, subjectID string) (domain.Subject, error)
}

// QuestionRepository caches whole subjects as JSON in Redis and falls back to a loader on cache miss.
// Subjects are stored as: SET quiz:subject:{subjectID} <json> EX ttl
type QuestionRepository struct {
	client *redis.Client
	loader SubjectLoader
	ttl    time.Duration
	log    logrus.FieldLogger
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionRepository(client *redis.Client, loader SubjectLoader, ttl time.Duration, log logrus.FieldLogger) *QuestionRepository {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &QuestionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		log:    log,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
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
	return subject.Questions, nil
}

func (r *QuestionRepository) GetSubject(ctx context.Context, subjectID string) (domain.Subject, error) {
	if subject, ok := r.cached(ctx, subjectID); ok {
		return subject, nil
	}

	result, err, _ := r.sf.Do(subjectID, func() (interface{}, error) {
		// Re-check cache in case another instance filled it.
		if subject, ok := r.cached(ctx, subjectID); ok {
			return subject, nil
		}

		subject, err := r.loader.LoadSubject(ctx, subjectID)
		if err != nil {
			return domain.Subject{}, err
		}

		data, err := json.Marshal(subject)
		if err == nil {
			err = r.client.Set(ctx, r.key(subjectID), data, r.ttlWithJitter()).Err()
		}
		if err != nil {
			r.log.WithField("subject", subjectID).WithError(err).Warn("could not cache subject")
		}
		return subject, nil
	})
	if err != nil {
		return domain.Subject{}, err
	}
	return result.(domain.Subject), nil
}

// Invalidate drops the cached copy so the next read reloads it.
func (r *QuestionRepository) Invalidate(ctx context.Context, subjectID string) error {
	return r.client.Del(ctx, r.key(subjectID)).Err()
}

func (r *QuestionRepository) cached(ctx context.Context, subjectID string) (domain.Subject, bool) {
	data, err := r.client.Get(ctx, r.key(subjectID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.WithField("subject", subjectID).WithError(err).Warn("subject cache read failed")
		}
		return domain.Subject{}, false
	}
	var subject domain.Subject
	if err := json.Unmarshal(data, &subject); err != nil {
		r.log.WithField("subject", subjectID).WithError(err).Warn("dropping undecodable cached subject")
		return domain.Subject{}, false
	}
	return subject, true
}

func (r *QuestionRepository) key(subjectID string) string {
	return "quiz:subject:" + subjectID
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
