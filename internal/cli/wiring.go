package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/config"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
	"quiz-session-service/internal/infra/postgres"
	redisinfra "quiz-session-service/internal/infra/redis"
	"quiz-session-service/internal/infra/remote"
	"quiz-session-service/internal/infra/sqlite"
	"quiz-session-service/internal/logging"
	transport "quiz-session-service/internal/transport/http"
)

// backend holds the collaborators selected from config and the resources to release.
type backend struct {
	cfg       config.Config
	log       *logrus.Logger
	sessions  app.SessionRepository
	questions app.QuestionSource
	sink      app.AttemptSink
	storage   app.KeyValueStore
	attempts  transport.AttemptLister
	closers   []func() error
}

func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *backend) service(ctx context.Context) *app.QuizService {
	return app.NewQuizService(ctx, b.cfg.Session(), app.ServiceDeps{
		Sessions:  b.sessions,
		Questions: b.questions,
		Sink:      b.sink,
		Storage:   b.storage,
		Logger:    b.log,
		Seed:      time.Now().UnixNano(),
	})
}

// openBackend wires storage, content, and delivery from cfg. Postgres is
// migrated before use when configured.
func openBackend(ctx context.Context, cfg config.Config) (_ *backend, err error) {
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	b := &backend{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = b.Close()
		}
	}()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, redisClient.Close)
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 30*time.Minute)

	var (
		pool *pgxpool.Pool
		db   *bun.DB
	)
	if cfg.Postgres.URL != "" {
		db = openBun(cfg.Postgres.URL)
		b.closers = append(b.closers, db.Close)
		if err := migrateDB(ctx, db, log); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() error { pool.Close(); return nil })
	}

	var loader memory.SubjectLoader = memory.NewStaticSubjectLoader(sampleSubjects())
	if pool != nil {
		loader = postgres.NewQuestionLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if redisClient != nil {
		b.questions = redisinfra.NewQuestionRepository(redisClient, loader, quizTTL, log)
		b.sessions = redisinfra.NewSessionStore(redisClient, redisTTL)
	} else {
		b.questions = memory.NewQuestionRepository(loader, quizTTL)
		b.sessions = memory.NewSessionStore()
	}

	switch {
	case cfg.SQLite.Path != "":
		store, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, store.Close)
		b.storage = store
	case redisClient != nil:
		b.storage = redisinfra.NewKVStore(redisClient, "quiz:kv:", 0)
	default:
		log.Warn("no durable storage configured; checkpoints and queued attempts live in memory")
		b.storage = memory.NewKVStore()
	}

	if db != nil {
		store := postgres.NewAttemptSink(db)
		b.attempts = store
		b.sink = store
	}
	if cfg.Sink.URL != "" {
		timeout := config.TTLDuration(cfg.Sink.Timeout, 10*time.Second)
		b.sink = remote.NewAttemptClient(cfg.Sink.URL, cfg.Sink.Token, timeout, nil)
	}
	if b.sink == nil {
		log.Warn("no attempt sink configured; finished attempts are queued offline")
	}

	log.WithFields(logrus.Fields{
		"redis":    redisClient != nil,
		"postgres": db != nil,
		"sqlite":   cfg.SQLite.Path,
		"sink":     sinkName(cfg, db != nil),
	}).Info("backend ready")
	return b, nil
}

func sinkName(cfg config.Config, hasPostgres bool) string {
	switch {
	case cfg.Sink.URL != "":
		return "remote"
	case hasPostgres:
		return "postgres"
	default:
		return "none"
	}
}

// sampleSubjects is the built-in content used when no database is configured.
func sampleSubjects() map[string]domain.Subject {
	return map[string]domain.Subject{
		"arithmetic": {
			ID:   "arithmetic",
			Name: "Arithmetic",
			Slug: "arithmetic",
			Questions: []domain.Question{
				{
					ID:     "arith-1",
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "arith-1-a", Text: "3", Order: 1},
						{ID: "arith-1-b", Text: "4", Correct: true, Order: 2},
						{ID: "arith-1-c", Text: "5", Order: 3},
					},
					Explanation: "Two pairs make four.",
					Difficulty:  "easy",
					XPReward:    10,
					CoinReward:  2,
					Translations: []domain.QuestionTranslation{
						{Language: "es", Prompt: "¿Cuánto es 2 + 2?", Explanation: "Dos pares son cuatro."},
					},
				},
				{
					ID:     "arith-2",
					Prompt: "What is 7 x 6?",
					Options: []domain.Option{
						{ID: "arith-2-a", Text: "42", Correct: true, Order: 1},
						{ID: "arith-2-b", Text: "36", Order: 2},
						{ID: "arith-2-c", Text: "48", Order: 3},
					},
					Explanation: "Seven sixes are forty-two.",
					Difficulty:  "medium",
					XPReward:    20,
					CoinReward:  4,
				},
				{
					ID:     "arith-3",
					Prompt: "What is 15 / 3?",
					Options: []domain.Option{
						{ID: "arith-3-a", Text: "3", Order: 1},
						{ID: "arith-3-b", Text: "5", Correct: true, Order: 2},
						{ID: "arith-3-c", Text: "45", Order: 3},
					},
					Explanation: "Three fives make fifteen.",
					Difficulty:  "easy",
					XPReward:    10,
					CoinReward:  2,
				},
			},
		},
	}
}
