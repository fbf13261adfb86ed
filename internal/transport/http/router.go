package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"quiz-session-service/internal/app"
)

// RouterDeps are the handlers' collaborators. Auth nil means identity comes from userId.
type RouterDeps struct {
	Service  *app.QuizService
	Attempts AttemptLister
	Auth     *Authenticator
	Origins  []string
	Logger   logrus.FieldLogger
}

func NewRouter(deps RouterDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	origins := deps.Origins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	api := NewAPI(deps.Service, deps.Attempts, deps.Logger)
	ws := NewWSHandler(deps.Service, deps.Logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(deps.Logger), middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-User-ID"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Group(func(pr chi.Router) {
		pr.Use(Identify(deps.Auth))
		// websocket connections are long-lived; no request timeout here
		pr.Get("/ws", ws.ServeWS)

		pr.Route("/api", func(ar chi.Router) {
			ar.Use(middleware.Timeout(30 * time.Second))
			ar.Get("/sessions/{subjectID}", api.HandleSession)
			ar.Post("/sync", api.HandleSync)
			ar.Get("/quiz-attempts", api.HandleAttempts)
		})
	})
	return r
}

// requestLogger logs one line per request through logrus.
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.WithFields(logrus.Fields{
					"method":     r.Method,
					"path":       r.URL.Path,
					"status":     ww.Status(),
					"bytes":      ww.BytesWritten(),
					"duration":   time.Since(start).String(),
					"request_id": middleware.GetReqID(r.Context()),
				}).Debug("http request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
