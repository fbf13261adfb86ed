package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

// AttemptLister lists stored attempts of a user (postgres.AttemptSink).
type AttemptLister interface {
	Attempts(ctx context.Context, userID string, limit int) ([]domain.AttemptSummary, error)
}

type API struct {
	service  *app.QuizService
	attempts AttemptLister
	log      logrus.FieldLogger
}

func NewAPI(service *app.QuizService, attempts AttemptLister, log logrus.FieldLogger) *API {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &API{service: service, attempts: attempts, log: log}
}

type sessionResponse struct {
	Live          bool          `json:"live"`
	LiveElsewhere bool          `json:"liveElsewhere,omitempty"`
	Snapshot  *app.Snapshot `json:"snapshot,omitempty"`
	Resumable bool          `json:"resumable"`
	Position  int           `json:"position,omitempty"`
	Answered  int           `json:"answered,omitempty"`
	Remaining int           `json:"remainingSeconds,omitempty"`
	Total     int           `json:"totalQuestions,omitempty"`
	SavedAt   *time.Time    `json:"savedAt,omitempty"`
}

// HandleSession reports the live session or resumable checkpoint for a subject.
func (a *API) HandleSession(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())
	subjectID := chi.URLParam(r, "subjectID")

	if session, err := a.service.Session(userID, subjectID); err == nil {
		snap := session.Snapshot()
		writeJSON(w, http.StatusOK, sessionResponse{Live: true, Snapshot: &snap, Resumable: !snap.State.Terminal()})
		return
	}

	elsewhere, err := a.service.LiveElsewhere(r.Context(), userID, subjectID)
	if err != nil {
		a.log.WithError(err).Warn("liveness lookup failed")
	}
	cp, ok, err := a.service.Checkpoint(r.Context(), userID, subjectID)
	if err != nil {
		a.log.WithError(err).Warn("checkpoint lookup failed")
		writeServiceError(w, err)
		return
	}
	if !ok {
		if elsewhere {
			writeJSON(w, http.StatusOK, sessionResponse{LiveElsewhere: true})
			return
		}
		writeError(w, http.StatusNotFound, "no session")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		LiveElsewhere: elsewhere,
		Resumable:     true,
		Position:      cp.Position,
		Answered:      len(cp.Answers),
		Remaining:     cp.RemainingSeconds,
		Total:         len(cp.Questions),
		SavedAt:       &cp.SavedAt,
	})
}

// HandleSync replays the caller's offline queue.
func (a *API) HandleSync(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.FlushOffline(r.Context(), UserID(r.Context()))
	if err != nil {
		a.log.WithError(err).Warn("offline sync failed")
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleAttempts lists the caller's stored attempts.
func (a *API) HandleAttempts(w http.ResponseWriter, r *http.Request) {
	if a.attempts == nil {
		writeError(w, http.StatusNotFound, "attempt history not configured")
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	attempts, err := a.attempts.Attempts(r.Context(), UserID(r.Context()), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}
