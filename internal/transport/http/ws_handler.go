package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

type WSHandler struct {
	service  *app.QuizService
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, log logrus.FieldLogger) *WSHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WSHandler{
		service: service,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	OptionID string `json:"optionId"`
}

type languagePayload struct {
	Language string `json:"language"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type readyPayload struct {
	SubjectID string `json:"subjectId"`
	Resumable bool   `json:"resumable"`
	// LiveElsewhere means another instance holds a live session for the subject.
	LiveElsewhere bool `json:"liveElsewhere,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and drives one quiz session per connection.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	subjectID := r.URL.Query().Get("subjectId")
	userID := UserID(r.Context())
	if subjectID == "" || userID == "" {
		writeError(w, http.StatusBadRequest, "missing subjectId or user")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	c := &wsConn{
		handler:   h,
		conn:      conn,
		log:       h.log.WithFields(logrus.Fields{"user": userID, "subject": subjectID}),
		userID:    userID,
		subjectID: subjectID,
		send:      make(chan outboundMessage, 16),
		closing:   make(chan struct{}),
	}
	c.run(r.Context())
}

// wsConn is the per-connection state. Only the read loop touches session and
// forwarder; the writer goroutine is the only one writing to conn.
type wsConn struct {
	handler   *WSHandler
	conn      *websocket.Conn
	log       logrus.FieldLogger
	userID    string
	subjectID string

	send    chan outboundMessage
	closing chan struct{}

	session   *app.Session
	forwarder *forwarder
}

type forwarder struct {
	cancel func()
	done   chan struct{}
}

func (c *wsConn) run(ctx context.Context) {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		failed := false
		for msg := range c.send {
			if failed {
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.WithError(err).Debug("ws write error")
				failed = true
				// unblock the read loop
				_ = c.conn.Close()
			}
		}
	}()

	c.greet(ctx)

	for {
		var inbound inboundMessage
		if err := c.conn.ReadJSON(&inbound); err != nil {
			break
		}
		c.handle(ctx, inbound)
	}

	close(c.closing)
	c.detach()
	c.saveOnDisconnect()
	close(c.send)
	<-writerDone
}

// greet attaches to a live session, or tells the client whether a checkpoint can be restored.
func (c *wsConn) greet(ctx context.Context) {
	if session, err := c.handler.service.Session(c.userID, c.subjectID); err == nil && !session.State().Terminal() {
		c.attach(session)
		return
	}
	_, resumable, err := c.handler.service.Checkpoint(ctx, c.userID, c.subjectID)
	if err != nil {
		c.log.WithError(err).Warn("checkpoint lookup failed")
	}
	elsewhere, err := c.handler.service.LiveElsewhere(ctx, c.userID, c.subjectID)
	if err != nil {
		c.log.WithError(err).Warn("liveness lookup failed")
	}
	c.send <- outboundMessage{Type: "ready", Payload: readyPayload{SubjectID: c.subjectID, Resumable: resumable, LiveElsewhere: elsewhere}}
}

func (c *wsConn) handle(ctx context.Context, inbound inboundMessage) {
	var err error
	switch inbound.Type {
	case "start":
		var session *app.Session
		if session, err = c.handler.service.Start(ctx, c.userID, c.subjectID); err == nil {
			c.attach(session)
		}
	case "restore":
		var session *app.Session
		if session, err = c.handler.service.Restore(ctx, c.userID, c.subjectID); err == nil {
			c.attach(session)
		}
	case "answer":
		var payload answerPayload
		if jerr := json.Unmarshal(inbound.Payload, &payload); jerr != nil || payload.OptionID == "" {
			c.sendError("bad_request", "invalid answer payload")
			return
		}
		err = c.withSession(func(s *app.Session) error {
			_, err := s.SelectAnswer(payload.OptionID)
			return err
		})
	case "next":
		err = c.withSession((*app.Session).Advance)
	case "previous":
		err = c.withSession((*app.Session).Retreat)
	case "skip":
		err = c.withSession((*app.Session).Skip)
	case "pause":
		err = c.withSession((*app.Session).Pause)
	case "resume":
		err = c.withSession((*app.Session).Resume)
	case "finish":
		err = c.withSession((*app.Session).Finish)
	case "exit":
		err = c.withSession(func(s *app.Session) error { return s.Exit(ctx) })
	case "language":
		var payload languagePayload
		if jerr := json.Unmarshal(inbound.Payload, &payload); jerr != nil {
			c.sendError("bad_request", "invalid language payload")
			return
		}
		err = c.withSession(func(s *app.Session) error {
			s.SetLanguage(payload.Language)
			return nil
		})
	default:
		c.sendError("bad_request", "unsupported message type")
		return
	}
	if err != nil {
		c.sendError(errorCode(err), err.Error())
	}
}

func (c *wsConn) withSession(fn func(*app.Session) error) error {
	if c.session == nil {
		return domain.ErrSessionNotFound
	}
	return fn(c.session)
}

// attach switches the connection to session and forwards its events.
func (c *wsConn) attach(session *app.Session) {
	c.detach()
	c.session = session
	events, cancel := session.Subscribe()
	fw := &forwarder{cancel: cancel, done: make(chan struct{})}
	c.forwarder = fw

	go func() {
		defer close(fw.done)
		for ev := range events {
			select {
			case c.send <- outboundMessage{Type: string(ev.Type), Payload: ev}:
			case <-c.closing:
				return
			}
		}
	}()
}

func (c *wsConn) detach() {
	if c.forwarder == nil {
		return
	}
	c.forwarder.cancel()
	<-c.forwarder.done
	c.forwarder = nil
}

// saveOnDisconnect keeps the attempt resumable when the client goes away mid-quiz.
func (c *wsConn) saveOnDisconnect() {
	if c.session == nil {
		return
	}
	switch c.session.State() {
	case app.StateInProgress, app.StatePaused:
	default:
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.session.SaveCheckpoint(ctx); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
		c.log.WithError(err).Warn("checkpoint on disconnect failed")
	}
}

func (c *wsConn) sendError(code, message string) {
	c.send <- outboundMessage{Type: "error", Payload: errorPayload{Code: code, Message: message}}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrAlreadyAnswered):
		return "already_answered"
	case errors.Is(err, domain.ErrOptionNotFound):
		return "option_not_found"
	case errors.Is(err, domain.ErrEmptyQuestionSet):
		return "empty_question_set"
	case errors.Is(err, domain.ErrSubjectNotFound):
		return "subject_not_found"
	case errors.Is(err, domain.ErrCheckpointNotFound):
		return "checkpoint_not_found"
	case errors.Is(err, domain.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, domain.ErrCorruptAttempt):
		return "corrupt_attempt"
	default:
		return "internal"
	}
}
