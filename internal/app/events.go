package app

import "quiz-session-service/internal/domain"

// EventType names a session notification.
type EventType string

const (
	EventSnapshot   EventType = "snapshot"
	EventFeedback   EventType = "feedback"
	EventSubmitting EventType = "submitting"
	EventCompleted  EventType = "completed"
	EventExited     EventType = "exited"
)

// Event is pushed to subscribers after every state change.
type Event struct {
	Type     EventType              `json:"type"`
	Snapshot Snapshot               `json:"snapshot"`
	Feedback *domain.AnswerFeedback `json:"feedback,omitempty"`
	Result   *SubmitResult          `json:"result,omitempty"`
}

// Snapshot is a read-only view of a session for presentation layers.
type Snapshot struct {
	AttemptID        string        `json:"attemptId"`
	SubjectID        string        `json:"subjectId"`
	State            State         `json:"state"`
	Position         int           `json:"position"`
	TotalQuestions   int           `json:"totalQuestions"`
	AnsweredCount    int           `json:"answeredCount"`
	RemainingSeconds int           `json:"remainingSeconds"`
	TimerEnabled     bool          `json:"timerEnabled"`
	Current          *QuestionView `json:"current,omitempty"`
}

// QuestionView is a question as shown to the student. Correctness is only
// revealed through Feedback once the question is answered.
type QuestionView struct {
	ID               string                 `json:"id"`
	Prompt           string                 `json:"prompt"`
	Difficulty       string                 `json:"difficulty,omitempty"`
	XPReward         int                    `json:"xpReward"`
	CoinReward       int                    `json:"coinReward"`
	Options          []OptionView           `json:"options"`
	SelectedOptionID string                 `json:"selectedOptionId,omitempty"`
	Feedback         *domain.AnswerFeedback `json:"feedback,omitempty"`
}

// OptionView hides the correctness flag of an option.
type OptionView struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Order int    `json:"order"`
}

// SubmitResult is the outcome of a finished attempt.
type SubmitResult struct {
	Score    domain.Score             `json:"score"`
	Payload  domain.SubmissionPayload `json:"payload"`
	Status   domain.DeliveryStatus    `json:"status"`
	QueueKey string                   `json:"queueKey,omitempty"`
	Notice   string                   `json:"notice,omitempty"`
	Err      error                    `json:"-"`
}

func newQuestionView(q domain.Question, lang, selected string) *QuestionView {
	q = q.Localized(lang)
	view := &QuestionView{
		ID:         q.ID,
		Prompt:     q.Prompt,
		Difficulty: q.Difficulty,
		XPReward:   q.XPReward,
		CoinReward: q.CoinReward,
		Options:    make([]OptionView, 0, len(q.Options)),
	}
	for _, opt := range q.Options {
		view.Options = append(view.Options, OptionView{ID: opt.ID, Text: opt.Text, Order: opt.Order})
	}
	if selected != "" {
		view.SelectedOptionID = selected
		fb := feedbackFor(q, selected)
		view.Feedback = &fb
	}
	return view
}

func feedbackFor(q domain.Question, optionID string) domain.AnswerFeedback {
	fb := domain.AnswerFeedback{
		QuestionID:  q.ID,
		OptionID:    optionID,
		Correct:     isCorrect(q, optionID),
		Explanation: q.Explanation,
	}
	if correct, ok := q.CorrectOption(); ok {
		fb.CorrectOptionID = correct.ID
	}
	if fb.Correct {
		fb.XPReward = q.XPReward
		fb.CoinReward = q.CoinReward
	}
	return fb
}
