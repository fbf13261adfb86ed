package domain

import "time"

// OptionTranslation carries localized option text.
type OptionTranslation struct {
	Language string `json:"languageCode"`
	Text     string `json:"optionText"`
}

// Option represents a possible answer for a question.
type Option struct {
	ID           string              `json:"id"`
	Text         string              `json:"text"`
	Correct      bool                `json:"correct"`
	Order        int                 `json:"order"`
	Translations []OptionTranslation `json:"translations,omitempty"`
}

// QuestionTranslation carries localized prompt and explanation text.
type QuestionTranslation struct {
	Language    string `json:"languageCode"`
	Prompt      string `json:"questionText"`
	Explanation string `json:"explanation"`
}

// Question models an MCQ question. Exactly one option is expected to be correct,
// but the data does not enforce it.
type Question struct {
	ID           string                `json:"id"`
	Prompt       string                `json:"prompt"`
	Options      []Option              `json:"options"`
	Explanation  string                `json:"explanation"`
	Difficulty   string                `json:"difficulty,omitempty"`
	XPReward     int                   `json:"xpReward"`
	CoinReward   int                   `json:"coinReward"`
	Translations []QuestionTranslation `json:"translations,omitempty"`
}

// CorrectOption returns the first option flagged correct.
func (q Question) CorrectOption() (Option, bool) {
	for _, opt := range q.Options {
		if opt.Correct {
			return opt, true
		}
	}
	return Option{}, false
}

// Option looks up an option by id.
func (q Question) Option(optionID string) (Option, bool) {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return opt, true
		}
	}
	return Option{}, false
}

// Localized returns a copy with prompt, explanation and option texts translated
// to lang. Missing translations keep the original text.
func (q Question) Localized(lang string) Question {
	out := q
	out.Options = make([]Option, len(q.Options))
	copy(out.Options, q.Options)
	if lang == "" || lang == "en" {
		return out
	}
	for _, t := range q.Translations {
		if t.Language == lang {
			out.Prompt = t.Prompt
			out.Explanation = t.Explanation
			break
		}
	}
	for i, opt := range out.Options {
		for _, t := range opt.Translations {
			if t.Language == lang {
				out.Options[i].Text = t.Text
				break
			}
		}
	}
	return out
}

// Subject is a named collection of questions.
type Subject struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Slug      string     `json:"slug"`
	Questions []Question `json:"questions"`
}

// AttemptRecord is the mutable state of one quiz attempt.
type AttemptRecord struct {
	AttemptID        string            `json:"attemptId"`
	UserID           string            `json:"userId"`
	SubjectID        string            `json:"subjectId"`
	Questions        []Question        `json:"questions"`
	Answers          map[string]string `json:"answers"`
	QuestionTimes    map[string]int    `json:"questionTimes"`
	Position         int               `json:"position"`
	RemainingSeconds int               `json:"remainingSeconds"`
	TimerEnabled     bool              `json:"timerEnabled"`
	Paused           bool              `json:"paused"`
	Completed        bool              `json:"completed"`
	StartedAt        time.Time         `json:"startedAt"`
}

// Checkpoint is a durable snapshot of an in-progress AttemptRecord.
type Checkpoint struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"savedAt"`
	AttemptRecord
}

// SubmissionItem is one answered question inside a SubmissionPayload.
type SubmissionItem struct {
	QuestionID       string `json:"questionId"`
	SelectedOptionID string `json:"selectedOptionId"`
	TimeTakenSeconds int    `json:"timeTakenSeconds"`
	Correct          bool   `json:"isCorrect"`
}

// SubmissionPayload is what gets delivered to the attempt sink.
type SubmissionPayload struct {
	AttemptID   string           `json:"attemptId"`
	UserID      string           `json:"userId,omitempty"`
	SubjectID   string           `json:"subjectId"`
	Questions   []SubmissionItem `json:"questions"`
	Score       Score            `json:"score"`
	CompletedAt time.Time        `json:"completedAt"`
}

// TotalTimeSeconds sums the per-question times.
func (p SubmissionPayload) TotalTimeSeconds() int {
	total := 0
	for _, item := range p.Questions {
		total += item.TimeTakenSeconds
	}
	return total
}

// Score summarizes an attempt.
type Score struct {
	TotalQuestions  int     `json:"totalQuestions"`
	AnsweredCount   int     `json:"answeredCount"`
	CorrectCount    int     `json:"correctCount"`
	ScorePercentage int     `json:"scorePercentage"`
	Multiplier      float64 `json:"multiplier"`
	XPEarned        int     `json:"xpEarned"`
	CoinsEarned     int     `json:"coinsEarned"`
}

// DeliveryStatus describes how a finished attempt left the session.
type DeliveryStatus string

const (
	DeliveryAccepted DeliveryStatus = "accepted"
	DeliveryQueued   DeliveryStatus = "queued"
	DeliveryRejected DeliveryStatus = "rejected"
)

// AnswerFeedback is returned after an answer is recorded.
type AnswerFeedback struct {
	QuestionID      string `json:"questionId"`
	OptionID        string `json:"optionId"`
	Correct         bool   `json:"correct"`
	CorrectOptionID string `json:"correctOptionId"`
	Explanation     string `json:"explanation"`
	XPReward        int    `json:"xpReward"`
	CoinReward      int    `json:"coinReward"`
}

// AttemptSummary is a stored attempt as listed for progress views.
type AttemptSummary struct {
	AttemptID       string    `json:"attemptId"`
	SubjectID       string    `json:"subjectId"`
	AnsweredCount   int       `json:"questionsAnswered"`
	CorrectCount    int       `json:"correctAnswers"`
	ScorePercentage int       `json:"scorePercentage"`
	XPEarned        int       `json:"xpEarned"`
	CoinsEarned     int       `json:"coinsEarned"`
	CompletedAt     time.Time `json:"completedAt"`
}
