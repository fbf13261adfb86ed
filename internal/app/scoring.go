package app

import (
	"math"

	"quiz-session-service/internal/domain"
)

// ScorePercentage returns round(100*correct/answered), or 0 when nothing was answered.
func ScorePercentage(correct, answered int) int {
	if answered <= 0 {
		return 0
	}
	// integer form of floor(100*c/n + 0.5)
	return (200*correct + answered) / (2 * answered)
}

// BonusMultiplier scales rewards by the final score percentage.
func BonusMultiplier(percentage int) float64 {
	switch {
	case percentage >= 80:
		return 1.5
	case percentage >= 60:
		return 1.2
	default:
		return 1.0
	}
}

// ScoreAttempt scores answers against questions. Answers to question ids that
// are not in questions are ignored. Rewards are summed first and rounded once.
func ScoreAttempt(questions []domain.Question, answers map[string]string) domain.Score {
	byID := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	score := domain.Score{TotalQuestions: len(questions)}
	baseXP, baseCoins := 0, 0
	for questionID, optionID := range answers {
		q, ok := byID[questionID]
		if !ok {
			continue
		}
		score.AnsweredCount++
		if isCorrect(q, optionID) {
			score.CorrectCount++
			baseXP += q.XPReward
			baseCoins += q.CoinReward
		}
	}

	score.ScorePercentage = ScorePercentage(score.CorrectCount, score.AnsweredCount)
	score.Multiplier = BonusMultiplier(score.ScorePercentage)
	score.XPEarned = int(math.Round(float64(baseXP) * score.Multiplier))
	score.CoinsEarned = int(math.Round(float64(baseCoins) * score.Multiplier))
	return score
}

func isCorrect(q domain.Question, optionID string) bool {
	opt, ok := q.Option(optionID)
	return ok && opt.Correct
}
