package submissions

import "github.com/classpulse/backend/internal/models"

// ScoreQuiz returns the score as a percentage of the maximum attainable
// points. Unanswered questions (-1) score nothing.
func ScoreQuiz(cfg models.QuizConfig, answers []int) float64 {
	maxPoints := cfg.MaxPoints()
	if maxPoints == 0 {
		return 0
	}
	earned := 0
	for i, q := range cfg.Questions {
		if i < len(answers) && answers[i] == q.CorrectIndex {
			earned += q.Points
		}
	}
	return float64(earned) / float64(maxPoints) * 100
}
