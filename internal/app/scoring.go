package app

import (
	"strconv"
	"strings"

	"testseries-attempt-service/internal/domain"
)

// ScoreSummary is the outcome of grading one finalized answer set against
// the attempt's frozen question snapshot.
type ScoreSummary struct {
	Score        float64
	CorrectCount int
	TotalMarks   float64
	Answers      []domain.Answer
}

// ScoreAttempt grades submitted answers against the snapshot. Passages are
// excluded from totals and results entirely. A nil value (or a missing key)
// is unanswered and scores zero; any non-null value counts as answered, so a
// wrong answer costs the question's negative marks.
//
// MCQ submissions are compared numerically against the correct-index set;
// membership suffices, so multi-correct questions accept any listed index.
// Manual submissions compare case-insensitively after trimming whitespace.
func ScoreAttempt(questions []domain.Question, submitted map[string]*string) ScoreSummary {
	summary := ScoreSummary{}
	for _, q := range questions {
		if !q.Scorable() {
			continue
		}
		summary.TotalMarks += q.Marks

		answer := domain.Answer{QuestionID: q.ID}
		value := submitted[q.ID]
		answer.Value = value

		switch q.Type {
		case domain.QuestionManual:
			answer.CorrectAnswer = q.CorrectManualAnswer
			if value == nil || strings.TrimSpace(*value) == "" {
				break
			}
			if domain.NormalizeManualAnswer(*value) == domain.NormalizeManualAnswer(q.CorrectManualAnswer) {
				answer.Correct = true
				answer.Awarded = q.Marks
			} else {
				answer.Awarded = -q.Negative
			}
		default:
			answer.CorrectAnswer = q.FirstCorrectOptionText()
			if value == nil {
				break
			}
			if idx, err := strconv.Atoi(strings.TrimSpace(*value)); err == nil && containsIndex(q.Correct, idx) {
				answer.Correct = true
				answer.Awarded = q.Marks
			} else {
				answer.Awarded = -q.Negative
			}
		}

		if answer.Correct {
			summary.CorrectCount++
		}
		summary.Score += answer.Awarded
		summary.Answers = append(summary.Answers, answer)
	}
	return summary
}

func containsIndex(set []int, idx int) bool {
	for _, v := range set {
		if v == idx {
			return true
		}
	}
	return false
}
