package app

import "testseries-attempt-service/internal/domain"

// RedactQuestion strips answer-revealing fields from a question served for a
// live attempt. Once the attempt is completed everything passes through so
// the student can review. Works on a value copy; the stored snapshot is
// never mutated.
func RedactQuestion(q domain.Question, status domain.AttemptStatus) domain.Question {
	if status == domain.AttemptCompleted {
		return q
	}
	q.Correct = nil
	q.CorrectManualAnswer = ""
	q.Explanation = ""
	return q
}

// RedactQuestions applies RedactQuestion to a whole snapshot.
func RedactQuestions(qs []domain.Question, status domain.AttemptStatus) []domain.Question {
	out := make([]domain.Question, len(qs))
	for i, q := range qs {
		out[i] = RedactQuestion(q, status)
	}
	return out
}
