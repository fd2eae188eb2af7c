package domain

import (
	"strings"
	"time"
)

// QuestionType discriminates the three question shapes. A passage carries
// reading material only and is never scored on its own.
type QuestionType string

const (
	QuestionMCQ     QuestionType = "mcq"
	QuestionManual  QuestionType = "manual"
	QuestionPassage QuestionType = "passage"
)

// AttemptStatus is the attempt state machine tag.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in-progress"
	AttemptCompleted  AttemptStatus = "completed"
)

// Option is one answer choice of an MCQ question.
type Option struct {
	Text     string `json:"text"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Question is the authoring-time content unit. The Type field decides which
// of the optional fields are meaningful; HasImage and Scorable keep those
// checks in one place.
type Question struct {
	ID         string       `json:"id"`
	Type       QuestionType `json:"questionType"`
	Subject    string       `json:"subject,omitempty"`
	Difficulty string       `json:"difficulty,omitempty"`
	Prompt     string       `json:"prompt"`
	ImageURL   string       `json:"imageUrl,omitempty"`

	Options []Option `json:"options,omitempty"`
	// Correct holds the indices of correct options for MCQ questions.
	// Membership, not equality: multi-correct questions accept any one.
	Correct             []int  `json:"correct,omitempty"`
	CorrectManualAnswer string `json:"correctManualAnswer,omitempty"`
	Explanation         string `json:"explanation,omitempty"`

	Marks    float64 `json:"marks"`
	Negative float64 `json:"negative"`

	// ParentQuestionID links a child question to its passage.
	ParentQuestionID string `json:"parentQuestionId,omitempty"`
}

// HasImage reports whether the question or any of its options carries an image.
func (q Question) HasImage() bool {
	if q.ImageURL != "" {
		return true
	}
	for _, opt := range q.Options {
		if opt.ImageURL != "" {
			return true
		}
	}
	return false
}

// Scorable reports whether the question participates in scoring and totals.
func (q Question) Scorable() bool {
	return q.Type != QuestionPassage
}

// FirstCorrectOptionText returns the display text of the first correct option,
// or "" when the question has no usable key. For review display only.
func (q Question) FirstCorrectOptionText() string {
	for _, idx := range q.Correct {
		if idx >= 0 && idx < len(q.Options) {
			return q.Options[idx].Text
		}
	}
	return ""
}

// Clone returns a deep copy of the question so attempt snapshots never share
// slices with the mutable pool.
func (q Question) Clone() Question {
	out := q
	if q.Options != nil {
		out.Options = make([]Option, len(q.Options))
		copy(out.Options, q.Options)
	}
	if q.Correct != nil {
		out.Correct = make([]int, len(q.Correct))
		copy(out.Correct, q.Correct)
	}
	return out
}

// CloneQuestions deep-copies a question list (the attempt snapshot).
func CloneQuestions(qs []Question) []Question {
	out := make([]Question, len(qs))
	for i, q := range qs {
		out[i] = q.Clone()
	}
	return out
}

// MockTest is an authored test: metadata plus its fixed question pool.
type MockTest struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Price           float64    `json:"price"`
	DurationMinutes int        `json:"durationMinutes"`
	TotalQuestions  int        `json:"totalQuestions"`
	Pool            []Question `json:"pool"`
}

// Answer is one entry of a finalized answer set. Value nil means unanswered.
type Answer struct {
	QuestionID string  `json:"questionId"`
	Value      *string `json:"value"`
	Correct    bool    `json:"correct"`
	Awarded    float64 `json:"awarded"`
	// CorrectAnswer is display text for review (first correct option for MCQ,
	// the stored answer for manual questions).
	CorrectAnswer string `json:"correctAnswer,omitempty"`
}

// Attempt is one student's one sitting of one test. Questions is a frozen
// deep copy taken at selection time.
type Attempt struct {
	ID           string        `json:"id"`
	TestID       string        `json:"testId"`
	StudentID    string        `json:"studentId"`
	Status       AttemptStatus `json:"status"`
	Questions    []Question    `json:"questions"`
	Answers      []Answer      `json:"answers"`
	StartedAt    time.Time     `json:"startedAt"`
	EndsAt       time.Time     `json:"endsAt"`
	SubmittedAt  *time.Time    `json:"submittedAt,omitempty"`
	Score        float64       `json:"score"`
	CorrectCount int           `json:"correctCount"`
	TotalMarks   float64       `json:"totalMarks"`
}

// Expired reports whether the wall-clock deadline has passed. The deadline is
// advisory until the next server touch; nothing flips the status proactively.
func (a Attempt) Expired(now time.Time) bool {
	return now.After(a.EndsAt)
}

// Order records a settled purchase covering one or more tests. It authorizes
// exactly one attempt; AttemptUsed flips when that right is consumed.
type Order struct {
	ID          string   `json:"id"`
	StudentID   string   `json:"studentId"`
	TestIDs     []string `json:"testIds"`
	Settled     bool     `json:"settled"`
	AttemptUsed bool     `json:"attemptUsed"`
}

// Covers reports whether the order includes the given test.
func (o Order) Covers(testID string) bool {
	for _, id := range o.TestIDs {
		if id == testID {
			return true
		}
	}
	return false
}

// NormalizeManualAnswer reduces a free-response answer to its comparison
// form: trimmed and lower-cased.
func NormalizeManualAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
