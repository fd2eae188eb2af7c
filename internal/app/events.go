package app

import "time"

// Event types published by the attempt lifecycle.
const (
	EventAttemptStarted   = "attemptStarted"
	EventAttemptSubmitted = "attemptSubmitted"
)

// Event is an attempt lifecycle notification.
type Event struct {
	Type         string    `json:"type"`
	AttemptID    string    `json:"attemptId"`
	TestID       string    `json:"testId"`
	StudentID    string    `json:"studentId"`
	Score        float64   `json:"score,omitempty"`
	CorrectCount int       `json:"correctCount,omitempty"`
	At           time.Time `json:"at"`
}

// EventSink receives lifecycle events. Passed in explicitly; there is no
// process-wide broadcast singleton.
type EventSink interface {
	Publish(e Event)
}

// NopEventSink discards events.
type NopEventSink struct{}

func (NopEventSink) Publish(Event) {}
