package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"testseries-attempt-service/internal/domain"
)

// maxAttemptsPerTest caps paid-test sittings absent an unused entitlement.
const maxAttemptsPerTest = 1

// TestRepository loads test content (from cache/backing store).
type TestRepository interface {
	GetTest(ctx context.Context, testID string) (domain.MockTest, error)
}

// AttemptStore abstracts how attempts are persisted (in-memory, Postgres).
//
// Create must refuse a second in-progress attempt for the same student and
// test with domain.ErrAttemptInProgress; Finalize must refuse an attempt
// that is no longer in progress with domain.ErrAlreadySubmitted. Those two
// checks are the compare-and-set boundary the double-start and double-submit
// races rely on.
type AttemptStore interface {
	Create(ctx context.Context, a domain.Attempt) error
	Get(ctx context.Context, attemptID string) (domain.Attempt, error)
	FindInProgress(ctx context.Context, studentID, testID string) (domain.Attempt, bool, error)
	CountByStudentTest(ctx context.Context, studentID, testID string) (int, error)
	Finalize(ctx context.Context, a domain.Attempt) error
}

// EntitlementLedger exposes purchase records gating paid tests. Consume is a
// compare-and-set: it fails with domain.ErrEntitlementUsed when the order was
// already spent.
type EntitlementLedger interface {
	FindUnused(ctx context.Context, studentID, testID string) (domain.Order, bool, error)
	Consume(ctx context.Context, orderID string) error
	Release(ctx context.Context, orderID string) error
}

// AttemptService is the attempt lifecycle orchestrator: it gates starts,
// freezes question snapshots, evaluates expiry lazily and finalizes exactly
// one submission per attempt.
type AttemptService struct {
	tests    TestRepository
	attempts AttemptStore
	ledger   EntitlementLedger
	events   EventSink
	clock    func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewAttemptService(tests TestRepository, attempts AttemptStore, ledger EntitlementLedger, events EventSink) *AttemptService {
	if events == nil {
		events = NopEventSink{}
	}
	return &AttemptService{
		tests:    tests,
		attempts: attempts,
		ledger:   ledger,
		events:   events,
		clock:    time.Now,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithClock overrides the wall clock for deterministic tests.
func (s *AttemptService) WithClock(now func() time.Time) *AttemptService {
	s.clock = now
	return s
}

// WithRand overrides the selection RNG for deterministic tests.
func (s *AttemptService) WithRand(rnd *rand.Rand) *AttemptService {
	s.rnd = rnd
	return s
}

// StartResult is what a successful (or resumed) start returns to the client.
type StartResult struct {
	AttemptID string            `json:"attemptId"`
	EndsAt    time.Time         `json:"endsAt"`
	Resumed   bool              `json:"resumed"`
	Questions []domain.Question `json:"questions"`
}

// AttemptView is the client-facing shape of an attempt, redacted per status.
type AttemptView struct {
	AttemptID    string               `json:"attemptId"`
	TestID       string               `json:"testId"`
	Status       domain.AttemptStatus `json:"status"`
	StartedAt    time.Time            `json:"startedAt"`
	EndsAt       time.Time            `json:"endsAt"`
	SubmittedAt  *time.Time           `json:"submittedAt,omitempty"`
	Score        float64              `json:"score"`
	CorrectCount int                  `json:"correctCount"`
	TotalMarks   float64              `json:"totalMarks"`
	Questions    []domain.Question    `json:"questions"`
	Answers      []domain.Answer      `json:"answers"`
}

// SubmitResult summarizes one graded submission.
type SubmitResult struct {
	AttemptID    string          `json:"attemptId"`
	Score        float64         `json:"score"`
	CorrectCount int             `json:"correctCount"`
	TotalMarks   float64         `json:"totalMarks"`
	Answers      []domain.Answer `json:"answers"`
}

// Start opens (or resumes) the student's attempt at a test.
//
// An existing in-progress attempt is returned as-is when its deadline has
// not passed: no new selection runs, no state changes. Past the deadline the
// caller gets domain.ErrAttemptExpired and must submit to close the attempt.
//
// A fresh start on a paid test consumes an unused entitlement when one
// exists; without one the student must still be under the attempt quota.
// Free tests skip the gate entirely.
func (s *AttemptService) Start(ctx context.Context, studentID, testID string) (StartResult, error) {
	if studentID == "" || testID == "" {
		return StartResult{}, fmt.Errorf("%w: student and test ids are required", domain.ErrValidation)
	}
	now := s.clock()

	if existing, ok, err := s.attempts.FindInProgress(ctx, studentID, testID); err != nil {
		return StartResult{}, fmt.Errorf("find in-progress attempt: %w", err)
	} else if ok {
		if existing.Expired(now) {
			return StartResult{}, domain.ErrAttemptExpired
		}
		return StartResult{
			AttemptID: existing.ID,
			EndsAt:    existing.EndsAt,
			Resumed:   true,
			Questions: RedactQuestions(existing.Questions, existing.Status),
		}, nil
	}

	test, err := s.tests.GetTest(ctx, testID)
	if err != nil {
		return StartResult{}, err
	}

	var consumedOrder string
	if test.Price > 0 {
		consumedOrder, err = s.passPaidGate(ctx, studentID, testID)
		if err != nil {
			return StartResult{}, err
		}
	}

	s.mu.Lock()
	selected := Select(test.Pool, test.TotalQuestions, s.rnd)
	attemptID := fmt.Sprintf("att-%08x%08x", s.rnd.Uint32(), s.rnd.Uint32())
	s.mu.Unlock()

	attempt := domain.Attempt{
		ID:        attemptID,
		TestID:    testID,
		StudentID: studentID,
		Status:    domain.AttemptInProgress,
		Questions: domain.CloneQuestions(selected),
		StartedAt: now,
		EndsAt:    now.Add(time.Duration(test.DurationMinutes) * time.Minute),
	}

	if err := s.attempts.Create(ctx, attempt); err != nil {
		if consumedOrder != "" {
			if relErr := s.ledger.Release(ctx, consumedOrder); relErr != nil {
				return StartResult{}, fmt.Errorf("release entitlement %s after failed create: %w", consumedOrder, relErr)
			}
		}
		if errors.Is(err, domain.ErrAttemptInProgress) {
			// Lost a double-start race: hand back the winner's attempt.
			if winner, ok, findErr := s.attempts.FindInProgress(ctx, studentID, testID); findErr == nil && ok {
				return StartResult{
					AttemptID: winner.ID,
					EndsAt:    winner.EndsAt,
					Resumed:   true,
					Questions: RedactQuestions(winner.Questions, winner.Status),
				}, nil
			}
		}
		return StartResult{}, fmt.Errorf("create attempt: %w", err)
	}

	s.events.Publish(Event{
		Type:      EventAttemptStarted,
		AttemptID: attempt.ID,
		TestID:    testID,
		StudentID: studentID,
		At:        now,
	})

	return StartResult{
		AttemptID: attempt.ID,
		EndsAt:    attempt.EndsAt,
		Questions: RedactQuestions(attempt.Questions, attempt.Status),
	}, nil
}

// passPaidGate admits a fresh paid start and returns the consumed order id,
// if any. The entitlement flip happens before the attempt row is written;
// Start releases it when the write fails, so the flag never stays flipped
// without a corresponding attempt.
func (s *AttemptService) passPaidGate(ctx context.Context, studentID, testID string) (string, error) {
	if order, ok, err := s.ledger.FindUnused(ctx, studentID, testID); err != nil {
		return "", fmt.Errorf("find entitlement: %w", err)
	} else if ok {
		switch err := s.ledger.Consume(ctx, order.ID); {
		case err == nil:
			return order.ID, nil
		case errors.Is(err, domain.ErrEntitlementUsed):
			// raced with another consumer; fall through to the quota check
		default:
			return "", fmt.Errorf("consume entitlement: %w", err)
		}
	}

	prior, err := s.attempts.CountByStudentTest(ctx, studentID, testID)
	if err != nil {
		return "", fmt.Errorf("count attempts: %w", err)
	}
	if prior >= maxAttemptsPerTest {
		return "", domain.ErrAttemptLimit
	}
	return "", nil
}

// Load returns the attempt for review or resumption, redacted per status.
// An in-progress attempt past its deadline fails with ErrAttemptExpired; the
// client is expected to submit immediately.
func (s *AttemptService) Load(ctx context.Context, attemptID, studentID string) (AttemptView, error) {
	if attemptID == "" || studentID == "" {
		return AttemptView{}, fmt.Errorf("%w: attempt and student ids are required", domain.ErrValidation)
	}
	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return AttemptView{}, err
	}
	if attempt.StudentID != studentID {
		return AttemptView{}, domain.ErrForbidden
	}
	if attempt.Status == domain.AttemptInProgress && attempt.Expired(s.clock()) {
		return AttemptView{}, domain.ErrAttemptExpired
	}
	return AttemptView{
		AttemptID:    attempt.ID,
		TestID:       attempt.TestID,
		Status:       attempt.Status,
		StartedAt:    attempt.StartedAt,
		EndsAt:       attempt.EndsAt,
		SubmittedAt:  attempt.SubmittedAt,
		Score:        attempt.Score,
		CorrectCount: attempt.CorrectCount,
		TotalMarks:   attempt.TotalMarks,
		Questions:    RedactQuestions(attempt.Questions, attempt.Status),
		Answers:      attempt.Answers,
	}, nil
}

// Submit grades the answer set and finalizes the attempt. It is the only
// transition to completed and works past the deadline too; that is how an
// expired attempt closes without losing the student's answers.
func (s *AttemptService) Submit(ctx context.Context, attemptID, studentID string, answers map[string]*string) (SubmitResult, error) {
	if attemptID == "" || studentID == "" {
		return SubmitResult{}, fmt.Errorf("%w: attempt and student ids are required", domain.ErrValidation)
	}
	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return SubmitResult{}, err
	}
	if attempt.StudentID != studentID {
		return SubmitResult{}, domain.ErrForbidden
	}
	if attempt.Status == domain.AttemptCompleted {
		return SubmitResult{}, domain.ErrAlreadySubmitted
	}

	summary := ScoreAttempt(attempt.Questions, answers)
	now := s.clock()
	attempt.Answers = summary.Answers
	attempt.Score = summary.Score
	attempt.CorrectCount = summary.CorrectCount
	attempt.TotalMarks = summary.TotalMarks
	attempt.Status = domain.AttemptCompleted
	attempt.SubmittedAt = &now

	if err := s.attempts.Finalize(ctx, attempt); err != nil {
		return SubmitResult{}, err
	}

	s.events.Publish(Event{
		Type:         EventAttemptSubmitted,
		AttemptID:    attempt.ID,
		TestID:       attempt.TestID,
		StudentID:    studentID,
		Score:        summary.Score,
		CorrectCount: summary.CorrectCount,
		At:           now,
	})

	return SubmitResult{
		AttemptID:    attempt.ID,
		Score:        summary.Score,
		CorrectCount: summary.CorrectCount,
		TotalMarks:   summary.TotalMarks,
		Answers:      summary.Answers,
	}, nil
}
