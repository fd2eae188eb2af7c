package memory

import (
	"context"
	"sync"

	"testseries-attempt-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptStore.
//
// The in-progress index is maintained under the same write lock as the
// attempt map, so a double-start race cannot create two live attempts for
// one (student, test) pair.
type AttemptStore struct {
	mu         sync.RWMutex
	attempts   map[string]domain.Attempt
	inProgress map[string]string // student|test -> attempt id
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts:   make(map[string]domain.Attempt),
		inProgress: make(map[string]string),
	}
}

func (s *AttemptStore) Create(_ context.Context, a domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := indexKey(a.StudentID, a.TestID)
	if _, ok := s.inProgress[key]; ok {
		return domain.ErrAttemptInProgress
	}
	s.attempts[a.ID] = cloneAttempt(a)
	s.inProgress[key] = a.ID
	return nil
}

func (s *AttemptStore) Get(_ context.Context, attemptID string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return cloneAttempt(a), nil
}

func (s *AttemptStore) FindInProgress(_ context.Context, studentID, testID string) (domain.Attempt, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.inProgress[indexKey(studentID, testID)]
	if !ok {
		return domain.Attempt{}, false, nil
	}
	return cloneAttempt(s.attempts[id]), true, nil
}

func (s *AttemptStore) CountByStudentTest(_ context.Context, studentID, testID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, a := range s.attempts {
		if a.StudentID == studentID && a.TestID == testID {
			count++
		}
	}
	return count, nil
}

func (s *AttemptStore) Finalize(_ context.Context, a domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.attempts[a.ID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if stored.Status != domain.AttemptInProgress {
		return domain.ErrAlreadySubmitted
	}
	s.attempts[a.ID] = cloneAttempt(a)
	delete(s.inProgress, indexKey(a.StudentID, a.TestID))
	return nil
}

func indexKey(studentID, testID string) string {
	return studentID + "|" + testID
}

// cloneAttempt keeps stored snapshots independent of caller-held slices.
func cloneAttempt(a domain.Attempt) domain.Attempt {
	out := a
	out.Questions = domain.CloneQuestions(a.Questions)
	if a.Answers != nil {
		out.Answers = make([]domain.Answer, len(a.Answers))
		copy(out.Answers, a.Answers)
	}
	return out
}
