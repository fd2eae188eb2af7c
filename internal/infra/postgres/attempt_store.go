package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"testseries-attempt-service/internal/domain"
)

const uniqueViolation = "23505"

// AttemptStore persists attempts in Postgres. The partial unique index on
// (student_id, test_id) WHERE status='in-progress' makes Create the
// compare-and-set that keeps a double-start race from producing two live
// attempts; Finalize guards double submission with a status predicate.
type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

func (s *AttemptStore) Create(ctx context.Context, a domain.Attempt) error {
	questions, err := json.Marshal(a.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO attempts (id, test_id, student_id, status, questions, answers, started_at, ends_at, score, correct_count, total_marks)
		VALUES ($1, $2, $3, $4, $5, '[]'::jsonb, $6, $7, 0, 0, 0)`,
		a.ID, a.TestID, a.StudentID, string(a.Status), questions, a.StartedAt, a.EndsAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrAttemptInProgress
		}
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) Get(ctx context.Context, attemptID string) (domain.Attempt, error) {
	return s.scanAttempt(ctx, `
		SELECT id, test_id, student_id, status, questions, answers, started_at, ends_at, submitted_at, score, correct_count, total_marks
		FROM attempts WHERE id=$1`, attemptID)
}

func (s *AttemptStore) FindInProgress(ctx context.Context, studentID, testID string) (domain.Attempt, bool, error) {
	a, err := s.scanAttempt(ctx, `
		SELECT id, test_id, student_id, status, questions, answers, started_at, ends_at, submitted_at, score, correct_count, total_marks
		FROM attempts WHERE student_id=$1 AND test_id=$2 AND status='in-progress'`, studentID, testID)
	if errors.Is(err, domain.ErrAttemptNotFound) {
		return domain.Attempt{}, false, nil
	}
	if err != nil {
		return domain.Attempt{}, false, err
	}
	return a, true, nil
}

func (s *AttemptStore) CountByStudentTest(ctx context.Context, studentID, testID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM attempts WHERE student_id=$1 AND test_id=$2`, studentID, testID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return count, nil
}

func (s *AttemptStore) Finalize(ctx context.Context, a domain.Attempt) error {
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE attempts
		SET status=$2, answers=$3, submitted_at=$4, score=$5, correct_count=$6, total_marks=$7
		WHERE id=$1 AND status='in-progress'`,
		a.ID, string(a.Status), answers, a.SubmittedAt, a.Score, a.CorrectCount, a.TotalMarks)
	if err != nil {
		return fmt.Errorf("finalize attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var status string
		err := s.pool.QueryRow(ctx, `SELECT status FROM attempts WHERE id=$1`, a.ID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrAttemptNotFound
		}
		if err != nil {
			return fmt.Errorf("finalize status check: %w", err)
		}
		return domain.ErrAlreadySubmitted
	}
	return nil
}

func (s *AttemptStore) scanAttempt(ctx context.Context, query string, args ...interface{}) (domain.Attempt, error) {
	var (
		a         domain.Attempt
		status    string
		questions []byte
		answers   []byte
	)
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&a.ID, &a.TestID, &a.StudentID, &status, &questions, &answers,
		&a.StartedAt, &a.EndsAt, &a.SubmittedAt, &a.Score, &a.CorrectCount, &a.TotalMarks)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("scan attempt: %w", err)
	}
	a.Status = domain.AttemptStatus(status)
	if err := json.Unmarshal(questions, &a.Questions); err != nil {
		return domain.Attempt{}, fmt.Errorf("unmarshal questions: %w", err)
	}
	if err := json.Unmarshal(answers, &a.Answers); err != nil {
		return domain.Attempt{}, fmt.Errorf("unmarshal answers: %w", err)
	}
	return a, nil
}
