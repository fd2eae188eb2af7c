package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"testseries-attempt-service/internal/app"
	"testseries-attempt-service/internal/domain"
)

// AttemptGuard wraps an app.AttemptStore with a Redis SETNX lock so that two
// service instances cannot both create an in-progress attempt for the same
// (student, test) pair. The key lives until the attempt is finalized, capped
// at the attempt deadline plus a grace period.
type AttemptGuard struct {
	client *redis.Client
	inner  app.AttemptStore
	grace  time.Duration
}

func NewAttemptGuard(client *redis.Client, inner app.AttemptStore, grace time.Duration) *AttemptGuard {
	if grace <= 0 {
		grace = time.Hour
	}
	return &AttemptGuard{client: client, inner: inner, grace: grace}
}

func (g *AttemptGuard) Create(ctx context.Context, a domain.Attempt) error {
	key := g.key(a.StudentID, a.TestID)
	ttl := time.Until(a.EndsAt) + g.grace
	if ttl <= 0 {
		ttl = g.grace
	}
	ok, err := g.client.SetNX(ctx, key, a.ID, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrAttemptInProgress
	}
	if err := g.inner.Create(ctx, a); err != nil {
		_ = g.client.Del(ctx, key).Err()
		return err
	}
	return nil
}

func (g *AttemptGuard) Get(ctx context.Context, attemptID string) (domain.Attempt, error) {
	return g.inner.Get(ctx, attemptID)
}

func (g *AttemptGuard) FindInProgress(ctx context.Context, studentID, testID string) (domain.Attempt, bool, error) {
	return g.inner.FindInProgress(ctx, studentID, testID)
}

func (g *AttemptGuard) CountByStudentTest(ctx context.Context, studentID, testID string) (int, error) {
	return g.inner.CountByStudentTest(ctx, studentID, testID)
}

func (g *AttemptGuard) Finalize(ctx context.Context, a domain.Attempt) error {
	if err := g.inner.Finalize(ctx, a); err != nil {
		return err
	}
	_ = g.client.Del(ctx, g.key(a.StudentID, a.TestID)).Err()
	return nil
}

func (g *AttemptGuard) key(studentID, testID string) string {
	return "attempt:inprogress:" + studentID + ":" + testID
}
