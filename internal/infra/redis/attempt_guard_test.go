package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"testseries-attempt-service/internal/domain"
	"testseries-attempt-service/internal/infra/memory"
)

func TestAttemptGuardBlocksDoubleStart(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	guard := NewAttemptGuard(newClient(mr), memory.NewAttemptStore(), time.Hour)

	a := guardAttempt("a1")
	if err := guard.Create(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !mr.Exists("attempt:inprogress:s1:test-1") {
		t.Fatalf("expected guard key to be set")
	}

	if err := guard.Create(ctx, guardAttempt("a2")); !errors.Is(err, domain.ErrAttemptInProgress) {
		t.Fatalf("expected ErrAttemptInProgress, got %v", err)
	}

	a.Status = domain.AttemptCompleted
	if err := guard.Finalize(ctx, a); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if mr.Exists("attempt:inprogress:s1:test-1") {
		t.Fatalf("expected guard key removed after finalize")
	}

	// Slot is free again for a new sitting.
	if err := guard.Create(ctx, guardAttempt("a3")); err != nil {
		t.Fatalf("create after finalize: %v", err)
	}
}

func TestAttemptGuardReleasesKeyWhenInnerCreateFails(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	inner := memory.NewAttemptStore()
	guard := NewAttemptGuard(newClient(mr), inner, time.Hour)

	// Seed the inner store so its own uniqueness check fires.
	if err := inner.Create(ctx, guardAttempt("a0")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := guard.Create(ctx, guardAttempt("a1")); !errors.Is(err, domain.ErrAttemptInProgress) {
		t.Fatalf("expected inner rejection, got %v", err)
	}
	if mr.Exists("attempt:inprogress:s1:test-1") {
		t.Fatalf("guard key must be rolled back on inner failure")
	}
}

func guardAttempt(id string) domain.Attempt {
	now := time.Now()
	return domain.Attempt{
		ID:        id,
		TestID:    "test-1",
		StudentID: "s1",
		Status:    domain.AttemptInProgress,
		StartedAt: now,
		EndsAt:    now.Add(time.Hour),
	}
}
