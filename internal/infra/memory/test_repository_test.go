package memory

import (
	"context"
	"testing"
	"time"

	"testseries-attempt-service/internal/domain"
)

func TestTestRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		TestLoader: NewStaticTestLoader(map[string]domain.MockTest{
			"test-1": sampleTest(),
		}),
	}
	repo := NewTestRepository(loader, time.Minute)

	if _, err := repo.GetTest(context.Background(), "test-1"); err != nil {
		t.Fatalf("get test: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := repo.GetTest(context.Background(), "test-1"); err != nil {
		t.Fatalf("get test 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestStaticTestLoaderUnknownID(t *testing.T) {
	loader := NewStaticTestLoader(nil)
	if _, err := loader.LoadTest(context.Background(), "missing"); err != domain.ErrTestNotFound {
		t.Fatalf("expected ErrTestNotFound, got %v", err)
	}
}

type countingLoader struct {
	TestLoader
	calls int
}

func (l *countingLoader) LoadTest(ctx context.Context, testID string) (domain.MockTest, error) {
	l.calls++
	return l.TestLoader.LoadTest(ctx, testID)
}

func sampleTest() domain.MockTest {
	return domain.MockTest{
		ID:              "test-1",
		Title:           "Sample",
		DurationMinutes: 30,
		TotalQuestions:  1,
		Pool: []domain.Question{
			{
				ID:      "q1",
				Type:    domain.QuestionMCQ,
				Prompt:  "What is 2 + 2?",
				Options: []domain.Option{{Text: "3"}, {Text: "4"}},
				Correct: []int{1},
				Marks:   1,
			},
		},
	}
}
