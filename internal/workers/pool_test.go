package workers

import (
	"context"
	"errors"
	"testing"
)

func TestRunPreservesInputOrder(t *testing.T) {
	pool := New[int, int](3)

	jobs := make([]Job[int, int], 20)
	for i := range jobs {
		i := i
		jobs[i] = Job[int, int]{
			Description: JobDescriptor{ID: JobID("job")},
			ExecFn: func(ctx context.Context, n int) (int, error) {
				return n * n, nil
			},
			Args: i,
		}
	}

	results := pool.Run(context.Background(), jobs)
	if len(results) != len(jobs) {
		t.Fatalf("expected %d results, got %d", len(jobs), len(results))
	}
	for i, r := range results {
		if r.Index != i {
			t.Fatalf("expected result %d to report index %d, got %d", i, i, r.Index)
		}
		if r.Value != i*i {
			t.Fatalf("expected result[%d]=%d, got %d", i, i*i, r.Value)
		}
	}
}

func TestRunReportsPerJobErrors(t *testing.T) {
	pool := New[int, int](2)
	boom := errors.New("boom")

	jobs := []Job[int, int]{
		{ExecFn: func(ctx context.Context, n int) (int, error) { return n, nil }, Args: 1},
		{ExecFn: func(ctx context.Context, n int) (int, error) { return 0, boom }, Args: 2},
	}

	results := pool.Run(context.Background(), jobs)
	if results[0].Err != nil {
		t.Fatalf("expected job 0 to succeed, got %v", results[0].Err)
	}
	if !errors.Is(results[1].Err, boom) {
		t.Fatalf("expected job 1 to fail with boom, got %v", results[1].Err)
	}
}

func TestRunWithSingleWorkerIsStillOrdered(t *testing.T) {
	pool := New[int, int](1)
	jobs := []Job[int, int]{
		{ExecFn: func(ctx context.Context, n int) (int, error) { return n + 1, nil }, Args: 1},
		{ExecFn: func(ctx context.Context, n int) (int, error) { return n + 1, nil }, Args: 2},
		{ExecFn: func(ctx context.Context, n int) (int, error) { return n + 1, nil }, Args: 3},
	}
	results := pool.Run(context.Background(), jobs)
	for i, want := range []int{2, 3, 4} {
		if results[i].Value != want {
			t.Fatalf("result[%d]=%d, want %d", i, results[i].Value, want)
		}
	}
}
