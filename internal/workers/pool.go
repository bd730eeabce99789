// Package workers provides a bounded worker pool: a fixed number of
// goroutines drain a job queue, used by the batch driver to cap decoder
// concurrency at num_processes regardless of batch size.
package workers

import (
	"context"
	"sync"
)

// Pool runs Job[T, R] values across a fixed number of worker goroutines
// and returns their results indexed by submission order. Unlike the
// teacher's unbounded per-job-goroutine pool, Pool caps live goroutines at
// workersCount: a batch of a thousand utterances never spawns a thousand
// goroutines, only the configured worker count.
type Pool[T any, R any] struct {
	workersCount int
}

// New returns a pool that will run jobs across workersCount goroutines.
// workersCount is clamped to at least 1.
func New[T any, R any](workersCount int) *Pool[T, R] {
	if workersCount < 1 {
		workersCount = 1
	}
	return &Pool[T, R]{workersCount: workersCount}
}

// Run submits every job in jobs, blocks until all complete, and returns
// their results in the same order the jobs were given, regardless of
// which worker finished first. If ctx is cancelled, workers stop picking
// up new jobs but any jobs already in flight finish and are reported.
func (p *Pool[T, R]) Run(ctx context.Context, jobs []Job[T, R]) []Result[R] {
	results := make([]Result[R], len(jobs))
	if len(jobs) == 0 {
		return results
	}

	type indexedJob struct {
		index int
		job   Job[T, R]
	}

	queue := make(chan indexedJob)
	var wg sync.WaitGroup

	for w := 0; w < p.workersCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case item, ok := <-queue:
					if !ok {
						return
					}
					results[item.index] = item.job.execute(ctx, item.index)
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(queue)
		for i, job := range jobs {
			select {
			case queue <- indexedJob{index: i, job: job}:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	return results
}
