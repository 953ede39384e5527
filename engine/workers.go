package engine

import (
	"context"
	"sync"
)

// startWorkers launches slots goroutines consuming jobs and forwarding one
// result per job. The returned wait group completes once the jobs channel
// is closed and drained; the caller owns closing the results channel.
func startWorkers[T, R any](ctx context.Context, slots int, jobs <-chan T, results chan<- R, fn func(context.Context, T) R) *sync.WaitGroup {
	if slots < 1 {
		slots = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < slots; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				results <- fn(ctx, job)
			}
		}()
	}
	return &wg
}
