package utils

import (
	"context"
	"sync"
)

type CompletedTask[T any] struct {
	Index  int
	Result T
	Error  error
}

// RunInPool runs worker over inputs with at most maxWorkers in parallel. The
// returned channel is closed once every started task has reported. Inputs
// not yet started when ctx is done are reported with ctx's error.
func RunInPool[In any, Out any](ctx context.Context, worker func(context.Context, In) (Out, error), inputs []In, maxWorkers int) <-chan CompletedTask[Out] {
	completed := make(chan CompletedTask[Out], len(inputs))

	queue := make(chan int, len(inputs))
	for i := range inputs {
		queue <- i
	}
	close(queue)

	workers := min(len(inputs), max(maxWorkers, 1))

	go func() {
		wg := sync.WaitGroup{}
		wg.Add(workers)

		for w := 0; w < workers; w++ {
			go func() {
				defer wg.Done()

				for i := range queue {
					if err := ctx.Err(); err != nil {
						completed <- CompletedTask[Out]{Index: i, Error: err}
						continue
					}

					res, err := worker(ctx, inputs[i])
					if err != nil {
						completed <- CompletedTask[Out]{Index: i, Error: err}
					} else {
						completed <- CompletedTask[Out]{Index: i, Result: res}
					}
				}
			}()
		}

		wg.Wait()

		close(completed)
	}()

	return completed
}
