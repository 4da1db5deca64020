package concurrent

import (
	"context"
	"sync"
)

// Task is a unit of work run by a ConcurrencyController.
type Task func(ctx context.Context)

// ConcurrencyController bounds how many tasks run at the same time.
type ConcurrencyController struct {
	semaphore chan struct{}
	wg        sync.WaitGroup
}

// NewConcurrencyController creates a controller allowing maxConcurrency
// running tasks. Values below 1 are treated as 1.
func NewConcurrencyController(maxConcurrency int) *ConcurrencyController {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &ConcurrencyController{
		semaphore: make(chan struct{}, maxConcurrency),
	}
}

// Go starts task on its own goroutine and returns immediately. The task
// waits for a free slot; if ctx ends first the task is skipped.
func (c *ConcurrencyController) Go(ctx context.Context, task Task) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		if ctx.Err() != nil {
			return
		}
		select {
		case c.semaphore <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-c.semaphore }()

		task(ctx)
	}()
}

// InFlight returns the number of tasks currently holding a slot.
func (c *ConcurrencyController) InFlight() int {
	return len(c.semaphore)
}

// Wait blocks until every started task has returned.
func (c *ConcurrencyController) Wait() {
	c.wg.Wait()
}
