// Package admission caps how many search fan-outs run at once. Callers over
// capacity queue in arrival order.
package admission

import (
	"context"
	"sync/atomic"

	"nexus-bot/internal/metrics"

	"golang.org/x/sync/semaphore"
)

const DefaultCapacity = 10

type Controller struct {
	sem      *semaphore.Weighted
	capacity int64
	active   atomic.Int64
	waiting  atomic.Int64
}

func New(capacity int) *Controller {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Controller{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}
}

// Acquire blocks until a slot is free. It only fails when ctx is done
// while waiting; the controller itself never times out.
func (c *Controller) Acquire(ctx context.Context) error {
	c.waiting.Add(1)
	metrics.AdmissionWaiting.Inc()

	err := c.sem.Acquire(ctx, 1)

	c.waiting.Add(-1)
	metrics.AdmissionWaiting.Dec()
	if err != nil {
		return err
	}

	c.active.Add(1)
	metrics.AdmissionInFlight.Inc()
	return nil
}

func (c *Controller) Release() {
	c.active.Add(-1)
	metrics.AdmissionInFlight.Dec()
	c.sem.Release(1)
}

// Do runs fn while holding a slot.
func (c *Controller) Do(ctx context.Context, fn func(ctx context.Context)) error {
	if err := c.Acquire(ctx); err != nil {
		return err
	}
	defer c.Release()
	fn(ctx)
	return nil
}

func (c *Controller) Capacity() int { return int(c.capacity) }

func (c *Controller) InFlight() int { return int(c.active.Load()) }

func (c *Controller) Waiting() int { return int(c.waiting.Load()) }
