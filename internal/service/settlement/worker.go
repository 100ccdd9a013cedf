package settlement

import (
	"context"
	"errors"
	"sync"

	"github.com/nvoloshin/callmeter/internal/apperrors"
	"github.com/nvoloshin/callmeter/internal/logger"
)

// Consumer runs the worker pool that settles the sessions the producer
// dispatches. Overlap errors are expected noise, everything else is logged.
type Consumer struct {
	workers int
	settler *Settler
	logger  logger.Logger
}

func (c *Consumer) Consume(ctx context.Context, jobs <-chan job) <-chan struct{} {
	idleStopped := make(chan struct{})
	c.logger.Debug("Starting settlement workers", "workers", c.workers)

	go func() {
		defer close(idleStopped)

		var wg sync.WaitGroup
		wg.Add(c.workers)

		for range c.workers {
			go func() {
				defer wg.Done()
				c.work(ctx, jobs)
			}()
		}

		wg.Wait()
	}()

	return idleStopped
}

func (c *Consumer) work(ctx context.Context, jobs <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return

		case j, ok := <-jobs:
			if !ok {
				return
			}

			err := c.settler.SettleSession(ctx, j.session, j.snapshot)
			if err != nil && !errors.Is(err, apperrors.ErrSettlementInProgress) {
				c.logger.Error("Failed to settle session",
					"session_id", j.session.ID,
					"error", err,
				)
			}
		}
	}
}
