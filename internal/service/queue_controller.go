package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runner is a long-running pipeline component driven by one context.
type Runner interface {
	Start(ctx context.Context) error
}

// QueueController switches the consuming side of the pipeline (workers,
// retry scanner, scheduler) on and off at runtime. Publishing is not
// affected: jobs enqueued while processing is paused wait in the broker.
type QueueController struct {
	runners []Runner
	logger  *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func NewQueueController(logger *zap.Logger, runners ...Runner) (*QueueController, error) {
	if len(runners) == 0 {
		return nil, fmt.Errorf("at least one runner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueController{runners: runners, logger: logger}, nil
}

// Start launches every runner under a child context. Idempotent: starting a
// running controller is a no-op.
func (c *QueueController) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	g, groupCtx := errgroup.WithContext(runCtx)
	for _, r := range c.runners {
		g.Go(func() error {
			return r.Start(groupCtx)
		})
	}

	go func() {
		defer close(done)
		if err := g.Wait(); err != nil && runCtx.Err() == nil {
			c.logger.Error("queue processing stopped with error", zap.Error(err))
		}
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	c.cancel = cancel
	c.done = done
	c.running = true
	c.logger.Info("queue processing started")
	return nil
}

// Stop cancels the runners and waits for them to drain.
func (c *QueueController) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cancel()
	<-done
	c.logger.Info("queue processing stopped")
}

func (c *QueueController) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
