package conductor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoCodeAlone/conductor/events"
)

type processHooks struct {
	signals chan os.Signal
	done    chan struct{}
}

// installHooks starts watching SIGINT and SIGTERM when HandleSignals is set.
// A received signal stops the controller and exits with 0, or 1 when the stop
// failed. Hooks are released when the controller stops.
func (c *Controller) installHooks() {
	if !c.cfg.HandleSignals {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hooks != nil {
		return
	}

	h := &processHooks{signals: make(chan os.Signal, 1), done: make(chan struct{})}
	signal.Notify(h.signals, syscall.SIGINT, syscall.SIGTERM)
	c.hooks = h
	go c.watchSignals(h)
}

func (c *Controller) watchSignals(h *processHooks) {
	select {
	case sig := <-h.signals:
		c.logger.Info("Received signal, stopping", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ShutdownTimeout)
		defer cancel()

		code := 0
		if err := c.Stop(ctx); err != nil {
			c.logger.Error("Stop after signal failed", "error", err)
			code = 1
		}
		c.exit(code)
	case <-h.done:
	}
}

func (c *Controller) releaseHooks() {
	c.mu.Lock()
	h := c.hooks
	c.hooks = nil
	c.mu.Unlock()

	if h == nil {
		return
	}
	signal.Stop(h.signals)
	close(h.done)
}

// HandleCritical reports an unrecoverable process error, attempts a graceful
// stop bounded by ShutdownTimeout and exits with code 1.
func (c *Controller) HandleCritical(err error) {
	if !errors.Is(err, ErrCriticalProcess) {
		err = fmt.Errorf("%w: %w", ErrCriticalProcess, err)
	}
	c.logger.Error("Critical process error, shutting down", "error", err)
	c.emit(events.CriticalError{Err: err})

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ShutdownTimeout)
	defer cancel()

	// Stop is bounded by ShutdownTimeout once it holds the operation lock.
	done := make(chan error, 1)
	go func() { done <- c.Stop(ctx) }()
	select {
	case stopErr := <-done:
		if stopErr != nil {
			c.logger.Error("Graceful stop after critical error failed", "error", stopErr, "state", c.State().String())
		}
	case <-time.After(2 * c.cfg.ShutdownTimeout):
		c.logger.Error("Graceful stop timed out, exiting", "timeout", c.cfg.ShutdownTimeout)
	}
	c.exit(1)
}

// RecoverCritical turns a panic into HandleCritical. Use it deferred at the top
// of goroutines owned by the process:
//
//	defer ctrl.RecoverCritical()
func (c *Controller) RecoverCritical() {
	if r := recover(); r != nil {
		c.HandleCritical(fmt.Errorf("%w: panic: %v", ErrCriticalProcess, r))
	}
}
