// Package worker implements the mailbox poll loop shared by the weather and
// facts workers.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/resort-relay/internal/metrics"
	"github.com/JakeFAU/resort-relay/internal/slot"
)

// DefaultPollInterval is used when Config.PollInterval is unset.
const DefaultPollInterval = 250 * time.Millisecond

// Handler processes whatever the mailbox currently holds. It decides whether
// the value is new work; the loop calls it on every poll that finds a
// non-empty mailbox.
type Handler interface {
	Handle(ctx context.Context, value string)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, value string)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, value string) {
	f(ctx, value)
}

// Config controls Worker behavior.
type Config struct {
	// Name labels metrics and log entries.
	Name         string
	PollInterval time.Duration
}

// Worker polls one mailbox until its context ends.
type Worker struct {
	mailbox slot.Slot
	handler Handler
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Worker.
func New(mailbox slot.Slot, handler Handler, cfg Config, logger *zap.Logger) (*Worker, error) {
	if mailbox == nil {
		return nil, fmt.Errorf("mailbox is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{mailbox: mailbox, handler: handler, cfg: cfg, logger: logger}, nil
}

// Run blocks, polling the mailbox every PollInterval (or sooner when the slot
// signals a change) until ctx ends. Per-request failures never stop the loop.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started", zap.Duration("poll_interval", w.cfg.PollInterval))
	defer w.logger.Info("worker stopped")

	for {
		changed := slot.Changes(w.mailbox)
		w.poll(ctx)
		if !slot.Pause(ctx, w.cfg.PollInterval, changed) {
			return
		}
	}
}

func (w *Worker) poll(ctx context.Context) {
	metrics.ObservePoll(w.cfg.Name)
	value, ok, err := w.mailbox.Read(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("mailbox read failed", zap.Error(err))
		}
		return
	}
	if !ok {
		return
	}
	w.dispatch(ctx, value)
}

func (w *Worker) dispatch(ctx context.Context, value string) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.ObserveFetch(w.cfg.Name, metrics.OutcomePanic, time.Since(start))
			w.logger.Error("request handler panicked",
				zap.String("request", value),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	w.handler.Handle(ctx, value)
}
