package weather

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/resort-relay/internal/metrics"
	"github.com/JakeFAU/resort-relay/internal/relay"
	"github.com/JakeFAU/resort-relay/internal/slot"
	"github.com/JakeFAU/resort-relay/internal/worker"
)

// Source returns current conditions for a place.
type Source interface {
	Current(ctx context.Context, place string) (Report, error)
}

// Handler claims weather requests from the mailbox and writes the normalized
// line to the result slot.
type Handler struct {
	pair      slot.Pair
	source    Source
	announcer *worker.Announcer
	logger    *zap.Logger
}

// NewHandler builds a Handler. announcer may be nil.
func NewHandler(pair slot.Pair, source Source, announcer *worker.Announcer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{pair: pair, source: source, announcer: announcer, logger: logger}
}

// NewWorker wires a Handler into the shared poll loop.
func NewWorker(pair slot.Pair, source Source, announcer *worker.Announcer, pollInterval time.Duration, logger *zap.Logger) (*worker.Worker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := NewHandler(pair, source, announcer, logger)
	return worker.New(pair.Mailbox, h, worker.Config{
		Name:         relay.WorkerWeather,
		PollInterval: pollInterval,
	}, logger)
}

// Handle clears the mailbox before fetching, so a request is attempted once.
// Failures leave the result slot untouched.
func (h *Handler) Handle(ctx context.Context, value string) {
	if err := h.pair.Mailbox.Clear(ctx); err != nil {
		h.logger.Warn("clear mailbox failed", zap.Error(err))
		return
	}
	place := strings.TrimSpace(value)
	if place == "" {
		return
	}
	h.logger.Info("weather request claimed", zap.String("place", place))

	start := time.Now()
	report, err := h.source.Current(ctx, place)
	if err != nil {
		metrics.ObserveFetch(relay.WorkerWeather, metrics.OutcomeFailure, time.Since(start))
		h.logger.Warn("weather lookup failed", zap.String("place", place), zap.Error(err))
		return
	}
	metrics.ObserveFetch(relay.WorkerWeather, metrics.OutcomeSuccess, time.Since(start))

	line := FormatLine(report)
	if err := h.pair.Result.Write(ctx, line); err != nil {
		h.logger.Error("write result slot failed", zap.String("place", place), zap.Error(err))
		return
	}
	h.logger.Debug("weather result written", zap.String("place", place), zap.String("line", line))
	h.announcer.Announce(ctx, relay.WorkerWeather, place)
}
