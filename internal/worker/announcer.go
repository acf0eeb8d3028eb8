package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/resort-relay/internal/metrics"
	"github.com/JakeFAU/resort-relay/internal/relay"
)

// Announcer publishes a ResultEvent after a worker writes its result slot.
// A nil Announcer, or one without a publisher or topic, does nothing.
type Announcer struct {
	publisher relay.Publisher
	topic     string
	clock     relay.Clock
	timeout   time.Duration
	logger    *zap.Logger
}

// NewAnnouncer builds an Announcer.
func NewAnnouncer(publisher relay.Publisher, topic string, clock relay.Clock, logger *zap.Logger) *Announcer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Announcer{
		publisher: publisher,
		topic:     topic,
		clock:     clock,
		timeout:   5 * time.Second,
		logger:    logger,
	}
}

// Announce publishes the event. Failures are logged and counted only; the
// result slot has already been written.
func (a *Announcer) Announce(ctx context.Context, worker, request string) {
	if a == nil || a.publisher == nil || a.topic == "" {
		return
	}
	now := time.Now().UTC()
	if a.clock != nil {
		now = a.clock.Now()
	}
	event := relay.ResultEvent{Worker: worker, Request: request, WrittenAt: now}

	pubCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	id, err := a.publisher.Publish(pubCtx, a.topic, event)
	if err != nil {
		metrics.ObservePublishFailure(worker)
		a.logger.Warn("publish result event failed",
			zap.String("worker", worker),
			zap.String("topic", a.topic),
			zap.Error(err),
		)
		return
	}
	a.logger.Debug("result event published", zap.String("worker", worker), zap.String("message_id", id))
}
