// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

package events

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/shoprec/shoprec/internal/jobs"
)

// CounterSink receives the interaction tally derived from the event stream.
// Implemented by the jobs manager.
type CounterSink interface {
	IncrementCounters(ctx context.Context, kind jobs.CounterKind, amount int) (jobs.Counters, error)
}

// Consumer drains interaction events into the counter sink. Runs as a
// supervised service.
type Consumer struct {
	bus    *Bus
	sink   CounterSink
	logger zerolog.Logger
}

// NewConsumer creates the interaction-event consumer.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewConsumer(bus *Bus, sink CounterSink, logger zerolog.Logger) *Consumer {
	return &Consumer{
		bus:    bus,
		sink:   sink,
		logger: logger.With().Str("component", "events-consumer").Logger(),
	}
}

// Serve subscribes and processes events until the context is cancelled.
// Satisfies suture.Service.
func (c *Consumer) Serve(ctx context.Context) error {
	messages, err := c.bus.Subscribe(ctx, TopicInteractions)
	if err != nil {
		return err
	}
	c.logger.Info().Str("topic", TopicInteractions).Msg("consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			c.handle(ctx, msg.Payload)
			// Counter bookkeeping is best-effort; a dropped increment only
			// delays the auto-trigger, so never redeliver.
			msg.Ack()
		}
	}
}

func (c *Consumer) handle(ctx context.Context, payload []byte) {
	var event InteractionEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		c.logger.Warn().Err(err).Msg("malformed interaction event, dropping")
		return
	}

	var kind jobs.CounterKind
	switch event.Kind {
	case KindLike:
		kind = jobs.CounterLike
	case KindReview:
		kind = jobs.CounterReview
	default:
		c.logger.Warn().Str("kind", event.Kind).Msg("unknown interaction kind, dropping")
		return
	}

	counters, err := c.sink.IncrementCounters(ctx, kind, 1)
	if err != nil {
		c.logger.Error().Err(err).Msg("incrementing counters failed")
		return
	}
	c.logger.Debug().
		Str("kind", event.Kind).
		Str("user_id", event.UserID).
		Int("pending", counters.Pending).
		Msg("interaction counted")
}
