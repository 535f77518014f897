// Shoprec - Aspect-Based Shop Recommendation Service
// Copyright 2026 The Shoprec Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shoprec/shoprec

// Package events carries interaction-recorded events from the API layer to
// the job orchestrator over an in-process Watermill bus, decoupling request
// handling from counter bookkeeping.
package events

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shoprec/shoprec/internal/recommend"
)

// TopicInteractions carries InteractionEvent messages.
const TopicInteractions = "interactions"

// Interaction kinds.
const (
	KindLike   = "like"
	KindReview = "review"
)

// InteractionEvent is published whenever a like or review is recorded.
type InteractionEvent struct {
	Kind    string                 `json:"kind"`
	UserID  string                 `json:"user_id"`
	ItemID  string                 `json:"item_id"`
	Rating  float64                `json:"rating,omitempty"`
	Aspects recommend.AspectVector `json:"aspects,omitempty"`
}

// Bus is the in-process pub/sub fabric.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates the in-process bus.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewBus(logger zerolog.Logger) *Bus {
	wmLogger := newLoggerAdapter(logger)
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			// Buffer absorbs bursts without blocking request handlers.
			OutputChannelBuffer: 256,
		}, wmLogger),
	}
}

// PublishInteraction serializes and publishes one interaction event.
func (b *Bus) PublishInteraction(ctx context.Context, event InteractionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal interaction event: %w", err)
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)
	if err := b.pubsub.Publish(TopicInteractions, msg); err != nil {
		return fmt.Errorf("publish interaction event: %w", err)
	}
	return nil
}

// Subscribe returns the message stream for a topic.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// Close shuts the bus down, closing all subscriber channels.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// loggerAdapter bridges Watermill's logging interface onto zerolog.
type loggerAdapter struct {
	logger zerolog.Logger
}

func newLoggerAdapter(logger zerolog.Logger) watermill.LoggerAdapter {
	return &loggerAdapter{logger: logger.With().Str("component", "events").Logger()}
}

func (a *loggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.event(a.logger.Error().Err(err), msg, fields)
}

func (a *loggerAdapter) Info(msg string, fields watermill.LogFields) {
	a.event(a.logger.Info(), msg, fields)
}

func (a *loggerAdapter) Debug(msg string, fields watermill.LogFields) {
	a.event(a.logger.Debug(), msg, fields)
}

func (a *loggerAdapter) Trace(msg string, fields watermill.LogFields) {
	a.event(a.logger.Trace(), msg, fields)
}

func (a *loggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	ctx := a.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &loggerAdapter{logger: ctx.Logger()}
}

func (a *loggerAdapter) event(ev *zerolog.Event, msg string, fields watermill.LogFields) {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}
