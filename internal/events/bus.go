// Package events carries enrichment triggers over an in-process watermill
// bus. Publishers (the HTTP API, the sweep command) never call the engine
// directly; the engine subscribes and queues a run per event.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-playground/validator/v10"

	"github.com/scrypster/luminaries/internal/logging"
	"github.com/scrypster/luminaries/pkg/types"
)

// TopicPersons is the topic person triggers are published on.
const TopicPersons = "luminaries.persons"

const metadataCorrelationID = "correlation_id"

var (
	// ErrInvalidEvent is returned by Publish for an event that fails validation.
	ErrInvalidEvent = errors.New("events: invalid event")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("events: bus closed")
)

var validate = validator.New()

// PersonEvent asks the engine to build or refresh one person.
//
// Identity, Aliases and Links are optional corrections supplied by the
// caller. A non-empty Identity that differs from the stored identity key is
// an identity change and discards previously derived data.
type PersonEvent struct {
	Event    types.Trigger `json:"event" validate:"required,oneof=person/created person/refresh"`
	PersonID string        `json:"person_id" validate:"required"`
	Identity string        `json:"identity,omitempty"`
	Aliases  []string      `json:"aliases,omitempty"`
	Links    []types.Link  `json:"links,omitempty"`
}

// Validate checks required fields and the event name.
func (e PersonEvent) Validate() error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return nil
}

// Handler processes one event. Errors are logged; the message is still
// acknowledged because gochannel redelivers nacked messages immediately.
type Handler func(ctx context.Context, ev PersonEvent) error

// Config tunes the bus.
type Config struct {
	// Buffer is the per-subscriber output channel size (default: 256).
	Buffer int64
}

// Bus is a publish/subscribe channel for PersonEvents.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewBus creates an in-process bus.
func NewBus(cfg Config) *Bus {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	logger := logging.NewWatermillAdapter()
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: cfg.Buffer}, logger),
		logger: logger,
	}
}

// Publish validates ev and publishes it. The correlation id carried by ctx,
// if any, travels in the message metadata.
func (b *Bus) Publish(ctx context.Context, ev PersonEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	if err := ev.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if id := logging.CorrelationID(ctx); id != "" {
		msg.Metadata.Set(metadataCorrelationID, id)
	}
	if err := b.pubsub.Publish(TopicPersons, msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Event, err)
	}
	return nil
}

// Subscribe starts delivering events to handler until ctx is cancelled or
// the bus is closed. It returns once the subscription is registered, so
// events published after Subscribe returns are never missed.
func (b *Bus) Subscribe(ctx context.Context, handler Handler) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	messages, err := b.pubsub.Subscribe(ctx, TopicPersons)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", TopicPersons, err)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range messages {
			b.process(ctx, msg, handler)
		}
	}()
	return nil
}

func (b *Bus) process(ctx context.Context, msg *message.Message, handler Handler) {
	defer msg.Ack()

	fields := watermill.LogFields{"message_uuid": msg.UUID, "topic": TopicPersons}

	var ev PersonEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		b.logger.Error("Dropping malformed event", err, fields)
		return
	}
	if id := msg.Metadata.Get(metadataCorrelationID); id != "" {
		ctx = logging.WithCorrelationID(ctx, id)
	}
	if err := handler(ctx, ev); err != nil {
		fields["person_id"] = ev.PersonID
		fields["event"] = string(ev.Event)
		b.logger.Error("Event handler failed", err, fields)
	}
}

// Close stops every subscription and waits for in-flight handlers.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	err := b.pubsub.Close()
	b.wg.Wait()
	return err
}
