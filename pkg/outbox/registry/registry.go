// Package registry maps outbox event types to their topic and payload schema.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/wildroots/wildroots-backend/pkg/config"
	"github.com/wildroots/wildroots-backend/pkg/db/models"
	"github.com/wildroots/wildroots-backend/pkg/enums"
	"github.com/wildroots/wildroots-backend/pkg/outbox"
	"github.com/wildroots/wildroots-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate, topic and payload.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        func(json.RawMessage) (any, error)
}

// ResolvedEvent is an outbox row that is ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// Attributes returns the envelope attributes plus the routing identity.
func (r *ResolvedEvent) Attributes(event models.OutboxEvent) map[string]string {
	attrs := r.Envelope.Attributes()
	attrs["event_type"] = string(event.EventType)
	attrs["aggregate_type"] = string(event.AggregateType)
	attrs["aggregate_id"] = event.AggregateID.String()
	return attrs
}

// NonRetryableError marks a row that will fail the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err, or anything it wraps, is non-retryable.
func IsNonRetryable(err error) bool {
	var target NonRetryableError
	return errors.As(err, &target)
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func route[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		Topic:         topic,
		decode: func(raw json.RawMessage) (any, error) {
			payload := new(T)
			if err := json.Unmarshal(raw, payload); err != nil {
				return nil, err
			}
			return payload, nil
		},
	}
}

// NewEventRegistry routes donation and project status events to the ledger
// topic. Rebuilds and discrepancies go to the operations topic, which falls
// back to the ledger topic when unset.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	ledger := cfg.LedgerTopic
	if ledger == "" {
		return nil, fmt.Errorf("ledger topic is required")
	}
	ops := cfg.OperationsTopic
	if ops == "" {
		ops = ledger
	}

	reg := &EventRegistry{entries: map[enums.OutboxEventType]EventDescriptor{}}
	for _, desc := range []EventDescriptor{
		route[payloads.DonationCompletedEvent](enums.EventDonationCompleted, enums.AggregateDonation, ledger),
		route[payloads.DonationFailedEvent](enums.EventDonationFailed, enums.AggregateDonation, ledger),
		route[payloads.DonationRefundedEvent](enums.EventDonationRefunded, enums.AggregateDonation, ledger),
		route[payloads.ProjectStatusChangedEvent](enums.EventProjectStatusChanged, enums.AggregateProject, ledger),
		route[payloads.ProjectFundingRebuiltEvent](enums.EventProjectFundingRebuilt, enums.AggregateProject, ops),
		route[payloads.DiscrepancyRecordedEvent](enums.EventDiscrepancyRecorded, enums.AggregateDiscrepancy, ops),
	} {
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Topics lists the distinct topics events are routed to, sorted.
func (r *EventRegistry) Topics() []string {
	seen := map[string]struct{}{}
	var topics []string
	for _, desc := range r.entries {
		if _, ok := seen[desc.Topic]; ok {
			continue
		}
		seen[desc.Topic] = struct{}{}
		topics = append(topics, desc.Topic)
	}
	sort.Strings(topics)
	return topics
}

// Resolve validates the row and decodes its typed payload. Every error it
// returns is non-retryable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("%s: aggregate %s, want %s", event.EventType, event.AggregateType, desc.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: missing aggregate_id", event.EventType))
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	if envelope.OrderingKey == "" {
		envelope.OrderingKey = event.OrderingKey
	}
	if envelope.OrderingKey == "" {
		envelope.OrderingKey = event.AggregateID.String()
	}

	payload, err := desc.decode(envelope.Data)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
