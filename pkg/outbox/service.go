package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wildroots/wildroots-backend/pkg/db/models"
	"github.com/wildroots/wildroots-backend/pkg/enums"
	"github.com/wildroots/wildroots-backend/pkg/logger"
)

// DomainEvent is a ledger change to announce once its transaction commits.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	OccurredAt    time.Time
}

// Partitioned payloads pick their own ordering key. Everything else is
// ordered per aggregate.
type Partitioned interface {
	PartitionKey() uuid.UUID
}

// Emitter queues domain events inside the caller's transaction.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit writes the event into outbox_events using tx, so it commits or rolls
// back together with the ledger mutation that produced it.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if err := validateEvent(event); err != nil {
		return err
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event.EventType, err)
	}
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}
	envelope := PayloadEnvelope{
		Version:     EnvelopeVersion,
		EventID:     uuid.NewString(),
		OccurredAt:  occurredAt.UTC(),
		OrderingKey: orderingKey(event),
		Actor:       event.Actor,
		Data:        data,
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	row := models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		OrderingKey:   envelope.OrderingKey,
		Payload:       raw,
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return fmt.Errorf("queue %s: %w", event.EventType, err)
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"event_id":     envelope.EventID,
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID.String(),
			"ordering_key": envelope.OrderingKey,
		}), "outbox event queued")
	}
	return nil
}

func validateEvent(event DomainEvent) error {
	if !event.EventType.IsValid() {
		return fmt.Errorf("unknown event type %q", event.EventType)
	}
	if !event.AggregateType.IsValid() {
		return fmt.Errorf("unknown aggregate type %q", event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return fmt.Errorf("%s: aggregate id required", event.EventType)
	}
	if event.Data == nil {
		return fmt.Errorf("%s: payload required", event.EventType)
	}
	return nil
}

func orderingKey(event DomainEvent) string {
	if p, ok := event.Data.(Partitioned); ok {
		if key := p.PartitionKey(); key != uuid.Nil {
			return key.String()
		}
	}
	return event.AggregateID.String()
}
