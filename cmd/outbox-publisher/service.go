package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wildroots/wildroots-backend/pkg/config"
	"github.com/wildroots/wildroots-backend/pkg/db/models"
	"github.com/wildroots/wildroots-backend/pkg/enums"
	"github.com/wildroots/wildroots-backend/pkg/logger"
	"github.com/wildroots/wildroots-backend/pkg/metrics"
	"github.com/wildroots/wildroots-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxIdleBackoff        = 10 * time.Second

	resultPublished  = "published"
	resultRetry      = "retry"
	resultDeadLetter = "dead_letter"
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Config           config.OutboxConfig
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
	Metrics          *metrics.LedgerMetrics
}

// Service relays committed outbox rows to Pub/Sub. Each batch is claimed
// under SKIP LOCKED, published concurrently, and settled in the same
// transaction, so a crash before commit only causes a redelivery.
type Service struct {
	logg             *logger.Logger
	db               dbClient
	pubsub           pubSubClient
	repo             outboxRepository
	registry         registryResolver
	dlq              dlqRepository
	publisherFactory publisherFactory
	metrics          *metrics.LedgerMetrics
	batchSize        int
	maxAttempts      int
	pollInterval     time.Duration
	publishTimeout   time.Duration
	now              func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			return newGCPPublisher(params.PubSub.Publisher(topic))
		}
	}

	svc := &Service{
		logg:             params.Logger,
		db:               params.DB,
		pubsub:           params.PubSub,
		repo:             params.Repository,
		registry:         params.Registry,
		dlq:              params.DLQRepository,
		publisherFactory: factory,
		metrics:          params.Metrics,
		batchSize:        params.Config.BatchSize,
		maxAttempts:      params.Config.MaxAttempts,
		pollInterval:     time.Duration(params.Config.PollIntervalMS) * time.Millisecond,
		publishTimeout:   defaultPublishTimeout,
		now:              time.Now,
	}
	if svc.batchSize <= 0 {
		svc.batchSize = defaultBatchSize
	}
	if svc.maxAttempts <= 0 {
		svc.maxAttempts = defaultMaxAttempts
	}
	if svc.pollInterval <= 0 {
		svc.pollInterval = defaultPollInterval
	}
	return svc, nil
}

// Run polls until ctx is canceled. Full batches are followed immediately by
// the next poll; empty polls and batch errors back off with jitter.
func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{"database": s.db.Ping, "pubsub": s.pubsub.Ping} {
		if err := ping(ctx); err != nil {
			return fmt.Errorf("%s not ready: %w", name, err)
		}
	}

	wait := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher stopping")
			return err
		}

		n, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox batch failed", err)
			wait = min(wait*2, maxIdleBackoff)
		case n >= s.batchSize:
			wait = s.pollInterval
			continue
		default:
			wait = s.pollInterval
		}

		if err := sleep(ctx, jitter(wait)); err != nil {
			return err
		}
	}
}

// delivery tracks one row through publish and settlement.
type delivery struct {
	event    models.OutboxEvent
	resolved *registry.ResolvedEvent
	pub      publisher
	result   publishResult
	err      error
}

// processBatch returns how many rows it claimed.
func (s *Service) processBatch(ctx context.Context) (int, error) {
	claimed := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		claimed = len(events)
		if claimed == 0 {
			return nil
		}

		publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
		defer cancel()

		deliveries := make([]*delivery, 0, len(events))
		for _, event := range events {
			deliveries = append(deliveries, s.send(publishCtx, event))
		}

		resume := map[publisher]map[string]struct{}{}
		for _, d := range deliveries {
			if d.result != nil {
				if _, err := d.result.Get(publishCtx); err != nil {
					d.err = err
				}
			}
			if d.err != nil && d.pub != nil && d.resolved != nil {
				if resume[d.pub] == nil {
					resume[d.pub] = map[string]struct{}{}
				}
				resume[d.pub][d.resolved.Envelope.OrderingKey] = struct{}{}
			}
		}
		// a failed ordered publish pauses its key until resumed
		for pub, keys := range resume {
			for key := range keys {
				pub.ResumePublish(key)
			}
		}

		for _, d := range deliveries {
			if err := s.settle(ctx, tx, d); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (s *Service) send(ctx context.Context, event models.OutboxEvent) *delivery {
	d := &delivery{event: event}

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		d.err = err
		return d
	}
	d.resolved = resolved

	pub := s.publisherFactory(resolved.Descriptor.Topic)
	if pub == nil {
		d.err = registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", resolved.Descriptor.Topic))
		return d
	}
	d.pub = pub

	attrs := resolved.Attributes(event)
	attrs["outbox_id"] = event.ID.String()
	d.result = pub.Publish(ctx, &gcppubsub.Message{
		Data:        event.Payload,
		Attributes:  attrs,
		OrderingKey: resolved.Envelope.OrderingKey,
	})
	if d.result == nil {
		d.err = errNilResult
	}
	return d
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, d *delivery) error {
	ctx = s.logg.WithFields(ctx, s.fields(d))

	if d.err == nil {
		if err := s.repo.MarkPublishedTx(tx, d.event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", d.event.ID, err)
		}
		s.observe(d.event, resultPublished)
		s.logg.Info(ctx, "outbox event published")
		return nil
	}

	if registry.IsNonRetryable(d.err) {
		return s.deadLetter(ctx, tx, d.event, enums.OutboxDLQReasonNonRetryable, d.err)
	}

	attempt := d.event.AttemptCount + 1
	if attempt >= s.maxAttempts {
		return s.deadLetter(ctx, tx, d.event, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("gave up after %d attempts: %w", attempt, d.err))
	}

	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"attempt_count": attempt, "error": d.err.Error()}), "outbox publish failed; will retry")
	s.observe(d.event, resultRetry)
	if err := s.repo.MarkFailedTx(tx, d.event.ID, d.err); err != nil {
		return fmt.Errorf("mark failed %s: %w", d.event.ID, err)
	}
	return nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"error_reason": reason, "error": cause.Error()}), "outbox event parked in dlq")
	s.observe(event, resultDeadLetter)

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      s.now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) fields(d *delivery) map[string]any {
	fields := map[string]any{
		"outbox_id":     d.event.ID.String(),
		"event_type":    d.event.EventType,
		"aggregate_id":  d.event.AggregateID.String(),
		"attempt_count": d.event.AttemptCount,
	}
	if d.resolved != nil {
		fields["event_id"] = d.resolved.Envelope.EventID
		fields["topic"] = d.resolved.Descriptor.Topic
		fields["ordering_key"] = d.resolved.Envelope.OrderingKey
	}
	return fields
}

func (s *Service) observe(event models.OutboxEvent, result string) {
	s.metrics.ObservePublish(string(event.EventType), result)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// jitter adds up to a quarter of d so idle replicas drift apart.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(d/4+1)
}
