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

	"github.com/cinerent/cinerent-backend/pkg/config"
	"github.com/cinerent/cinerent-backend/pkg/db/models"
	"github.com/cinerent/cinerent-backend/pkg/logger"
	"github.com/cinerent/cinerent-backend/pkg/metrics"
	"github.com/cinerent/cinerent-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultMaxAttempts = 10
	// batchPublishTimeout bounds one whole batch, from first Publish to last ack.
	batchPublishTimeout = 20 * time.Second
	maxIdleBackoff      = 10 * time.Second
	jitterWindow        = 250 * time.Millisecond
)

const (
	outcomePublished = "published"
	outcomeRetry     = "retry"
	outcomeParked    = "parked"
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

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	Metrics          *metrics.OutboxMetrics
}

// Service moves committed rental and payment events from outbox_events to
// Pub/Sub. Rows are claimed with SKIP LOCKED so several publishers can run.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	repo         outboxRepository
	pubsub       pubSubClient
	registry     registryResolver
	publisherFor publisherFactory
	metrics      *metrics.OutboxMetrics
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

// inflight is one row of the current batch. result is nil when the row failed
// before it could be handed to Pub/Sub; err then says why.
type inflight struct {
	event  models.OutboxEvent
	fields map[string]any
	result publishResult
	err    error
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
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
	}

	svc := &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		pubsub:       params.PubSub,
		registry:     params.Registry,
		publisherFor: params.PublisherFactory,
		metrics:      params.Metrics,
		batchSize:    params.Config.Outbox.BatchSize,
		maxAttempts:  params.Config.Outbox.MaxAttempts,
		pollInterval: params.Config.Outbox.PollInterval(),
	}
	if svc.batchSize <= 0 {
		svc.batchSize = defaultBatchSize
	}
	if svc.maxAttempts <= 0 {
		svc.maxAttempts = defaultMaxAttempts
	}
	if svc.publisherFor == nil {
		svc.publisherFor = cachedPublishers(params.PubSub)
	}
	return svc, nil
}

// cachedPublishers keeps one Pub/Sub publisher per topic so batching and flow
// control are shared across polls.
func cachedPublishers(client pubSubClient) publisherFactory {
	byTopic := map[string]publisher{}
	return func(topic string) publisher {
		if pub, ok := byTopic[topic]; ok {
			return pub
		}
		raw := client.Publisher(topic)
		if raw == nil {
			return nil
		}
		pub := gcpPublisher{raw}
		byTopic[topic] = pub
		return pub
	}
}

// Run polls until ctx is cancelled. A failing batch doubles the wait, capped at
// maxIdleBackoff; a full batch is followed immediately by the next one.
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

		processed, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox batch failed", err)
			wait = nextBackoff(wait, s.pollInterval, maxIdleBackoff)
		case processed:
			wait = s.pollInterval
			continue
		default:
			wait = s.pollInterval
		}
		if err := sleepCtx(ctx, withJitter(wait)); err != nil {
			return err
		}
	}
}

// processBatch claims up to batchSize rows, hands all of them to Pub/Sub, then
// waits for the acks and records each row's fate in the same transaction.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		if len(events) == 0 {
			return nil
		}
		processed = true

		publishCtx, cancel := context.WithTimeout(ctx, batchPublishTimeout)
		defer cancel()

		batch := make([]inflight, 0, len(events))
		for _, event := range events {
			batch = append(batch, s.dispatch(publishCtx, event))
		}
		for _, item := range batch {
			if item.result != nil {
				_, item.err = item.result.Get(publishCtx)
			}
			if err := s.settle(ctx, tx, item); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

func (s *Service) dispatch(ctx context.Context, event models.OutboxEvent) inflight {
	item := inflight{event: event, fields: s.eventFields(event)}

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		item.err = err
		return item
	}
	topic := resolved.Descriptor.Topic
	item.fields["topic"] = topic
	item.fields["event_id"] = resolved.Envelope.EventID

	pub := s.publisherFor(topic)
	if pub == nil {
		item.err = registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
		return item
	}
	item.result = pub.Publish(ctx, &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	})
	if item.result == nil {
		item.err = registry.NewNonRetryableError(fmt.Errorf("publisher for %s returned no result", topic))
	}
	return item
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, item inflight) error {
	id := item.event.ID
	logCtx := s.logg.WithFields(ctx, item.fields)

	if item.err == nil {
		if err := s.repo.MarkPublishedTx(tx, id); err != nil {
			return fmt.Errorf("mark %s published: %w", id, err)
		}
		s.record(item.event, outcomePublished)
		s.metrics.ObserveLag(time.Since(item.event.CreatedAt))
		s.logg.Info(logCtx, "outbox event published")
		return nil
	}

	logCtx = s.logg.WithField(logCtx, "error", item.err.Error())
	attempt := item.event.AttemptCount + 1
	var permanent registry.NonRetryableError
	switch {
	case errors.As(item.err, &permanent):
	case attempt >= s.maxAttempts:
		item.err = fmt.Errorf("gave up after %d attempts: %w", attempt, item.err)
	default:
		s.logg.Warn(s.logg.WithField(logCtx, "attempt_count", attempt), "outbox publish failed, will retry")
		if err := s.repo.MarkFailedTx(tx, id, item.err); err != nil {
			return fmt.Errorf("mark %s failed: %w", id, err)
		}
		s.record(item.event, outcomeRetry)
		return nil
	}

	// Parked rows keep their last error and are skipped by later polls.
	s.logg.Warn(logCtx, "outbox event parked")
	if err := s.repo.MarkTerminalTx(tx, id, item.err, s.maxAttempts); err != nil {
		return fmt.Errorf("park %s: %w", id, err)
	}
	s.record(item.event, outcomeParked)
	return nil
}

func (s *Service) record(event models.OutboxEvent, outcome string) {
	s.metrics.IncEvent(string(event.EventType), outcome)
}

func (s *Service) eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, limit time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, limit)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
