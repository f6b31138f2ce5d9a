package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentwise-payments/pkg/config"
	"github.com/angelmondragon/rentwise-payments/pkg/db/models"
	"github.com/angelmondragon/rentwise-payments/pkg/enums"
	"github.com/angelmondragon/rentwise-payments/pkg/logger"
	"github.com/angelmondragon/rentwise-payments/pkg/outbox/payloads"
	"github.com/angelmondragon/rentwise-payments/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPollMs      = 500
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
	maxIdleBackoff     = 10 * time.Second
	backoffJitter      = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(topic string) *gcppubsub.Publisher
}

// eventStore is satisfied by *outbox.Store.
type eventStore interface {
	Claim(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	Published(tx *gorm.DB, id uuid.UUID) error
	Failed(tx *gorm.DB, id uuid.UUID, cause error) error
	Park(tx *gorm.DB, id uuid.UUID, cause error, ceiling int) error
	DeadLetter(tx *gorm.DB, entry models.OutboxDLQ) error
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
	Store            eventStore
	Registry         registryResolver
	PublisherFactory publisherFactory
}

// Service drains outbox_events to Pub/Sub. Each batch is claimed and settled
// in one transaction, so a crash mid-batch republishes rather than drops.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	pubsub       pubSubClient
	store        eventStore
	registry     registryResolver
	publisherFor publisherFactory
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
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
	case params.Store == nil:
		return nil, errors.New("outbox store is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			handle := params.PubSub.Publisher(topic)
			if handle == nil {
				return nil
			}
			return orderedPublisher{handle}
		}
	}

	cfg := params.Config.Outbox
	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		pubsub:       params.PubSub,
		store:        params.Store,
		registry:     params.Registry,
		publisherFor: factory,
		batchSize:    positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts:  positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		pollInterval: time.Duration(positiveOr(cfg.PollIntervalMS, defaultPollMs)) * time.Millisecond,
	}, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run polls until ctx ends. An empty poll waits one interval; a failing batch
// waits on an exponential, jittered backoff that resets after the next success.
func (s *Service) Run(ctx context.Context) error {
	deps := []struct {
		name string
		ping func(context.Context) error
	}{{"database", s.db.Ping}, {"pubsub", s.pubsub.Ping}}
	for _, dep := range deps {
		if err := dep.ping(ctx); err != nil {
			s.logg.Error(ctx, dep.name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}

	var failures retry.Backoff
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		processed, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			if failures == nil {
				failures = s.failureBackoff()
			}
			wait, _ = failures.Next()
		case processed:
			failures = nil
			continue
		default:
			failures = nil
			wait = s.pollInterval
		}

		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

func (s *Service) failureBackoff() retry.Backoff {
	b := retry.NewExponential(s.pollInterval)
	b = retry.WithCappedDuration(maxIdleBackoff, b)
	return retry.WithJitter(backoffJitter, b)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// processBatch reports whether any row was claimed. Only storage errors abort
// the batch; a row that fails to publish is settled and the loop moves on.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	claimed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.store.Claim(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(rows) > 0
		for _, row := range rows {
			if err := s.dispatch(ctx, tx, row); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

// dispatch publishes one row and records the outcome in tx.
func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) error {
	resolved, err := s.registry.Resolve(row)
	if err != nil {
		return s.deadLetter(ctx, tx, row, routing{}, enums.OutboxDLQReasonNonRetryable, err)
	}
	route := routeOf(row, resolved)
	logCtx := s.logg.WithFields(ctx, route.logFields(row, resolved.Descriptor.Topic))

	pub := s.publisherFor(resolved.Descriptor.Topic)
	if pub == nil {
		return s.deadLetter(logCtx, tx, row, route, enums.OutboxDLQReasonUnroutable,
			fmt.Errorf("no publisher for topic %s", resolved.Descriptor.Topic))
	}

	publishErr := s.publish(ctx, pub, route.message(row, resolved))
	var nonRetryable registry.NonRetryableError
	switch {
	case publishErr == nil:
		if err := s.store.Published(tx, row.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		s.logg.Info(logCtx, "outbox event published")
		return nil
	case errors.As(publishErr, &nonRetryable):
		return s.deadLetter(logCtx, tx, row, route, enums.OutboxDLQReasonNonRetryable, publishErr)
	case row.AttemptCount+1 >= s.maxAttempts:
		return s.deadLetter(logCtx, tx, row, route, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("max publish attempts reached: %w", publishErr))
	}

	s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
		"attempt_count": row.AttemptCount + 1,
		"error":         publishErr.Error(),
	}), "outbox publish failed")
	if err := s.store.Failed(tx, row.ID, publishErr); err != nil {
		return fmt.Errorf("mark failure %s: %w", row.ID, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, pub publisher, msg *gcppubsub.Message) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	result := pub.Publish(ctx, msg)
	if result == nil {
		return registry.NewNonRetryableError(errors.New("publisher returned no result"))
	}
	_, err := result.Get(ctx)
	return err
}

// deadLetter parks the row with its payment reference and stops retrying it.
func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, route routing, reason enums.OutboxDLQErrorReason, cause error) error {
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"outbox_id":    row.ID.String(),
		"error_reason": reason,
		"error":        cause.Error(),
	}), "outbox event will not be retried")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if ref := route.referenceOr(row); ref != "" {
		entry.PaymentReference = &ref
	}
	if err := s.store.DeadLetter(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", row.ID, err)
	}
	if err := s.store.Park(tx, row.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	return nil
}

// routing is what subscribers filter and order on: the payment a row belongs
// to and which checkout flow produced it.
type routing struct {
	reference string
	kind      enums.PaymentKind
}

func routeOf(row models.OutboxEvent, resolved *registry.ResolvedEvent) routing {
	switch p := resolved.Payload.(type) {
	case *payloads.PaymentInitiatedEvent:
		return routing{reference: p.Reference, kind: p.Kind}
	case *payloads.PaymentStatusChangedEvent:
		return routing{reference: p.Reference, kind: p.Kind}
	case *payloads.CommissionPayoutRequestedEvent:
		// commissions are only earned on partner checkouts
		return routing{reference: p.PaymentReference, kind: enums.PaymentKindPartner}
	}
	if row.AggregateType == enums.AggregatePayment {
		return routing{reference: row.AggregateID}
	}
	return routing{}
}

func (r routing) referenceOr(row models.OutboxEvent) string {
	if r.reference != "" {
		return r.reference
	}
	if row.AggregateType == enums.AggregatePayment {
		return row.AggregateID
	}
	return ""
}

// orderingKey keeps the initiated and status-changed events of one payment in
// sequence. Rows without a reference fall back to their aggregate.
func (r routing) orderingKey(row models.OutboxEvent) string {
	if r.reference == "" {
		return string(row.AggregateType) + ":" + row.AggregateID
	}
	if r.kind == "" {
		return r.reference
	}
	return string(r.kind) + ":" + r.reference
}

func (r routing) message(row models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID,
		"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if r.reference != "" {
		attrs["payment_reference"] = r.reference
	}
	if r.kind != "" {
		attrs["payment_kind"] = string(r.kind)
	}
	return &gcppubsub.Message{
		Data:        row.Payload,
		Attributes:  attrs,
		OrderingKey: r.orderingKey(row),
	}
}

func (r routing) logFields(row models.OutboxEvent, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"topic":         topic,
		"attempt_count": row.AttemptCount,
	}
	if r.reference != "" {
		fields["payment_reference"] = r.reference
	}
	if r.kind != "" {
		fields["payment_kind"] = r.kind
	}
	return fields
}

// orderedPublisher resumes an ordering key after a failed publish; Pub/Sub
// pauses the key on error and would otherwise reject every retry.
type orderedPublisher struct {
	handle *gcppubsub.Publisher
}

func (p orderedPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return orderedResult{result: p.handle.Publish(ctx, msg), handle: p.handle, key: msg.OrderingKey}
}

type orderedResult struct {
	result *gcppubsub.PublishResult
	handle *gcppubsub.Publisher
	key    string
}

func (r orderedResult) Get(ctx context.Context) (string, error) {
	id, err := r.result.Get(ctx)
	if err != nil && r.key != "" {
		r.handle.ResumePublish(r.key)
	}
	return id, err
}
