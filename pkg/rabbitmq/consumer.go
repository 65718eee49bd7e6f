package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"videohub/pkg/logger"

	"github.com/avast/retry-go/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Handler is called for each delivery, one at a time, in broker order.
// Returning an error wrapping ErrMalformed rejects the delivery; any other
// error is subject to the consumer's FailurePolicy.
type Handler func(ctx context.Context, delivery amqp.Delivery) error

// Consumer runs the receive loop on the client's guarded channel.
type Consumer struct {
	client  *Client
	metrics *Metrics
	tracer  trace.Tracer
}

// NewConsumer creates a new Consumer instance
func NewConsumer(client *Client, metrics *Metrics) *Consumer {
	return &Consumer{
		client:  client,
		metrics: metrics,
		tracer:  otel.Tracer("rabbitmq-consumer"),
	}
}

// ConsumeOptions contains options for consuming messages
type ConsumeOptions struct {
	QueueName   string
	ConsumerTag string

	// FailurePolicy applies to handler errors other than ErrMalformed.
	// Empty means PolicyAbort.
	FailurePolicy FailurePolicy
	MaxRetries    int
	RetryDelay    time.Duration
}

type settlement int

const (
	settleAck settlement = iota
	settleReject
)

// Run registers the consumer and processes deliveries until the stream ends,
// ctx is done or a handler failure aborts the loop. The channel guard is held
// only while registering and while acking or rejecting.
func (c *Consumer) Run(ctx context.Context, opts ConsumeOptions, handler Handler) error {
	log := c.client.logger.With(
		logger.Field{Key: "queue", Value: opts.QueueName},
		logger.Field{Key: "consumer", Value: opts.ConsumerTag},
	)

	prefetch := c.client.config.PrefetchCount
	if prefetch < 0 {
		prefetch = DefaultPrefetchCount
	}

	var (
		deliveries <-chan amqp.Delivery
		registered Channel
	)
	err := c.client.guard.WithChannel(func(ch Channel) error {
		if prefetch > 0 {
			if err := ch.Qos(prefetch, 0, false); err != nil {
				return fmt.Errorf("failed to set QoS: %w", err)
			}
		}
		d, err := ch.Consume(opts.QueueName, opts.ConsumerTag, false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("failed to start consuming: %w", err)
		}
		deliveries = d
		registered = ch
		return nil
	})
	if err != nil {
		return err
	}

	log.Info(ctx, "started consuming", logger.Field{Key: "prefetch", Value: prefetch})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case delivery, ok := <-deliveries:
			if !ok {
				log.Warn(ctx, "delivery channel closed")
				return ErrDeliveriesClosed
			}

			if err := c.processDelivery(ctx, log, registered, opts, delivery, handler); err != nil {
				return err
			}
		}
	}
}

// processDelivery handles and settles a single delivery. A returned error ends
// the loop.
func (c *Consumer) processDelivery(
	ctx context.Context,
	log logger.Logger,
	registered Channel,
	opts ConsumeOptions,
	delivery amqp.Delivery,
	handler Handler,
) error {
	// Extract trace context from headers
	carrier := propagation.MapCarrier{}
	for k, v := range delivery.Headers {
		if strVal, ok := v.(string); ok {
			carrier[k] = strVal
		}
	}
	ctx = otel.GetTextMapPropagator().Extract(ctx, carrier)

	ctx, span := c.tracer.Start(ctx, "rabbitmq.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.source.name", opts.QueueName),
		),
	)
	defer span.End()

	err := handler(ctx, delivery)
	if err == nil {
		return c.settle(ctx, log, registered, opts, delivery, settleAck)
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if errors.Is(err, ErrMalformed) {
		log.Warn(ctx, "rejecting malformed message",
			logger.Field{Key: "delivery_tag", Value: delivery.DeliveryTag},
			logger.Err(err),
		)
		return c.settle(ctx, log, registered, opts, delivery, settleReject)
	}

	switch opts.FailurePolicy {
	case PolicyReject:
		log.Error(ctx, "handler failed, rejecting message",
			logger.Field{Key: "delivery_tag", Value: delivery.DeliveryTag},
			logger.Err(err),
		)
		return c.settle(ctx, log, registered, opts, delivery, settleReject)

	case PolicyRetry:
		if err := c.retry(ctx, log, opts, delivery, handler); err != nil {
			log.Error(ctx, "handler failed after retries, rejecting message",
				logger.Field{Key: "delivery_tag", Value: delivery.DeliveryTag},
				logger.Err(err),
			)
			return c.settle(ctx, log, registered, opts, delivery, settleReject)
		}
		return c.settle(ctx, log, registered, opts, delivery, settleAck)

	default:
		c.metrics.observeDelivery(opts.ConsumerTag, OutcomeAborted)
		log.Error(ctx, "handler failed, stopping consumer",
			logger.Field{Key: "delivery_tag", Value: delivery.DeliveryTag},
			logger.Err(err),
		)
		return fmt.Errorf("%w: %w", ErrHandlerFailed, err)
	}
}

func (c *Consumer) retry(ctx context.Context, log logger.Logger, opts ConsumeOptions, delivery amqp.Delivery, handler Handler) error {
	attempts := opts.MaxRetries
	if attempts <= 0 {
		attempts = DefaultMaxRetries
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}

	return retry.Do(
		func() error {
			err := handler(ctx, delivery)
			if errors.Is(err, ErrMalformed) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Debug(ctx, "retrying handler",
				logger.Field{Key: "attempt", Value: n + 1},
				logger.Err(err),
			)
		}),
	)
}

// settle acks or rejects (never requeues) under the guard, on the channel the
// delivery came from.
func (c *Consumer) settle(
	ctx context.Context,
	log logger.Logger,
	registered Channel,
	opts ConsumeOptions,
	delivery amqp.Delivery,
	how settlement,
) error {
	err := c.client.guard.WithChannel(func(ch Channel) error {
		if ch != registered {
			return ErrChannelReplaced
		}
		if how == settleAck {
			return ch.Ack(delivery.DeliveryTag, false)
		}
		return ch.Reject(delivery.DeliveryTag, false)
	})
	if err != nil {
		log.Error(ctx, "failed to settle message",
			logger.Field{Key: "delivery_tag", Value: delivery.DeliveryTag},
			logger.Err(err),
		)
		if errors.Is(err, ErrChannelReplaced) || errors.Is(err, ErrChannelClosed) {
			return err
		}
		return fmt.Errorf("%w: settle: %v", ErrChannelClosed, err)
	}

	if how == settleAck {
		c.metrics.observeDelivery(opts.ConsumerTag, OutcomeAcked)
		log.Debug(ctx, "message acknowledged", logger.Field{Key: "delivery_tag", Value: delivery.DeliveryTag})
	} else {
		c.metrics.observeDelivery(opts.ConsumerTag, OutcomeRejected)
	}
	return nil
}
