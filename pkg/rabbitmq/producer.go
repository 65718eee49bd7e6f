package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	"videohub/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Producer handles message publishing with OTel tracing
type Producer struct {
	client  *Client
	metrics *Metrics
	tracer  trace.Tracer
}

// NewProducer creates a new Producer instance
func NewProducer(client *Client, metrics *Metrics) *Producer {
	return &Producer{
		client:  client,
		metrics: metrics,
		tracer:  otel.Tracer("rabbitmq-producer"),
	}
}

// PublishOptions contains options for publishing a message
type PublishOptions struct {
	Exchange   string
	RoutingKey string
	Mandatory  bool
	Headers    map[string]interface{}

	// Verify, when set, is passively declared in the same guarded step as the
	// publish so a missing exchange fails with ErrExchangeNotFound.
	Verify *ExchangeConfig
}

// Publish JSON-encodes payload and publishes it. The exchange check and the
// publish run as a single unit under the channel guard.
func (p *Producer) Publish(ctx context.Context, opts PublishOptions, payload interface{}) (err error) {
	ctx, span := p.tracer.Start(ctx, "rabbitmq.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", opts.Exchange),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		p.metrics.observePublish(opts.Exchange, err)
	}()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	headers := amqp.Table{}
	for k, v := range opts.Headers {
		headers[k] = v
	}

	// Inject trace context into headers
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for k, v := range carrier {
		headers[k] = v
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Transient,
		Headers:      headers,
	}

	err = p.client.guard.WithChannel(func(ch Channel) error {
		if opts.Verify != nil {
			if err := checkExchange(ch, *opts.Verify); err != nil {
				return err
			}
		}
		return ch.PublishWithContext(ctx, opts.Exchange, opts.RoutingKey, opts.Mandatory, false, publishing)
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.client.logger.Debug(ctx, "message published successfully",
		logger.Field{Key: "exchange", Value: opts.Exchange},
		logger.Field{Key: "routing_key", Value: opts.RoutingKey},
	)
	return nil
}

// PublishFanout publishes payload to a fanout exchange after checking that the
// exchange exists.
func (p *Producer) PublishFanout(ctx context.Context, exchange string, payload interface{}) error {
	verify := FanoutExchange(exchange)
	return p.Publish(ctx, PublishOptions{
		Exchange:   exchange,
		RoutingKey: "",
		Verify:     &verify,
	}, payload)
}
