package viewed

import (
	"context"
	"time"

	"videohub/pkg/logger"
	"videohub/pkg/rabbitmq"
)

// SubscriberConfig describes one subscriber type.
type SubscriberConfig struct {
	Name          string
	ConsumerTag   string
	FailurePolicy rabbitmq.FailurePolicy
	MaxRetries    int
	RetryDelay    time.Duration
}

// Subscriber binds a private queue to the viewed exchange and feeds every
// event to its sink.
type Subscriber struct {
	config  SubscriberConfig
	sink    RecordSink
	metrics *rabbitmq.Metrics
	logger  logger.Logger
}

func NewSubscriber(config SubscriberConfig, sink RecordSink, metrics *rabbitmq.Metrics, log logger.Logger) *Subscriber {
	return &Subscriber{
		config:  config,
		sink:    sink,
		metrics: metrics,
		logger:  log.With(logger.Field{Key: "subscriber", Value: config.Name}),
	}
}

// Session bootstraps the topology on client and consumes until the delivery
// stream ends. It matches rabbitmq.Session so a Supervisor can rerun it on
// every new connection, each time with a fresh anonymous queue.
func (s *Subscriber) Session(ctx context.Context, client *rabbitmq.Client) error {
	queue, err := rabbitmq.NewTopologyManager(client).AssertExchangeAndQueue(ExchangeName)
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "subscribed to view events",
		logger.Field{Key: "exchange", Value: ExchangeName},
		logger.Field{Key: "queue", Value: queue},
	)

	return rabbitmq.NewConsumer(client, s.metrics).Run(ctx, rabbitmq.ConsumeOptions{
		QueueName:     queue,
		ConsumerTag:   s.config.ConsumerTag,
		FailurePolicy: s.config.FailurePolicy,
		MaxRetries:    s.config.MaxRetries,
		RetryDelay:    s.config.RetryDelay,
	}, NewHandler(s.sink, s.logger))
}
