package viewed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"videohub/pkg/logger"
	"videohub/pkg/rabbitmq"

	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	DefaultPublishTimeout  = 5 * time.Second
	DefaultMaxInFlight     = 256
	DefaultBreakerFailures = 5
	DefaultBreakerCooldown = 30 * time.Second
)

// PublisherConfig bounds the fire-and-forget path.
type PublisherConfig struct {
	// Timeout caps each asynchronous publish.
	Timeout time.Duration
	// MaxInFlight caps concurrent asynchronous publishes; extra events are dropped.
	MaxInFlight int
	// BreakerFailures consecutive failures open the breaker for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

func (c PublisherConfig) withDefaults() PublisherConfig {
	if c.Timeout <= 0 {
		c.Timeout = DefaultPublishTimeout
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = DefaultMaxInFlight
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = DefaultBreakerFailures
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = DefaultBreakerCooldown
	}
	return c
}

// Publisher broadcasts view events. It publishes through whichever broker
// session is currently attached and never blocks its asynchronous callers.
type Publisher struct {
	config   PublisherConfig
	logger   logger.Logger
	metrics  *rabbitmq.Metrics
	producer atomic.Pointer[rabbitmq.Producer]
	breaker  *gobreaker.CircuitBreaker[struct{}]

	slots chan struct{}
	wg    sync.WaitGroup
}

func NewPublisher(config PublisherConfig, metrics *rabbitmq.Metrics, log logger.Logger) *Publisher {
	config = config.withDefaults()
	p := &Publisher{
		config:  config,
		logger:  log,
		metrics: metrics,
		slots:   make(chan struct{}, config.MaxInFlight),
	}
	p.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "viewed-publisher",
		Timeout: config.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn(context.Background(), "publish circuit breaker state changed",
				logger.Field{Key: "breaker", Value: name},
				logger.Field{Key: "from", Value: from.String()},
				logger.Field{Key: "to", Value: to.String()},
			)
		},
	})
	return p
}

// Attach routes publishes through client until Detach.
func (p *Publisher) Attach(client *rabbitmq.Client) {
	p.producer.Store(rabbitmq.NewProducer(client, p.metrics))
}

// Detach stops publishing; Publish returns ErrNotConnected until the next Attach.
func (p *Publisher) Detach() {
	p.producer.Store(nil)
}

// Session attaches client and holds it until the connection closes or ctx
// ends. It matches rabbitmq.Session.
func (p *Publisher) Session(ctx context.Context, client *rabbitmq.Client) error {
	p.Attach(client)
	defer p.Detach()

	select {
	case <-ctx.Done():
		return nil
	case err := <-client.NotifyClose():
		if err != nil {
			return errors.Join(rabbitmq.ErrConnectionClosed, err)
		}
		return rabbitmq.ErrConnectionClosed
	}
}

// Publish sends one view event and waits for the broker. The exchange check
// and the publish happen as one step on the shared channel.
func (p *Publisher) Publish(ctx context.Context, videoPath string) error {
	if videoPath == "" {
		return ErrEmptyVideoPath
	}
	producer := p.producer.Load()
	if producer == nil {
		return ErrNotConnected
	}

	_, err := p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, producer.PublishFanout(ctx, ExchangeName, ViewEvent{VideoPath: videoPath})
	})
	return err
}

// PublishAsync publishes in the background with its own timeout. The outcome
// is only logged. When MaxInFlight publishes are already pending the event is
// dropped.
func (p *Publisher) PublishAsync(ctx context.Context, videoPath string) {
	select {
	case p.slots <- struct{}{}:
	default:
		p.logger.Warn(ctx, "dropping view event, too many publishes in flight",
			logger.Field{Key: "video_path", Value: videoPath},
			logger.Field{Key: "max_in_flight", Value: p.config.MaxInFlight},
		)
		return
	}

	// Keep trace values from the request but not its cancellation.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.config.Timeout)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.slots }()
		defer cancel()

		if err := p.Publish(ctx, videoPath); err != nil {
			p.logger.Warn(ctx, "view event not published",
				logger.Field{Key: "video_path", Value: videoPath},
				logger.Err(err),
			)
			return
		}
		p.logger.Debug(ctx, "view event published", logger.Field{Key: "video_path", Value: videoPath})
	}()
}

// Wait blocks until every asynchronous publish has finished or ctx ends.
func (p *Publisher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
