package viewed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"videohub/pkg/logger"
	"videohub/pkg/rabbitmq"
	"videohub/pkg/rabbitmq/rabbitmqtest"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runningSubscriber struct {
	sink *memorySink
	ch   *rabbitmqtest.Channel
	done chan error
}

func startSubscriber(ctx context.Context, broker *rabbitmqtest.Broker, cfg SubscriberConfig, sink RecordSink) *runningSubscriber {
	client, ch := newClient(broker)
	rs := &runningSubscriber{ch: ch, done: make(chan error, 1)}
	if ms, ok := sink.(*memorySink); ok {
		rs.sink = ms
	}
	sub := NewSubscriber(cfg, sink, nil, logger.NewNop())
	go func() { rs.done <- sub.Session(ctx, client) }()
	return rs
}

func waitForQueues(t *testing.T, broker *rabbitmqtest.Broker, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(broker.Queues(ExchangeName)) == n }, 2*time.Second, 5*time.Millisecond)
}

func TestSubscribers_EndToEnd(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	history := startSubscriber(ctx, broker, SubscriberConfig{Name: "history", ConsumerTag: HistoryConsumerTag}, &memorySink{})
	recommendations := startSubscriber(ctx, broker, SubscriberConfig{Name: "recommendations", ConsumerTag: RecommendationsConsumerTag}, &memorySink{})
	waitForQueues(t, broker, 2)

	pubClient, _ := newClient(broker)
	p := NewPublisher(PublisherConfig{}, nil, logger.NewNop())
	p.Attach(pubClient)
	require.NoError(t, p.Publish(context.Background(), "movies/a.mp4"))

	for _, s := range []*runningSubscriber{history, recommendations} {
		assert.Eventually(t, func() bool { return len(s.ch.Acked()) == 1 }, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, []string{"movies/a.mp4"}, s.sink.recorded())
		assert.Empty(t, s.ch.Rejected())
	}

	cancel()
	for _, s := range []*runningSubscriber{history, recommendations} {
		assert.ErrorIs(t, <-s.done, context.Canceled)
	}
}

func TestSubscribers_SameTypeInstancesEachGetEveryEvent(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := SubscriberConfig{Name: "history", ConsumerTag: HistoryConsumerTag}
	a := startSubscriber(ctx, broker, cfg, &memorySink{})
	b := startSubscriber(ctx, broker, cfg, &memorySink{})
	waitForQueues(t, broker, 2)

	pubClient, _ := newClient(broker)
	p := NewPublisher(PublisherConfig{}, nil, logger.NewNop())
	p.Attach(pubClient)

	want := []string{"a.mp4", "b.mp4", "c.mp4", "d.mp4"}
	for _, path := range want {
		require.NoError(t, p.Publish(context.Background(), path))
	}

	for _, s := range []*runningSubscriber{a, b} {
		assert.Eventually(t, func() bool { return len(s.sink.recorded()) == len(want) }, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, want, s.sink.recorded())
	}
}

func TestSubscriber_MalformedDoesNotStopConsumption(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := startSubscriber(ctx, broker, SubscriberConfig{Name: "history", ConsumerTag: HistoryConsumerTag}, &memorySink{})
	waitForQueues(t, broker, 1)
	queue := broker.Queues(ExchangeName)[0]

	raw := broker.Channel()
	for _, body := range []string{`{{`, `{"other":1}`, `{"video_path":"ok.mp4"}`} {
		require.NoError(t, raw.PublishWithContext(context.Background(), "", queue, false, false, amqpPublishing(body)))
	}

	assert.Eventually(t, func() bool { return len(s.ch.Acked()) == 1 && len(s.ch.Rejected()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"ok.mp4"}, s.sink.recorded())
}

func TestSubscriber_SinkFailureAbortsByDefault(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	storeErr := errors.New("insert failed")
	sink := RecordSinkFunc(func(context.Context, string) error { return storeErr })

	s := startSubscriber(context.Background(), broker, SubscriberConfig{Name: "history", ConsumerTag: HistoryConsumerTag}, sink)
	waitForQueues(t, broker, 1)

	pubClient, _ := newClient(broker)
	p := NewPublisher(PublisherConfig{}, nil, logger.NewNop())
	p.Attach(pubClient)
	require.NoError(t, p.Publish(context.Background(), "movies/a.mp4"))

	select {
	case err := <-s.done:
		assert.ErrorIs(t, err, storeErr)
		assert.True(t, rabbitmq.IsFatal(err))
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber kept running after a sink failure")
	}
}

func TestSubscriber_SinkFailureRejectPolicy(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := RecordSinkFunc(func(_ context.Context, path string) error {
		if path == "bad.mp4" {
			return errors.New("insert failed")
		}
		return nil
	})
	s := startSubscriber(ctx, broker, SubscriberConfig{
		Name:          "history",
		ConsumerTag:   HistoryConsumerTag,
		FailurePolicy: rabbitmq.PolicyReject,
	}, sink)
	waitForQueues(t, broker, 1)

	pubClient, _ := newClient(broker)
	p := NewPublisher(PublisherConfig{}, nil, logger.NewNop())
	p.Attach(pubClient)
	require.NoError(t, p.Publish(context.Background(), "bad.mp4"))
	require.NoError(t, p.Publish(context.Background(), "good.mp4"))

	assert.Eventually(t, func() bool { return len(s.ch.Acked()) == 1 && len(s.ch.Rejected()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestSubscriber_TopologyConflictIsFatal(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	client, _ := newClient(broker)
	conflicting := rabbitmq.FanoutExchange(ExchangeName)
	conflicting.Kind = rabbitmq.ExchangeKindDirect
	require.NoError(t, rabbitmq.NewTopologyManager(client).DeclareExchange(conflicting))

	subClient, _ := newClient(broker)
	err := NewSubscriber(SubscriberConfig{Name: "history", ConsumerTag: HistoryConsumerTag}, &memorySink{}, nil, logger.NewNop()).
		Session(context.Background(), subClient)

	assert.ErrorIs(t, err, rabbitmq.ErrTopology)
	assert.True(t, rabbitmq.IsFatal(err))
}

func TestSubscriber_SupervisedReconnectGetsFreshQueue(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	cfg := rabbitmq.NewDefaultConfig()
	cfg.ReconnectInitialInterval = time.Millisecond
	cfg.ReconnectMaxInterval = 5 * time.Millisecond

	channels := make(chan *rabbitmqtest.Channel, 4)
	dial := func() (*rabbitmq.Client, error) {
		ch := broker.Channel()
		channels <- ch
		return rabbitmq.NewClientWithChannel(cfg, ch, logger.NewNop()), nil
	}

	first, err := dial()
	require.NoError(t, err)

	sink := &memorySink{}
	sub := NewSubscriber(SubscriberConfig{Name: "history", ConsumerTag: HistoryConsumerTag}, sink, nil, logger.NewNop())
	sup := rabbitmq.NewSupervisor(cfg, logger.NewNop(), nil).WithDialer(dial)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx, first, sub.Session) }()

	firstCh := <-channels
	waitForQueues(t, broker, 1)
	firstQueue := broker.Queues(ExchangeName)[0]

	// Dropping the channel ends the delivery stream; the supervisor redials.
	require.NoError(t, firstCh.Close())
	<-channels
	require.Eventually(t, func() bool {
		qs := broker.Queues(ExchangeName)
		return len(qs) == 1 && qs[0] != firstQueue
	}, 2*time.Second, 5*time.Millisecond)

	pubClient, _ := newClient(broker)
	p := NewPublisher(PublisherConfig{}, nil, logger.NewNop())
	p.Attach(pubClient)
	require.NoError(t, p.Publish(context.Background(), "after.mp4"))

	assert.Eventually(t, func() bool { return len(sink.recorded()) == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestSubscriber_ClosedChannelDuringAssertReconnects(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	cfg := rabbitmq.NewDefaultConfig()
	cfg.ReconnectInitialInterval = time.Millisecond
	cfg.ReconnectMaxInterval = 5 * time.Millisecond

	var dials atomic.Int32
	var firstCh *rabbitmqtest.Channel
	dial := func() (*rabbitmq.Client, error) {
		ch := broker.Channel()
		switch dials.Add(1) {
		case 1:
			firstCh = ch
		case 2:
			ch.FailNext("ExchangeDeclare", amqp.ErrClosed)
		}
		return rabbitmq.NewClientWithChannel(cfg, ch, logger.NewNop()), nil
	}

	first, err := dial()
	require.NoError(t, err)

	sink := &memorySink{}
	sub := NewSubscriber(SubscriberConfig{Name: "history", ConsumerTag: HistoryConsumerTag}, sink, nil, logger.NewNop())
	sup := rabbitmq.NewSupervisor(cfg, logger.NewNop(), nil).WithDialer(dial)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx, first, sub.Session) }()

	waitForQueues(t, broker, 1)
	require.NoError(t, firstCh.Close())

	require.Eventually(t, func() bool { return dials.Load() >= 3 && len(broker.Queues(ExchangeName)) == 1 },
		2*time.Second, 5*time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("supervisor stopped after a closed channel: %v", err)
	default:
	}

	pubClient, _ := newClient(broker)
	p := NewPublisher(PublisherConfig{}, nil, logger.NewNop())
	p.Attach(pubClient)
	require.NoError(t, p.Publish(context.Background(), "after.mp4"))
	assert.Eventually(t, func() bool { return len(sink.recorded()) == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
