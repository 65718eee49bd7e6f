package viewed

import (
	"context"
	"sync"
	"testing"

	"videohub/pkg/logger"
	"videohub/pkg/rabbitmq"
	"videohub/pkg/rabbitmq/rabbitmqtest"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

// memorySink records every inserted path.
type memorySink struct {
	mu    sync.Mutex
	paths []string
}

func (s *memorySink) Insert(_ context.Context, videoPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, videoPath)
	return nil
}

func (s *memorySink) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

func newClient(broker *rabbitmqtest.Broker) (*rabbitmq.Client, *rabbitmqtest.Channel) {
	ch := broker.Channel()
	return rabbitmq.NewClientWithChannel(nil, ch, logger.NewNop()), ch
}

func declareViewed(t *testing.T, broker *rabbitmqtest.Broker) {
	t.Helper()
	client, _ := newClient(broker)
	require.NoError(t, rabbitmq.NewTopologyManager(client).DeclareExchange(rabbitmq.FanoutExchange(ExchangeName)))
}

func amqpPublishing(body string) amqp.Publishing {
	return amqp.Publishing{ContentType: "application/json", Body: []byte(body)}
}
