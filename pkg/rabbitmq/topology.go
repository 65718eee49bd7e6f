package rabbitmq

import (
	"context"
	"fmt"

	"videohub/pkg/logger"
)

// TopologyManager handles queue/exchange/binding declarations
type TopologyManager struct {
	client *Client
}

// NewTopologyManager creates a new topology manager
func NewTopologyManager(client *Client) *TopologyManager {
	return &TopologyManager{client: client}
}

// DeclareExchange actively declares an exchange. Re-declaring with identical
// parameters is a no-op on the broker; conflicting parameters fail.
func (tm *TopologyManager) DeclareExchange(config ExchangeConfig) error {
	err := tm.client.guard.WithChannel(func(ch Channel) error {
		return ch.ExchangeDeclare(
			config.Name,
			config.Kind,
			config.Durable,
			config.AutoDelete,
			config.Internal,
			config.NoWait,
			config.Args,
		)
	})
	if err != nil {
		return fmt.Errorf("%w: declare exchange %s: %w", ErrTopology, config.Name, err)
	}

	tm.client.logger.Info(context.Background(), "exchange declared",
		logger.Field{Key: "exchange", Value: config.Name},
		logger.Field{Key: "type", Value: config.Kind},
	)
	return nil
}

// CheckExchange passively declares an exchange: nothing is created, and a
// missing exchange yields ErrExchangeNotFound.
func (tm *TopologyManager) CheckExchange(config ExchangeConfig) error {
	return tm.client.guard.WithChannel(func(ch Channel) error {
		return checkExchange(ch, config)
	})
}

func checkExchange(ch Channel, config ExchangeConfig) error {
	err := ch.ExchangeDeclarePassive(
		config.Name,
		config.Kind,
		config.Durable,
		config.AutoDelete,
		config.Internal,
		config.NoWait,
		config.Args,
	)
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return fmt.Errorf("%w: %s: %w", ErrExchangeNotFound, config.Name, err)
	}
	return fmt.Errorf("passive declare exchange %s: %w", config.Name, err)
}

// DeclareQueue declares a queue and returns the name the broker settled on,
// which differs from config.Name for anonymous queues.
func (tm *TopologyManager) DeclareQueue(config QueueConfig) (string, error) {
	var name string
	err := tm.client.guard.WithChannel(func(ch Channel) error {
		q, err := ch.QueueDeclare(
			config.Name,
			config.Durable,
			config.AutoDelete,
			config.Exclusive,
			config.NoWait,
			config.Args,
		)
		if err != nil {
			return err
		}
		name = q.Name
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: declare queue %q: %w", ErrTopology, config.Name, err)
	}

	tm.client.logger.Info(context.Background(), "queue declared",
		logger.Field{Key: "queue", Value: name},
		logger.Field{Key: "exclusive", Value: config.Exclusive},
	)
	return name, nil
}

// BindQueue binds a queue to an exchange
func (tm *TopologyManager) BindQueue(config BindingConfig) error {
	err := tm.client.guard.WithChannel(func(ch Channel) error {
		return ch.QueueBind(
			config.QueueName,
			config.RoutingKey,
			config.Exchange,
			config.NoWait,
			config.Args,
		)
	})
	if err != nil {
		return fmt.Errorf("%w: bind queue %s to exchange %s: %w", ErrTopology, config.QueueName, config.Exchange, err)
	}

	tm.client.logger.Info(context.Background(), "queue bound",
		logger.Field{Key: "queue", Value: config.QueueName},
		logger.Field{Key: "exchange", Value: config.Exchange},
		logger.Field{Key: "routing_key", Value: config.RoutingKey},
	)
	return nil
}

// AssertExchangeAndQueue is the subscriber bootstrap: declare the fanout
// exchange, declare a server-named exclusive auto-delete queue and bind it
// with an empty routing key. It returns the broker-assigned queue name.
func (tm *TopologyManager) AssertExchangeAndQueue(exchange string) (string, error) {
	if err := tm.DeclareExchange(FanoutExchange(exchange)); err != nil {
		return "", err
	}

	queue, err := tm.DeclareQueue(QueueConfig{
		Name:       "",
		Durable:    false,
		AutoDelete: true,
		Exclusive:  true,
	})
	if err != nil {
		return "", err
	}

	if err := tm.BindQueue(BindingConfig{
		QueueName:  queue,
		Exchange:   exchange,
		RoutingKey: "",
	}); err != nil {
		return "", err
	}

	return queue, nil
}
