package rabbitmq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel operations used by this package.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	ExchangeDeclarePassive(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Ack(tag uint64, multiple bool) error
	Reject(tag uint64, requeue bool) error
	IsClosed() bool
	Close() error
}

var _ Channel = (*amqp.Channel)(nil)

// ChannelGuard serializes every protocol operation on the one channel a
// process shares between bootstrap, publish and consume paths.
type ChannelGuard struct {
	mu   sync.Mutex
	ch   Channel
	open func() (Channel, error)
}

// NewChannelGuard wraps ch. When open is non-nil it is used to replace ch after
// the broker closed it (a failed passive declare closes the channel).
func NewChannelGuard(ch Channel, open func() (Channel, error)) *ChannelGuard {
	return &ChannelGuard{ch: ch, open: open}
}

// WithChannel runs fn with exclusive access to the channel. The lock is
// released on every exit path, panics included.
func (g *ChannelGuard) WithChannel(fn func(ch Channel) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ch == nil || g.ch.IsClosed() {
		if g.open == nil {
			return ErrChannelClosed
		}
		ch, err := g.open()
		if err != nil {
			return fmt.Errorf("%w: reopen: %v", ErrChannelClosed, err)
		}
		g.ch = ch
	}

	return fn(g.ch)
}

func (g *ChannelGuard) isOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ch != nil && !g.ch.IsClosed()
}

// Close closes the current channel, if any.
func (g *ChannelGuard) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ch == nil || g.ch.IsClosed() {
		return nil
	}
	err := g.ch.Close()
	g.ch = nil
	return err
}
