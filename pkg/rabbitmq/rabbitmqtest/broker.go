// Package rabbitmqtest provides an in-memory broker whose channels satisfy
// rabbitmq.Channel, for tests that need exchange/queue semantics without a
// running RabbitMQ.
package rabbitmqtest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"
)

const queueBuffer = 1024

type exchange struct {
	kind       string
	durable    bool
	autoDelete bool
	internal   bool
}

type queue struct {
	name       string
	owner      *Channel
	exclusive  bool
	autoDelete bool
	durable    bool
	deliveries chan amqp.Delivery
	consumer   *Channel
	nextTag    uint64
}

// Broker is a minimal in-memory AMQP broker: direct delivery through the
// default exchange and fanout exchanges.
type Broker struct {
	mu        sync.Mutex
	exchanges map[string]exchange
	queues    map[string]*queue
	bindings  map[string]map[string]struct{} // exchange -> queues
	seq       int
}

func NewBroker() *Broker {
	return &Broker{
		exchanges: make(map[string]exchange),
		queues:    make(map[string]*queue),
		bindings:  make(map[string]map[string]struct{}),
	}
}

// Channel opens a new channel on the broker.
func (b *Broker) Channel() *Channel {
	return &Channel{broker: b}
}

// HasExchange reports whether name was declared.
func (b *Broker) HasExchange(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.exchanges[name]
	return ok
}

// Queues returns the names of the queues bound to exchange.
func (b *Broker) Queues(exchange string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for q := range b.bindings[exchange] {
		out = append(out, q)
	}
	return out
}

// QueueExists reports whether a queue with that name is declared.
func (b *Broker) QueueExists(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.queues[name]
	return ok
}

// Rejection records a basic.reject.
type Rejection struct {
	Tag     uint64
	Requeue bool
}

// Publication records a publish as seen by the broker.
type Publication struct {
	Exchange   string
	RoutingKey string
	Msg        amqp.Publishing
}

// Channel is an in-memory channel. Every method errors with amqp.ErrClosed
// once the channel is closed, and broker-side failures close it like a real
// server would.
type Channel struct {
	broker *Broker

	mu        sync.Mutex
	closed    bool
	acked     []uint64
	rejected  []Rejection
	published []Publication
	failures  map[string]error

	inflight   atomic.Int32
	overlapped atomic.Bool
}

var (
	errNotFound = func(what string) *amqp.Error {
		return &amqp.Error{Code: amqp.NotFound, Reason: "NOT_FOUND - " + what, Server: true, Recover: true}
	}
	errPrecondition = func(what string) *amqp.Error {
		return &amqp.Error{Code: amqp.PreconditionFailed, Reason: "PRECONDITION_FAILED - " + what, Server: true, Recover: true}
	}
)

// FailNext makes the next call to op ("ExchangeDeclare", "QueueDeclare",
// "QueueBind", "Consume", "Publish", "Ack", "Reject") return err.
func (c *Channel) FailNext(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failures == nil {
		c.failures = make(map[string]error)
	}
	c.failures[op] = err
}

// Acked returns the delivery tags acknowledged on this channel.
func (c *Channel) Acked() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint64(nil), c.acked...)
}

// Rejected returns the rejections made on this channel.
func (c *Channel) Rejected() []Rejection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Rejection(nil), c.rejected...)
}

// Published returns what was published through this channel.
func (c *Channel) Published() []Publication {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Publication(nil), c.published...)
}

// Overlapped reports whether two operations ever ran on this channel at once.
func (c *Channel) Overlapped() bool {
	return c.overlapped.Load()
}

func (c *Channel) enter(op string) (func(), error) {
	if c.inflight.Add(1) > 1 {
		c.overlapped.Store(true)
	}
	leave := func() { c.inflight.Add(-1) }

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		leave()
		return nil, amqp.ErrClosed
	}
	if err, ok := c.failures[op]; ok {
		delete(c.failures, op)
		leave()
		return nil, err
	}
	return leave, nil
}

func (c *Channel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	leave, err := c.enter("ExchangeDeclare")
	if err != nil {
		return err
	}
	defer leave()

	b := c.broker
	b.mu.Lock()
	want := exchange{kind: kind, durable: durable, autoDelete: autoDelete, internal: internal}
	existing, ok := b.exchanges[name]
	if ok && existing != want {
		b.mu.Unlock()
		c.closeChannel()
		return errPrecondition(fmt.Sprintf("inequivalent arg for exchange '%s'", name))
	}
	b.exchanges[name] = want
	b.mu.Unlock()
	return nil
}

func (c *Channel) ExchangeDeclarePassive(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	leave, err := c.enter("ExchangeDeclarePassive")
	if err != nil {
		return err
	}
	defer leave()

	b := c.broker
	b.mu.Lock()
	_, ok := b.exchanges[name]
	b.mu.Unlock()
	if !ok {
		c.closeChannel()
		return errNotFound(fmt.Sprintf("no exchange '%s' in vhost '/'", name))
	}
	return nil
}

func (c *Channel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	leave, err := c.enter("QueueDeclare")
	if err != nil {
		return amqp.Queue{}, err
	}
	defer leave()

	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	if name == "" {
		b.seq++
		name = fmt.Sprintf("amq.gen-%d", b.seq)
	}
	if q, ok := b.queues[name]; ok {
		if q.exclusive && q.owner != c {
			return amqp.Queue{}, &amqp.Error{Code: amqp.ResourceLocked, Reason: "RESOURCE_LOCKED", Server: true}
		}
		return amqp.Queue{Name: name, Messages: len(q.deliveries)}, nil
	}
	b.queues[name] = &queue{
		name:       name,
		owner:      c,
		exclusive:  exclusive,
		autoDelete: autoDelete,
		durable:    durable,
		deliveries: make(chan amqp.Delivery, queueBuffer),
	}
	return amqp.Queue{Name: name}, nil
}

func (c *Channel) QueueBind(name, key, exchangeName string, noWait bool, args amqp.Table) error {
	leave, err := c.enter("QueueBind")
	if err != nil {
		return err
	}
	defer leave()

	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.exchanges[exchangeName]; !ok {
		return errNotFound(fmt.Sprintf("no exchange '%s' in vhost '/'", exchangeName))
	}
	if _, ok := b.queues[name]; !ok {
		return errNotFound(fmt.Sprintf("no queue '%s' in vhost '/'", name))
	}
	if b.bindings[exchangeName] == nil {
		b.bindings[exchangeName] = make(map[string]struct{})
	}
	b.bindings[exchangeName][name] = struct{}{}
	return nil
}

func (c *Channel) Qos(prefetchCount, prefetchSize int, global bool) error {
	leave, err := c.enter("Qos")
	if err != nil {
		return err
	}
	defer leave()
	return nil
}

func (c *Channel) Consume(queueName, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	leave, err := c.enter("Consume")
	if err != nil {
		return nil, err
	}
	defer leave()

	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[queueName]
	if !ok {
		return nil, errNotFound(fmt.Sprintf("no queue '%s' in vhost '/'", queueName))
	}
	q.consumer = c
	return q.deliveries, nil
}

func (c *Channel) PublishWithContext(ctx context.Context, exchangeName, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	leave, err := c.enter("Publish")
	if err != nil {
		return err
	}
	defer leave()

	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	c.published = append(c.published, Publication{Exchange: exchangeName, RoutingKey: key, Msg: msg})
	c.mu.Unlock()

	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	var targets []*queue
	if exchangeName == "" {
		if q, ok := b.queues[key]; ok {
			targets = append(targets, q)
		}
	} else {
		if _, ok := b.exchanges[exchangeName]; !ok {
			b.mu.Unlock()
			c.closeChannel()
			b.mu.Lock()
			return errNotFound(fmt.Sprintf("no exchange '%s' in vhost '/'", exchangeName))
		}
		for name := range b.bindings[exchangeName] {
			targets = append(targets, b.queues[name])
		}
	}

	for _, q := range targets {
		q.nextTag++
		d := amqp.Delivery{
			Headers:     msg.Headers,
			ContentType: msg.ContentType,
			DeliveryTag: q.nextTag,
			Exchange:    exchangeName,
			RoutingKey:  key,
			Body:        append([]byte(nil), msg.Body...),
		}
		select {
		case q.deliveries <- d:
		default:
		}
	}
	return nil
}

func (c *Channel) Ack(tag uint64, multiple bool) error {
	leave, err := c.enter("Ack")
	if err != nil {
		return err
	}
	defer leave()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.acked = append(c.acked, tag)
	return nil
}

func (c *Channel) Reject(tag uint64, requeue bool) error {
	leave, err := c.enter("Reject")
	if err != nil {
		return err
	}
	defer leave()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejected = append(c.rejected, Rejection{Tag: tag, Requeue: requeue})
	return nil
}

func (c *Channel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close closes the channel, ends its consumers' delivery streams and deletes
// the exclusive or auto-delete queues it owns.
func (c *Channel) Close() error {
	c.closeChannel()
	return nil
}

// closeChannel must be called without c.broker.mu held.
func (c *Channel) closeChannel() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	for name, q := range b.queues {
		owned := q.owner == c && (q.exclusive || q.autoDelete)
		if owned {
			delete(b.queues, name)
			for _, qs := range b.bindings {
				delete(qs, name)
			}
		}
		if q.consumer != nil && (q.consumer == c || owned) {
			close(q.deliveries)
			q.consumer = nil
			if !owned {
				q.deliveries = make(chan amqp.Delivery, queueBuffer)
			}
		}
	}
}
