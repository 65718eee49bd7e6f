package rabbitmq

import (
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	// ErrURLRequired is returned when the RabbitMQ URL is not provided
	ErrURLRequired = errors.New("rabbitmq: URL is required")

	// ErrConnectionFailed wraps dial and channel-open failures.
	ErrConnectionFailed = errors.New("rabbitmq: connection failed")

	// ErrConnectionClosed is returned once the broker connection is gone.
	ErrConnectionClosed = errors.New("rabbitmq: connection closed")

	// ErrChannelClosed is returned when the guarded channel is closed and cannot be reopened.
	ErrChannelClosed = errors.New("rabbitmq: channel closed")

	// ErrChannelReplaced is returned when a delivery is settled after its channel was reopened.
	ErrChannelReplaced = errors.New("rabbitmq: channel replaced since delivery")

	// ErrExchangeNotFound is returned by a passive declare of a missing exchange.
	ErrExchangeNotFound = errors.New("rabbitmq: no such exchange")

	// ErrTopology wraps any exchange/queue/binding declaration failure.
	ErrTopology = errors.New("rabbitmq: topology declaration failed")

	// ErrDeliveriesClosed is returned by the consumer loop when the delivery stream ends.
	ErrDeliveriesClosed = errors.New("rabbitmq: delivery channel closed")

	// ErrHandlerFailed wraps a handler error that aborted the consumer loop.
	ErrHandlerFailed = errors.New("rabbitmq: handler failed")

	// ErrMalformed marks a delivery that can never be processed. Handlers wrap it
	// and the consumer rejects the delivery without requeue.
	ErrMalformed = errors.New("rabbitmq: malformed message")
)

// IsFatal reports whether err must stop a subscriber instead of triggering a
// reconnect. Aborting handler failures are fatal. A topology failure is fatal
// only when the broker refused the declaration; a declaration cut short by a
// lost channel or connection is retried on a fresh dial.
func IsFatal(err error) bool {
	if errors.Is(err, ErrHandlerFailed) {
		return true
	}
	if !errors.Is(err, ErrTopology) {
		return false
	}
	return !isConnectionLoss(err)
}

// isConnectionLoss reports whether err stems from the channel or connection
// going away rather than from a broker reply.
func isConnectionLoss(err error) bool {
	if errors.Is(err, amqp.ErrClosed) || errors.Is(err, ErrChannelClosed) || errors.Is(err, ErrConnectionClosed) {
		return true
	}
	var amqpErr *amqp.Error
	if !errors.As(err, &amqpErr) {
		return false
	}
	return !amqpErr.Server || amqpErr.Code == amqp.ConnectionForced
}

func isNotFound(err error) bool {
	var amqpErr *amqp.Error
	return errors.As(err, &amqpErr) && amqpErr.Code == amqp.NotFound
}
