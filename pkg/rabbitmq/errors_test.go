package rabbitmq

import (
	"errors"
	"fmt"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestIsFatal(t *testing.T) {
	refused := func(code int) error {
		return &amqp.Error{Code: code, Reason: "refused", Server: true}
	}
	topology := func(cause error) error {
		return fmt.Errorf("%w: declare exchange viewed: %w", ErrTopology, cause)
	}

	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"precondition failed", topology(refused(amqp.PreconditionFailed)), true},
		{"access refused", topology(refused(amqp.AccessRefused)), true},
		{"not allowed", topology(refused(amqp.NotAllowed)), true},
		{"closed channel", topology(amqp.ErrClosed), false},
		{"guard could not reopen", topology(fmt.Errorf("%w: reopen: boom", ErrChannelClosed)), false},
		{"connection gone", topology(ErrConnectionClosed), false},
		{"connection forced", topology(&amqp.Error{Code: amqp.ConnectionForced, Server: true}), false},
		{"handler abort", fmt.Errorf("%w: db down", ErrHandlerFailed), true},
		{"deliveries closed", ErrDeliveriesClosed, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
		})
	}
}
