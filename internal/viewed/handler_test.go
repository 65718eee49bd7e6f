package viewed

import (
	"context"
	"errors"
	"testing"

	"videohub/pkg/logger"
	"videohub/pkg/rabbitmq"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Insert(ctx context.Context, videoPath string) error {
	args := m.Called(ctx, videoPath)
	return args.Error(0)
}

func TestHandler(t *testing.T) {
	t.Run("inserts the video path", func(t *testing.T) {
		sink := new(MockSink)
		sink.On("Insert", mock.Anything, "movies/a.mp4").Return(nil)

		err := NewHandler(sink, logger.NewNop())(context.Background(), amqp.Delivery{Body: []byte(`{"video_path":"movies/a.mp4"}`)})

		assert.NoError(t, err)
		sink.AssertExpectations(t)
	})

	t.Run("malformed body never reaches the sink", func(t *testing.T) {
		sink := new(MockSink)

		err := NewHandler(sink, logger.NewNop())(context.Background(), amqp.Delivery{Body: []byte(`{}`)})

		assert.ErrorIs(t, err, rabbitmq.ErrMalformed)
		sink.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	})

	t.Run("sink failure is not malformed", func(t *testing.T) {
		storeErr := errors.New("connection reset")
		sink := new(MockSink)
		sink.On("Insert", mock.Anything, "movies/a.mp4").Return(storeErr)

		err := NewHandler(sink, logger.NewNop())(context.Background(), amqp.Delivery{Body: []byte(`{"video_path":"movies/a.mp4"}`)})

		assert.ErrorIs(t, err, storeErr)
		assert.NotErrorIs(t, err, rabbitmq.ErrMalformed)
	})
}
