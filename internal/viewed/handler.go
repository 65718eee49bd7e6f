package viewed

import (
	"context"
	"fmt"

	"videohub/pkg/logger"
	"videohub/pkg/rabbitmq"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RecordSink is the side effect a subscriber applies to each view.
type RecordSink interface {
	Insert(ctx context.Context, videoPath string) error
}

// RecordSinkFunc adapts a function to RecordSink.
type RecordSinkFunc func(ctx context.Context, videoPath string) error

func (f RecordSinkFunc) Insert(ctx context.Context, videoPath string) error {
	return f(ctx, videoPath)
}

// NewHandler decodes each delivery and hands its path to sink.
func NewHandler(sink RecordSink, log logger.Logger) rabbitmq.Handler {
	return func(ctx context.Context, d amqp.Delivery) error {
		event, err := Decode(d.Body)
		if err != nil {
			return err
		}

		if err := sink.Insert(ctx, event.VideoPath); err != nil {
			return fmt.Errorf("record view of %s: %w", event.VideoPath, err)
		}

		log.Debug(ctx, "view recorded", logger.Field{Key: "video_path", Value: event.VideoPath})
		return nil
	}
}
