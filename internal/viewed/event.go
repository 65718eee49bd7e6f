// Package viewed carries the "video was played" broadcast: the event model,
// the fire-and-forget publisher used by the video API and the subscriber
// runtime shared by the history and recommendation services.
package viewed

import (
	"encoding/json"
	"errors"
	"fmt"

	"videohub/pkg/rabbitmq"
)

// ExchangeName is the fanout exchange every view event is published to.
const ExchangeName = "viewed"

// Consumer tags, one per subscriber type.
const (
	HistoryConsumerTag         = "history_viewed_consumer"
	RecommendationsConsumerTag = "recommendations_viewed_consumer"
)

var (
	// ErrEmptyVideoPath is returned by Publish before anything reaches the broker.
	ErrEmptyVideoPath = errors.New("viewed: video path is empty")

	// ErrNotConnected is returned by Publish while no broker session is attached.
	ErrNotConnected = errors.New("viewed: publisher not connected")
)

// ViewEvent is the wire payload: a flat JSON object with no envelope.
type ViewEvent struct {
	VideoPath string `json:"video_path"`
}

// Decode parses a delivery body. Bodies that are not a JSON object, or whose
// video_path is missing, not a string or empty, wrap rabbitmq.ErrMalformed.
// Unknown fields are ignored.
func Decode(body []byte) (ViewEvent, error) {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return ViewEvent{}, fmt.Errorf("%w: %v", rabbitmq.ErrMalformed, err)
	}

	raw, ok := fields["video_path"]
	if !ok {
		return ViewEvent{}, fmt.Errorf("%w: video_path missing", rabbitmq.ErrMalformed)
	}
	path, ok := raw.(string)
	if !ok {
		return ViewEvent{}, fmt.Errorf("%w: video_path is %T, want string", rabbitmq.ErrMalformed, raw)
	}
	if path == "" {
		return ViewEvent{}, fmt.Errorf("%w: video_path empty", rabbitmq.ErrMalformed)
	}

	return ViewEvent{VideoPath: path}, nil
}
