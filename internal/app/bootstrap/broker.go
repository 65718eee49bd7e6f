package bootstrap

import (
	"fmt"

	"videohub/internal/cfg"
	"videohub/pkg/logger"
	"videohub/pkg/rabbitmq"
)

// InitBroker opens the first broker connection and the supervisor that will
// replace it once lost. A broker unreachable at startup is an error here.
func InitBroker(rc *cfg.RabbitMQConfig, metrics *rabbitmq.Metrics, log logger.Logger) (*rabbitmq.Client, *rabbitmq.Supervisor, error) {
	client, err := rabbitmq.Connect(&rc.Config, log)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	return client, rabbitmq.NewSupervisor(&rc.Config, log, metrics), nil
}
