package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/medwise/remedion/pkg/channels/gochannel"
	"github.com/medwise/remedion/pkg/channels/kafka"
	"github.com/medwise/remedion/pkg/eventbus"
)

// NewEventBus builds the notification event bus. Kafka carries the events
// across processes; gochannel keeps them inside one.
func NewEventBus(provider, serviceName string, logger *slog.Logger) (eventbus.EventBus, error) {
	switch provider {
	case "kafka":
		publisher, subscriber, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(publisher, subscriber), nil
	case "gochannel", "":
		publisher, subscriber, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create in-process pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(publisher, subscriber), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
