package events

import (
	"fmt"
	"strings"

	"resourceruntime/internal/config"
	"resourceruntime/internal/logger"
)

// NewSink creates a Sink based on the configuration.
func NewSink(cfg config.EventsConfig, socksCfg config.SOCKSConfig) (Sink, error) {
	log := logger.WithComponent("sink-factory")

	sinkType := strings.ToLower(cfg.SinkType)
	if sinkType == "" {
		sinkType = "file"
	}

	log.Info().
		Str("sink_type", sinkType).
		Msg("Creating event sink")

	switch sinkType {
	case "kafka":
		log.Info().
			Strs("brokers", cfg.Kafka.Brokers).
			Str("topic", cfg.Kafka.Topic).
			Msg("Creating Kafka sink")
		return NewKafkaSink(cfg.Kafka, socksCfg)
	case "file":
		return NewFileSink(cfg.File)
	case "none":
		return NopSink{}, nil
	default:
		return nil, fmt.Errorf("unknown sink type: %s (supported: kafka, file, none)", sinkType)
	}
}
