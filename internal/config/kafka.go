package config

import "github.com/segmentio/kafka-go"

// NewKafkaWriter returns a writer for the configured brokers.  Topic is
// left empty so each message names its own.
func NewKafkaWriter(cfg EventConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.KafkaBrokers...),
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           cfg.PublishTimeout,
	}
}
