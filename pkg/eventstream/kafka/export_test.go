package kafka

import (
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"
)

// MessageWriter exposes the writer seam to external tests.
type MessageWriter = messageWriter

// NewPublisherWithWriter builds a publisher over a fake writer.
func NewPublisherWithWriter(w MessageWriter, topic string, logger *slog.Logger) *Publisher {
	return newPublisher(w, topic, logger)
}

var _ = kafkago.Message{}
