package notify

import (
	"github.com/rs/zerolog"
)

// NewKafkaWithWriter exposes the writer seam to tests.
func NewKafkaWithWriter(w messageWriter, cfg KafkaConfig, logger *zerolog.Logger) *Kafka {
	return newKafka(w, cfg, logger)
}
