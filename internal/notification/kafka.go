package notification

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// KafkaSink publishes notification envelopes to a Kafka topic for the
// downstream push/email pipeline.
type KafkaSink struct {
	w     *kafka.Writer
	topic string
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		w: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Balancer: &kafka.LeastBytes{},
		},
		topic: topic,
	}
}

func (s *KafkaSink) Send(ctx context.Context, n Notification) error {
	value, err := n.marshal()
	if err != nil {
		return err
	}
	return s.w.WriteMessages(ctx, kafka.Message{
		Topic: s.topic,
		Key:   []byte(n.UserID),
		Value: value,
	})
}

func (s *KafkaSink) Close() error { return s.w.Close() }
