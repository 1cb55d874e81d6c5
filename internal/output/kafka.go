package output

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/StinkyLord/dynatrace-topology-builder/internal/model"
)

// Producer is the part of *kgo.Client used by KafkaSink.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

var _ Producer = (*kgo.Client)(nil)

// KafkaSink publishes topology documents, one record per document.
type KafkaSink struct {
	producer Producer
	topic    string
	logger   *zap.Logger
}

// NewKafkaSink connects a franz-go client to brokers.
func NewKafkaSink(brokers []string, topic string, logger *zap.Logger) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.ZstdCompression(), kgo.Lz4Compression(), kgo.NoCompression()),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	return NewKafkaSinkWithProducer(client, topic, logger), nil
}

// NewKafkaSinkWithProducer wraps an existing producer.
func NewKafkaSinkWithProducer(producer Producer, topic string, logger *zap.Logger) *KafkaSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaSink{producer: producer, topic: topic, logger: logger}
}

// RecordKey is the key of a document record: "<env>/<component_type>".
func RecordKey(env string, componentType model.ComponentType) string {
	return env + "/" + string(componentType)
}

// Publish produces doc and waits for the broker acknowledgement.
func (s *KafkaSink) Publish(ctx context.Context, env string, doc *model.Document) error {
	value, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal topology document: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(RecordKey(env, doc.Metadata.ComponentType)),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "source_file", Value: []byte(doc.Metadata.SourceFile)},
			{Key: "component_count", Value: []byte(strconv.Itoa(doc.Metadata.ComponentCount))},
		},
	}
	if err := s.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", record.Key, s.topic, err)
	}

	s.logger.Info("Published topology",
		zap.String("topic", s.topic),
		zap.ByteString("key", record.Key),
		zap.Int("bytes", len(value)))
	return nil
}

// Close releases the underlying client.
func (s *KafkaSink) Close() {
	s.producer.Close()
}
