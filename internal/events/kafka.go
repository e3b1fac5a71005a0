// Package events publishes committed audit entries to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/config"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
)

// producer is the part of *kgo.Client the publisher uses.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Publisher writes one record per audit entry, keyed by resource id so
// every change to a person or submission lands on the same partition.
type Publisher struct {
	client producer
	topic  string
}

var _ core.EventPublisher = (*Publisher)(nil)

// New connects to the configured brokers. Returns nil if no brokers are set.
func New(cfg config.KafkaConfig) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.AuditTopic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression(), kgo.NoCompression()),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &Publisher{client: client, topic: cfg.AuditTopic}, nil
}

// Publish sends entry and waits for the broker acknowledgement.
func (p *Publisher) Publish(ctx context.Context, entry core.AuditEntry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry %s: %w", entry.ID, err)
	}

	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(entry.ResourceType + ":" + entry.ResourceID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(entry.Action)},
			{Key: "severity", Value: []byte(entry.Severity)},
		},
		Timestamp: entry.CreatedAt,
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("publish audit entry %s: %w", entry.ID, err)
	}
	return nil
}

// Close releases the client.
func (p *Publisher) Close() {
	p.client.Close()
}
