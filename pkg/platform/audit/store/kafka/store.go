// Package kafka publishes audit events directly to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "landdocs/pkg/platform/audit"
)

// Store produces one record per audit event, keyed by document id so all
// events for a document land on the same partition in order.
type Store struct {
	client *kgo.Client
	topic  string
}

// New connects a producer to brokers. The topic must exist; see EnsureTopic.
func New(brokers []string, topic string, opts ...kgo.Opt) (*Store, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka audit store requires at least one broker")
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(10 * time.Millisecond),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Store{client: client, topic: topic}, nil
}

// EnsureTopic creates the audit topic when missing.
func (s *Store) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(s.client)
	resp, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, s.topic)
	if err != nil {
		return fmt.Errorf("create audit topic: %w", err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create audit topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

type message struct {
	ID         string            `json:"id"`
	Category   string            `json:"category"`
	Kind       string            `json:"kind"`
	Timestamp  time.Time         `json:"timestamp"`
	DocumentID string            `json:"document_id"`
	CaseFileID string            `json:"case_file_id,omitempty"`
	ActorID    string            `json:"actor_id,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// Append produces the event and waits for the broker ack.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	category := event.Category
	if category == "" {
		category = event.Kind.Category()
	}
	value, err := json.Marshal(message{
		ID:         uuid.NewString(),
		Category:   string(category),
		Kind:       string(event.Kind),
		Timestamp:  event.Timestamp,
		DocumentID: event.DocumentID,
		CaseFileID: event.CaseFileID,
		ActorID:    event.ActorID,
		RequestID:  event.RequestID,
		Fields:     event.Fields,
	})
	if err != nil {
		return fmt.Errorf("marshal audit message: %w", err)
	}
	rec := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.DocumentID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "category", Value: []byte(category)},
		},
	}
	if err := s.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Close flushes pending records and closes the client.
func (s *Store) Close() {
	s.client.Close()
}
