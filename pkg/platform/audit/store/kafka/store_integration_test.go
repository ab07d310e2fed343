//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "landdocs/pkg/platform/audit"
	kafkaaudit "landdocs/pkg/platform/audit/store/kafka"
	"landdocs/pkg/testutil/containers"
)

const topic = "landdocs.audit.test"

type KafkaStoreSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
	store    *kafkaaudit.Store
}

func TestKafkaStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaStoreSuite))
}

func (s *KafkaStoreSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
	store, err := kafkaaudit.New(s.redpanda.Brokers, topic)
	s.Require().NoError(err)
	s.store = store
}

func (s *KafkaStoreSuite) TearDownSuite() {
	if s.store != nil {
		s.store.Close()
	}
}

func (s *KafkaStoreSuite) TestEnsureTopicIsIdempotent() {
	ctx := context.Background()
	s.Require().NoError(s.store.EnsureTopic(ctx, 3, 1))
	s.Require().NoError(s.store.EnsureTopic(ctx, 3, 1))
}

func (s *KafkaStoreSuite) TestAppendKeysByDocument() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.Require().NoError(s.store.EnsureTopic(ctx, 3, 1))

	s.Require().NoError(s.store.Append(ctx, audit.Event{
		Kind:       audit.EventDuplicateActiveDetected,
		Timestamp:  time.Now().UTC(),
		DocumentID: "doc-1",
		CaseFileID: "CF-1",
		Fields:     map[string]string{"scope_key": "RECEIPT|CF-1|P-1|A-1"},
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	var rec *kgo.Record
	for rec == nil {
		fetches := consumer.PollFetches(ctx)
		s.Require().NoError(ctx.Err(), "timed out waiting for audit record")
		fetches.EachRecord(func(r *kgo.Record) {
			if rec == nil && string(r.Key) == "doc-1" {
				rec = r
			}
		})
	}

	var msg struct {
		Category string            `json:"category"`
		Kind     string            `json:"kind"`
		Fields   map[string]string `json:"fields"`
	}
	s.Require().NoError(json.Unmarshal(rec.Value, &msg))
	s.Equal(string(audit.CategorySecurity), msg.Category)
	s.Equal(string(audit.EventDuplicateActiveDetected), msg.Kind)
	s.Equal("RECEIPT|CF-1|P-1|A-1", msg.Fields["scope_key"])
	s.Require().Len(rec.Headers, 1)
	s.Equal("security", string(rec.Headers[0].Value))
}
