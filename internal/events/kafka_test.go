package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/config"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
	closed  bool
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	var out kgo.ProduceResults
	for _, r := range rs {
		f.records = append(f.records, r)
		out = append(out, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return out
}

func (f *fakeProducer) Close() { f.closed = true }

func TestPublish(t *testing.T) {
	fake := &fakeProducer{}
	p := &Publisher{client: fake, topic: "registry.audit"}

	sourceID := uuid.New()
	entry := core.AuditEntry{
		ID:             uuid.New(),
		Action:         core.ActionRollbackForced,
		Severity:       core.SeverityCritical,
		PrincipalID:    "admin-1",
		Role:           core.RoleAdmin,
		ResourceType:   core.ResourceChangeSource,
		ResourceID:     sourceID.String(),
		ChangeSourceID: &sourceID,
		RowsAffected:   12,
		CreatedAt:      time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC),
	}

	require.NoError(t, p.Publish(context.Background(), entry))
	require.Len(t, fake.records, 1)

	rec := fake.records[0]
	assert.Equal(t, "registry.audit", rec.Topic)
	assert.Equal(t, "change_source:"+sourceID.String(), string(rec.Key))
	assert.Equal(t, entry.CreatedAt, rec.Timestamp)
	assert.Equal(t, []kgo.RecordHeader{
		{Key: "action", Value: []byte("rollback_forced")},
		{Key: "severity", Value: []byte("critical")},
	}, rec.Headers)

	var decoded core.AuditEntry
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, entry.ID, decoded.ID)
	assert.Equal(t, 12, decoded.RowsAffected)

	p.Close()
	assert.True(t, fake.closed)
}

func TestPublishError(t *testing.T) {
	brokerErr := errors.New("broker unavailable")
	p := &Publisher{client: &fakeProducer{err: brokerErr}, topic: "t"}

	err := p.Publish(context.Background(), core.AuditEntry{ID: uuid.New()})
	assert.ErrorIs(t, err, brokerErr)
}

func TestNewWithoutBrokers(t *testing.T) {
	p, err := New(config.KafkaConfig{AuditTopic: "t"})
	require.NoError(t, err)
	assert.Nil(t, p)
}
