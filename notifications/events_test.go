package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/chama-disputes-api/disputes"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestEventPublisherSend(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := &fakeWriter{}
	p := &EventPublisher{writer: w, now: func() time.Time { return now }}

	err := p.Send(context.Background(), disputes.Notification{
		Recipients: []string{"u1", "u2"},
		Template:   disputes.TemplateDisputeEscalated,
		Payload:    map[string]string{"disputeId": "d1", "chamaId": "c1", "status": "escalated"},
	}, nil)
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("d1"), w.msgs[0].Key)
	assert.Equal(t, now, w.msgs[0].Time)

	var event DisputeEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &event))
	assert.Equal(t, "dispute_escalated", event.Type)
	assert.Equal(t, "c1", event.ChamaID)
	assert.Equal(t, "escalated", event.Status)
	assert.Equal(t, []string{"u1", "u2"}, event.Recipients)
	assert.NotEmpty(t, event.ID)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestEventPublisherWriteError(t *testing.T) {
	p := &EventPublisher{writer: &fakeWriter{err: errors.New("no brokers")}, now: time.Now}
	assert.EqualError(t, p.Send(context.Background(), disputes.Notification{Payload: map[string]string{}}, nil), "no brokers")
}
