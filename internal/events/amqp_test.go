package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/textdispatch/internal/domain"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	sent   []published
	err    error
	closed bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange, key, msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestNewResultEnvelope(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("PDT", -7*3600))
	res := domain.SendResult{
		Index:   2,
		Phone:   "+15551234567",
		Variant: domain.VariantB,
		OK:      true,
		Status:  domain.StatusDelivered,
		Service: "IMESSAGE",
		Fields:  map[string]string{"name": "Alex"},
	}

	env := NewResultEnvelope("batch-1", res, now)
	assert.Equal(t, ResultEventType, env.Meta.Type)
	assert.NotEmpty(t, env.Meta.ID)
	require.NotNil(t, env.Meta.CorrelationID)
	assert.Equal(t, "batch-1", *env.Meta.CorrelationID)
	assert.Equal(t, time.UTC, env.Meta.Time.Location())

	body, err := json.Marshal(env)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "Alex")
	assert.Contains(t, string(body), `"status":"DELIVERED"`)
	assert.Contains(t, string(body), `"producer":"textdispatch"`)

	assert.Nil(t, NewResultEnvelope("", res, now).Meta.CorrelationID)
}

func TestAMQPPublisher_PublishResult(t *testing.T) {
	ch := &fakeChannel{}
	p := NewAMQPPublisher(ch, "textdispatch.events", "delivery.result")

	err := p.PublishResult(context.Background(), "batch-1", domain.SendResult{Phone: "+15551234567", Status: domain.StatusSent, OK: true})
	require.NoError(t, err)
	require.Len(t, ch.sent, 1)

	got := ch.sent[0]
	assert.Equal(t, "textdispatch.events", got.exchange)
	assert.Equal(t, "delivery.result", got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, "batch-1", got.msg.CorrelationId)

	var env struct {
		Meta Meta       `json:"meta"`
		Data ResultData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(got.msg.Body, &env))
	assert.Equal(t, got.msg.MessageId, env.Meta.ID)
	assert.Equal(t, domain.StatusSent, env.Data.Status)
	assert.Equal(t, "batch-1", env.Data.BatchID)
}

func TestAMQPPublisher_Errors(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel/connection is not open")}
	p := NewAMQPPublisher(ch, "x", "k")

	err := p.PublishResult(context.Background(), "b", domain.SendResult{})
	assert.ErrorContains(t, err, "channel/connection is not open")

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
	assert.ErrorIs(t, p.PublishResult(context.Background(), "b", domain.SendResult{}), ErrPublisherClosed)
	assert.NoError(t, p.Close())
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.PublishResult(context.Background(), "b", domain.SendResult{}))
}
