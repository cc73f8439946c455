package adapter

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/pkg/mq"
	"storefront/internal/pkg/mq/mqtest"
	"storefront/internal/service/checkout/domain"
)

func TestScheduleExpiryCheckTargetsDelayTopic(t *testing.T) {
	w := &mqtest.Writer{}
	a := NewExpirySchedulerKafkaAdapter(w, "checkout-expiry-check")

	due := time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC)
	require.NoError(t, a.ScheduleExpiryCheck(context.Background(), "s1", due))

	msgs := w.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "s1", string(msgs[0].Key))
	assert.Equal(t, "checkout-expiry-check", mq.GetHeader(msgs[0].Headers, mq.HeaderRealTopic))
	assert.Equal(t, "2026-03-01T09:15:01Z", mq.GetHeader(msgs[0].Headers, mq.HeaderDelayTimestamp))

	var task domain.ExpiryCheck
	require.NoError(t, json.Unmarshal(msgs[0].Value, &task))
	assert.Equal(t, "s1", task.CheckoutSessionID)
	assert.True(t, due.Equal(task.DueAt))
}

func TestScheduleExpiryCheckPropagatesWriteError(t *testing.T) {
	w := &mqtest.Writer{Err: errors.New("broker down")}
	a := NewExpirySchedulerKafkaAdapter(w, "checkout-expiry-check")
	assert.Error(t, a.ScheduleExpiryCheck(context.Background(), "s1", time.Now()))
}

func TestCheckoutEventsAreEnveloped(t *testing.T) {
	w := &mqtest.Writer{}
	a := NewCheckoutEventKafkaAdapter(w)
	ctx := context.Background()

	require.NoError(t, a.PublishOrderPlaced(ctx, domain.OrderPlaced{OrderID: "o1", OrderNumber: "ORD-1", CheckoutSessionID: "s1", Total: 900}))
	require.NoError(t, a.PublishCheckoutExpired(ctx, domain.CheckoutExpired{CheckoutSessionID: "s2", CartID: "c2"}))

	msgs := w.Messages()
	require.Len(t, msgs, 2)

	env, err := mq.DecodeEnvelope(msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, domain.EventOrderPlaced, env.Type)
	assert.Equal(t, "s1", string(msgs[0].Key))
	var placed domain.OrderPlaced
	require.NoError(t, json.Unmarshal(env.Payload, &placed))
	assert.Equal(t, "ORD-1", placed.OrderNumber)

	env, err = mq.DecodeEnvelope(msgs[1].Value)
	require.NoError(t, err)
	assert.Equal(t, domain.EventCheckoutExpired, env.Type)
	assert.Equal(t, "s2", string(msgs[1].Key))
}
