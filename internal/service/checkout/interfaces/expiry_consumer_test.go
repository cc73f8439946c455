package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/pkg/mq"
	"storefront/internal/pkg/mq/mqtest"
	"storefront/internal/service/checkout/domain"
)

type stubExpirer struct {
	mu   sync.Mutex
	seen []string
	err  error
}

func (e *stubExpirer) Expire(_ context.Context, sessionID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = append(e.seen, sessionID)
	return e.err == nil, e.err
}

func expiryMessage(t *testing.T, sessionID string) kafka.Message {
	t.Helper()
	value, err := json.Marshal(domain.ExpiryCheck{CheckoutSessionID: sessionID, DueAt: time.Now().UTC()})
	require.NoError(t, err)
	return kafka.Message{Topic: "checkout-expiry-check", Key: []byte(sessionID), Value: value}
}

func TestExpiryCheckHandler(t *testing.T) {
	expirer := &stubExpirer{}
	handle := ExpiryCheckHandler(expirer)
	ctx := context.Background()

	require.NoError(t, handle(ctx, expiryMessage(t, "s1")))
	assert.Equal(t, []string{"s1"}, expirer.seen)

	assert.Error(t, handle(ctx, kafka.Message{Value: []byte("not json")}))
	assert.Error(t, handle(ctx, expiryMessage(t, "")))

	expirer.err = errors.New("db down")
	assert.Error(t, handle(ctx, expiryMessage(t, "s2")))
}

func TestExpiryConsumerDeadLettersFailures(t *testing.T) {
	expirer := &stubExpirer{err: errors.New("db down")}
	reader := mqtest.NewReader(expiryMessage(t, "s1"))
	dlt := &mqtest.Writer{}
	consumer := NewExpiryCheckConsumer(reader, expirer, mq.NewFailureHandler(dlt))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	require.Eventually(t, func() bool { return len(reader.Committed()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	<-done

	msgs := dlt.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, mq.DLTTopic("checkout-expiry-check"), msgs[0].Topic)
}
