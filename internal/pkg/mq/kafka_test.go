package mq

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

type recordingWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestTraceContextRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "produce")
	defer span.End()

	var headers []kafka.Header
	InjectTraceContext(ctx, &headers)
	require.NotEmpty(t, headers)

	extracted := ExtractTraceContext(context.Background(), headers)
	assert.Equal(t, span.SpanContext().TraceID(), trace.SpanContextFromContext(extracted).TraceID())
}

func TestKafkaHeaderCarrierSetOverwrites(t *testing.T) {
	carrier := KafkaHeaderCarrier{{Key: "a", Value: []byte("1")}}
	carrier.Set("a", "2")
	carrier.Set("b", "3")

	assert.Equal(t, "2", carrier.Get("a"))
	assert.Equal(t, "3", carrier.Get("b"))
	assert.ElementsMatch(t, []string{"a", "b"}, carrier.Keys())
}

func TestProduceMessageKeepsHeaders(t *testing.T) {
	w := &recordingWriter{}
	err := ProduceMessage(context.Background(), w, []byte("k"), []byte("v"),
		kafka.Header{Key: HeaderRealTopic, Value: []byte("checkout-expiry")})
	require.NoError(t, err)

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "checkout-expiry", GetHeader(w.msgs[0].Headers, HeaderRealTopic))
}

func TestFailureHandlerPublishesToDLT(t *testing.T) {
	w := &recordingWriter{}
	h := NewFailureHandler(w)

	msg := kafka.Message{Topic: "checkout-expiry", Partition: 2, Offset: 41, Key: []byte("s1"), Value: []byte("{}")}
	h.Handle(context.Background(), msg, errors.New("boom"))

	require.Len(t, w.msgs, 1)
	dlt := w.msgs[0]
	assert.Equal(t, "checkout-expiry.DLT", dlt.Topic)
	assert.Equal(t, "checkout-expiry", GetHeader(dlt.Headers, HeaderOriginalTopic))
	assert.Equal(t, "2", GetHeader(dlt.Headers, HeaderOriginalPartition))
	assert.Equal(t, "41", GetHeader(dlt.Headers, HeaderOriginalOffset))
	assert.Equal(t, "boom", GetHeader(dlt.Headers, HeaderExceptionMessage))
}

func TestFailureHandlerSwallowsWriteError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	h := NewFailureHandler(w)

	assert.NotPanics(t, func() {
		h.Handle(context.Background(), kafka.Message{Topic: "t"}, errors.New("boom"))
	})
}
