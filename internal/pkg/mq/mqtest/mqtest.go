// Package mqtest 提供内存版的 Kafka 读写器，供各服务的测试使用。
package mqtest

import (
	"context"
	"sync"

	"github.com/segmentio/kafka-go"
)

// Writer 记录写入的消息，Err 非空时写入失败。
type Writer struct {
	mu   sync.Mutex
	msgs []kafka.Message
	Err  error
}

func (w *Writer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Err != nil {
		return w.Err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *Writer) Close() error { return nil }

func (w *Writer) Messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

// Reader 按推入顺序返回消息，没有消息时阻塞到 ctx 取消。
type Reader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []kafka.Message
	closed    bool
}

func NewReader(msgs ...kafka.Message) *Reader {
	r := &Reader{msgs: make(chan kafka.Message, 64)}
	for _, m := range msgs {
		r.Push(m)
	}
	return r
}

func (r *Reader) Push(msg kafka.Message) {
	r.msgs <- msg
}

func (r *Reader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *Reader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *Reader) Committed() []kafka.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]kafka.Message(nil), r.committed...)
}
