package mq

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Envelope 是所有业务事件在 Kafka 上的统一外层结构。
type Envelope struct {
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// EncodeEnvelope 序列化 payload 并包装成 Envelope。
func EncodeEnvelope(eventType string, occurredAt time.Time, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s payload", eventType)
	}
	return json.Marshal(Envelope{Type: eventType, OccurredAt: occurredAt.UTC(), Payload: raw})
}

// DecodeEnvelope 解析外层结构，Payload 留给调用方按 Type 解码。
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, "decode envelope")
	}
	if env.Type == "" {
		return nil, errors.New("envelope without type")
	}
	return &env, nil
}
