package push

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/payconfirm/internal/confirm"
)

// DefaultChannel is the channel confirmations are published on.
const DefaultChannel = "paymentConfirmed"

// EventPaymentConfirmed is the message type the listener acts on.
const EventPaymentConfirmed = "paymentConfirmed"

// Message is one entry of an inbound batch.
type Message struct {
	Type string            `json:"type"`
	Data confirm.PushEvent `json:"data"`
}

// Handler receives one inbound batch.
type Handler func(batch []Message)

// DecodeBatch parses a wire payload. Both a JSON array of messages and a
// single message object are accepted.
func DecodeBatch(payload []byte) ([]Message, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("decode push batch: empty payload")
	}

	if trimmed[0] == '[' {
		var batch []Message
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, fmt.Errorf("decode push batch: %w", err)
		}
		return batch, nil
	}

	var m Message
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return nil, fmt.Errorf("decode push batch: %w", err)
	}
	return []Message{m}, nil
}

// EncodeBatch is the inverse of DecodeBatch; it always emits an array.
func EncodeBatch(batch []Message) ([]byte, error) {
	if batch == nil {
		batch = []Message{}
	}
	return json.Marshal(batch)
}

// Confirmed builds a paymentConfirmed message for ev.
func Confirmed(ev confirm.PushEvent) Message {
	return Message{Type: EventPaymentConfirmed, Data: ev}
}
