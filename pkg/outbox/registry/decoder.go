package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stadiumcard/stadiumcard-backend/pkg/enums"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox/payloads"
)

// ErrUnknownMessage means no decoder exists for the type and version.
var ErrUnknownMessage = errors.New("no decoder for message")

type inboundKey struct {
	eventType enums.OutboxEventType
	version   int
}

// Inbound decodes the messages this service consumes. It is fixed at
// construction and safe for concurrent use.
type Inbound struct {
	decoders map[inboundKey]func(json.RawMessage) (any, error)
}

func decodeAs[T any](data json.RawMessage) (any, error) {
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

func NewInboundRegistry() *Inbound {
	return &Inbound{decoders: map[inboundKey]func(json.RawMessage) (any, error){
		{enums.EventPaymentConfirmed, 1}: decodeAs[payloads.PaymentConfirmedEvent],
	}}
}

// Decode returns a pointer to the typed payload for eventType at version.
func (r *Inbound) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	decode, ok := r.decoders[inboundKey{eventType, version}]
	if !ok {
		return nil, fmt.Errorf("%w: %s@v%d", ErrUnknownMessage, eventType, version)
	}
	data := bytes.TrimSpace(payload)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, fmt.Errorf("%s@v%d: empty payload", eventType, version)
	}
	return decode(data)
}
