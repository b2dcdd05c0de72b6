package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cmwaters/privpoll/poll"
)

// Message is the wire form of a poll event.
type Message struct {
	Type      poll.EventType  `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func NewMessage(evt poll.Event) (*Message, error) {
	data, err := json.Marshal(evt.Data)
	if err != nil {
		return nil, fmt.Errorf("encoding %s event: %w", evt.Type, err)
	}
	return &Message{
		Type:      evt.Type,
		Timestamp: evt.Timestamp,
		Data:      data,
	}, nil
}

func (m *Message) ValidateForm() error {
	if m == nil {
		return errors.New("nil message")
	}
	if _, err := newPayload(m.Type); err != nil {
		return err
	}
	if len(m.Data) == 0 {
		return errors.New("message does not contain any data")
	}
	if m.Timestamp.IsZero() {
		return errors.New("message timestamp is zero")
	}
	return nil
}

// Event decodes the message back into a poll event with a typed payload.
func (m *Message) Event() (poll.Event, error) {
	if err := m.ValidateForm(); err != nil {
		return poll.Event{}, err
	}
	payload, err := newPayload(m.Type)
	if err != nil {
		return poll.Event{}, err
	}
	if err := json.Unmarshal(m.Data, payload); err != nil {
		return poll.Event{}, fmt.Errorf("decoding %s event: %w", m.Type, err)
	}
	return poll.Event{
		Type:      m.Type,
		Timestamp: m.Timestamp,
		Data:      deref(payload),
	}, nil
}

func newPayload(eventType poll.EventType) (any, error) {
	switch eventType {
	case poll.EventPollCreated:
		return &poll.PollCreatedEvent{}, nil
	case poll.EventVoteCast:
		return &poll.VoteCastEvent{}, nil
	case poll.EventPollClosed:
		return &poll.PollClosedEvent{}, nil
	case poll.EventDecryptionRequested:
		return &poll.DecryptionRequestedEvent{}, nil
	case poll.EventDecryptorAuthorized, poll.EventDecryptorRevoked:
		return &poll.DecryptorEvent{}, nil
	case poll.EventAccessGranted:
		return &poll.AccessGrantedEvent{}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
}

// deref returns payloads by value, matching what the engine publishes.
func deref(payload any) any {
	switch p := payload.(type) {
	case *poll.PollCreatedEvent:
		return *p
	case *poll.VoteCastEvent:
		return *p
	case *poll.PollClosedEvent:
		return *p
	case *poll.DecryptionRequestedEvent:
		return *p
	case *poll.DecryptorEvent:
		return *p
	case *poll.AccessGrantedEvent:
		return *p
	default:
		return payload
	}
}
