package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/buzzer/go/internal/buzzer"
)

// Message is the envelope for everything sent to observers.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// MessageType represents the type of observer message
type MessageType string

const (
	MessageTypeSnapshot  MessageType = "snapshot"
	MessageTypeBuzzIn    MessageType = "buzz_in"
	MessageTypeReset     MessageType = "reset"
	MessageTypeHeartbeat MessageType = "heartbeat"
	MessageTypeError     MessageType = "error"
)

// SnapshotPayload is the first message every observer receives.
type SnapshotPayload struct {
	State   buzzer.State    `json:"state"`
	Players []buzzer.Player `json:"players"`
}

type BuzzInPayload struct {
	PlayerID   buzzer.PlayerID `json:"player_id"`
	PlayerName string          `json:"player_name"`
	State      buzzer.State    `json:"state"`
}

type ResetPayload struct {
	State buzzer.State `json:"state"`
}

// HeartbeatPayload carries a monotonically increasing tick count.
type HeartbeatPayload struct {
	Count      uint64    `json:"count"`
	ServerTime time.Time `json:"server_time"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrorCodeUnauthorized  = "unauthorized"
	ErrorCodeInvalidPlayer = "invalid_player"
	ErrorCodeBadRequest    = "bad_request"
)

// ClientMessage is what observers may send over the socket.
type ClientMessage struct {
	Type   string           `json:"type"`
	Token  string           `json:"token,omitempty"`
	Player *buzzer.PlayerID `json:"player,omitempty"`
}

const (
	ClientMessageReset = "reset"
	ClientMessageBuzz  = "buzz"
)

func newMessage(t MessageType, at time.Time, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}
	return &Message{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: at,
		Data:      data,
	}, nil
}

// messageFromEvent converts an arbiter transition into the wire envelope.
// The message id matches the event id so downstream consumers can dedupe.
func messageFromEvent(evt buzzer.Event, players []buzzer.Player) (*Message, error) {
	var (
		msgType MessageType
		payload interface{}
	)
	switch evt.Kind {
	case buzzer.EventBuzzIn:
		msgType = MessageTypeBuzzIn
		p := BuzzInPayload{PlayerID: evt.Winner, State: evt.State}
		if int(evt.Winner) >= 0 && int(evt.Winner) < len(players) {
			p.PlayerName = players[evt.Winner].Name
		}
		payload = p
	case buzzer.EventReset:
		msgType = MessageTypeReset
		payload = ResetPayload{State: evt.State}
	default:
		return nil, fmt.Errorf("unknown event kind %q", evt.Kind)
	}

	msg, err := newMessage(msgType, evt.At, payload)
	if err != nil {
		return nil, err
	}
	msg.ID = evt.ID.String()
	return msg, nil
}

// ParsePayload decodes msg.Data into the payload struct matching msg.Type.
func ParsePayload(msg *Message) (interface{}, error) {
	switch msg.Type {
	case MessageTypeSnapshot:
		var payload SnapshotPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case MessageTypeBuzzIn:
		var payload BuzzInPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case MessageTypeReset:
		var payload ResetPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case MessageTypeHeartbeat:
		var payload HeartbeatPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case MessageTypeError:
		var payload ErrorPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, fmt.Errorf("unknown message type %q", msg.Type)
	}
}
