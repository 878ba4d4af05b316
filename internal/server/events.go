package server

import (
	"encoding/json"
	"fmt"

	"github.com/npezzotti/go-dm/internal/types"
)

type EventType string

const (
	EventConnected      EventType = "connected"
	EventMessageNew     EventType = "message:new"
	EventMessageEdited  EventType = "message:edited"
	EventMessageDeleted EventType = "message:deleted"
	EventError          EventType = "error"
	EventEcho           EventType = "echo"
)

// Event is a server to client frame. Only the fields of its Type are
// encoded.
type Event struct {
	Type           EventType
	ConversationId int
	UserId         int
	Message        *types.Message
	MessageIds     []int64
	Error          string
	Data           json.RawMessage
}

func (e *Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventConnected:
		return json.Marshal(struct {
			Type           EventType `json:"type"`
			ConversationId int       `json:"conversation_id"`
			UserId         int       `json:"user_id"`
		}{e.Type, e.ConversationId, e.UserId})
	case EventMessageNew, EventMessageEdited:
		return json.Marshal(struct {
			Type    EventType      `json:"type"`
			Message *types.Message `json:"message"`
		}{e.Type, e.Message})
	case EventMessageDeleted:
		ids := e.MessageIds
		if ids == nil {
			ids = []int64{}
		}
		return json.Marshal(struct {
			Type       EventType `json:"type"`
			MessageIds []int64   `json:"message_ids"`
		}{e.Type, ids})
	case EventError:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Message string    `json:"message"`
		}{e.Type, e.Error})
	case EventEcho:
		data := e.Data
		if len(data) == 0 {
			data = json.RawMessage("null")
		}
		return json.Marshal(struct {
			Type EventType       `json:"type"`
			Data json.RawMessage `json:"data"`
		}{e.Type, data})
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
}

func ConnectedEvent(conversationId, userId int) *Event {
	return &Event{Type: EventConnected, ConversationId: conversationId, UserId: userId}
}

func MessageNewEvent(msg types.Message) *Event {
	return &Event{Type: EventMessageNew, Message: &msg}
}

func MessageEditedEvent(msg types.Message) *Event {
	return &Event{Type: EventMessageEdited, Message: &msg}
}

func MessageDeletedEvent(ids []int64) *Event {
	return &Event{Type: EventMessageDeleted, MessageIds: ids}
}

func ErrorEvent(message string) *Event {
	return &Event{Type: EventError, Error: message}
}

func EchoEvent(data json.RawMessage) *Event {
	return &Event{Type: EventEcho, Data: data}
}
