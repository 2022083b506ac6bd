// Package v1 defines the chatsync wire protocol.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
//
// Every frame is a single flat JSON record with a "type" discriminator:
//
//	init   server->client  {"type":"init","messages":[...]}
//	create client->server  {"type":"create","user":"...","text":"..."}
//	       server->client  {"type":"create","message":{...}}
//	update client->server  {"type":"update","id":N,"text":"..."}
//	       server->client  {"type":"update","message":{...}}
//	delete client->server  {"type":"delete","id":N}
//	       server->client  {"type":"delete","id":N}
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Type constants (wire-stable).
const (
	// TypeInit carries the full snapshot sent once per connection open.
	TypeInit = "init"
	// TypeCreate requests (client->server) or announces (server->client) a new message.
	TypeCreate = "create"
	// TypeUpdate requests or announces an in-place text replacement.
	TypeUpdate = "update"
	// TypeDelete requests or announces a removal by id.
	TypeDelete = "delete"
)

// MaxTextChars is the maximum accepted message text length in runes.
// Requests beyond it are treated as malformed.
const MaxTextChars = 4000

// Message is the canonical chat message record.
// Timestamp is epoch milliseconds assigned by the server at creation
// and never changed afterwards.
type Message struct {
	ID        int64  `json:"id"`
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Request is a client->server mutation request.
// Which fields are required depends on Type (see Validate).
type Request struct {
	Type string `json:"type"`
	User string `json:"user,omitempty"`
	Text string `json:"text,omitempty"`
	ID   int64  `json:"id,omitempty"`
}

// Validate performs strict structural validation for a Request.
// A request failing validation is malformed and must be dropped silently
// by the receiving side.
func (r Request) Validate() error {
	switch r.Type {
	case TypeCreate:
		if strings.TrimSpace(r.User) == "" {
			return errors.New("missing field: user")
		}
		if err := validText(r.Text); err != nil {
			return err
		}
	case TypeUpdate:
		if r.ID < 1 {
			return errors.New("missing field: id")
		}
		if err := validText(r.Text); err != nil {
			return err
		}
	case TypeDelete:
		if r.ID < 1 {
			return errors.New("missing field: id")
		}
	case "":
		return errors.New("missing field: type")
	default:
		return fmt.Errorf("unknown type: %q", r.Type)
	}
	return nil
}

func validText(text string) error {
	if text == "" {
		return errors.New("missing field: text")
	}
	if len([]rune(text)) > MaxTextChars {
		return fmt.Errorf("text too long: max=%d chars", MaxTextChars)
	}
	return nil
}

// ParseRequest decodes and validates one inbound request frame.
// Parsing is an explicit fallible operation: callers handle failure by the
// documented silent-drop policy.
func ParseRequest(data []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	if err := r.Validate(); err != nil {
		return Request{}, err
	}
	return r, nil
}

// Event is a server->client record: either the init snapshot or one
// mutation event fanned out to every open connection.
type Event struct {
	Type string `json:"type"`

	// Message is set for create and update events.
	Message *Message `json:"message,omitempty"`
	// ID is set for delete events.
	ID int64 `json:"id,omitempty"`
	// Messages is set for init events (may be empty).
	Messages []Message `json:"messages,omitempty"`
}

// NewInitEvent builds the snapshot baseline event.
func NewInitEvent(messages []Message) Event {
	return Event{Type: TypeInit, Messages: messages}
}

// NewCreateEvent announces a newly created message.
func NewCreateEvent(m Message) Event {
	return Event{Type: TypeCreate, Message: &m}
}

// NewUpdateEvent announces an in-place text replacement.
func NewUpdateEvent(m Message) Event {
	return Event{Type: TypeUpdate, Message: &m}
}

// NewDeleteEvent announces a removal by id.
func NewDeleteEvent(id int64) Event {
	return Event{Type: TypeDelete, ID: id}
}

// MarshalJSON emits exactly the fields the event type defines.
// In particular an init snapshot always carries "messages", even when the
// store is empty, so clients can replace their mirror wholesale.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case TypeInit:
		msgs := e.Messages
		if msgs == nil {
			msgs = []Message{}
		}
		return json.Marshal(struct {
			Type     string    `json:"type"`
			Messages []Message `json:"messages"`
		}{e.Type, msgs})
	case TypeCreate, TypeUpdate:
		return json.Marshal(struct {
			Type    string   `json:"type"`
			Message *Message `json:"message"`
		}{e.Type, e.Message})
	case TypeDelete:
		return json.Marshal(struct {
			Type string `json:"type"`
			ID   int64  `json:"id"`
		}{e.Type, e.ID})
	default:
		return nil, fmt.Errorf("unknown event type: %q", e.Type)
	}
}

// Validate performs structural validation for an inbound Event.
func (e Event) Validate() error {
	switch e.Type {
	case TypeInit:
		return nil
	case TypeCreate, TypeUpdate:
		if e.Message == nil {
			return errors.New("missing field: message")
		}
	case TypeDelete:
		if e.ID < 1 {
			return errors.New("missing field: id")
		}
	case "":
		return errors.New("missing field: type")
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
	return nil
}

// ParseEvent decodes and validates one inbound event frame.
func ParseEvent(data []byte) (Event, error) {
	type alias Event
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	e := Event(a)
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}
