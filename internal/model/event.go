// Package model defines data structures for the chat relay.
package model

// EventKind represents the kind of an inbound platform event.
type EventKind string

const (
	EventKindMessageAdded EventKind = "message_added"
	EventKindJoinChat     EventKind = "join_chat"
	EventKindBotDeleted   EventKind = "bot_deleted"
	EventKindUnknown      EventKind = "unknown"
)

// Platform event names as sent in the "event" field.
const (
	EventNameMessageAdd = "ONIMBOTMESSAGEADD"
	EventNameJoinChat   = "ONIMBOTJOINCHAT"
	EventNameDelete     = "ONIMBOTDELETE"
)

// KindFromEventName maps an upper-cased platform event name to its kind.
func KindFromEventName(name string) EventKind {
	switch name {
	case EventNameMessageAdd:
		return EventKindMessageAdded
	case EventNameJoinChat:
		return EventKindJoinChat
	case EventNameDelete:
		return EventKindBotDeleted
	default:
		return EventKindUnknown
	}
}

// FileReference points to an attachment hosted by the platform.
type FileReference struct {
	URL         string `json:"url"`
	DisplayName string `json:"display_name"`
}

// InboundEvent is the canonical record extracted from one webhook call.
type InboundEvent struct {
	Kind           EventKind      `json:"kind"`
	RawEvent       string         `json:"raw_event"`
	ConversationID string         `json:"conversation_id"`
	Text           string         `json:"text,omitempty"`
	File           *FileReference `json:"file,omitempty"`
}

// HasFile reports whether the event carries an attachment.
func (e InboundEvent) HasFile() bool {
	return e.File != nil && e.File.URL != ""
}

// Empty reports whether the event carries neither text nor an attachment.
func (e InboundEvent) Empty() bool {
	return e.Text == "" && !e.HasFile()
}
