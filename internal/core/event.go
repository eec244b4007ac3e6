package core

import (
	"time"

	"github.com/olegsharov/converse-server/internal/store"
)

// EventKind is a notification the core emits to sessions.
type EventKind int

const (
	// EventChannelJoined confirms a channel subscription to the joiner.
	EventChannelJoined EventKind = iota
	// EventMessageNew notifies channel subscribers about a created message.
	EventMessageNew
	// EventMessageEdited notifies channel subscribers about an edited message.
	EventMessageEdited
	// EventMessageDeleted notifies channel subscribers about a deleted message.
	EventMessageDeleted
	// EventMessageReacted notifies channel subscribers about a reaction change.
	EventMessageReacted
	// EventMessagesRead notifies channel subscribers that messages were read.
	EventMessagesRead
	// EventTypingStarted notifies channel subscribers that an identity is typing.
	EventTypingStarted
	// EventTypingStopped notifies channel subscribers that typing stopped.
	EventTypingStopped
	// EventPresence notifies all connected sessions about a presence transition.
	EventPresence
	// EventOnlineList delivers the online identity list to the requester.
	EventOnlineList
	// EventError notifies the originating session about a domain error.
	EventError
)

var eventNames = map[EventKind]string{
	EventChannelJoined:  "channel:joined",
	EventMessageNew:     "message:new",
	EventMessageEdited:  "message:edited",
	EventMessageDeleted: "message:deleted",
	EventMessageReacted: "message:reacted",
	EventMessagesRead:   "messages:read",
	EventTypingStarted:  "typing:user",
	EventTypingStopped:  "typing:stopped",
	EventPresence:       "presence:status",
	EventOnlineList:     "presence:online",
	EventError:          "error",
}

// String returns the wire name of the event kind.
func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is sent to sessions to describe what happened in the system.
type Event struct {
	Kind        EventKind
	ContainerID int64
	Message     *store.Message
	MessageID   int64
	MessageIDs  []int64
	Reactions   []store.Reaction
	IdentityID  int64
	Username    string
	Status      store.PresenceStatus
	LastSeen    time.Time
	Online      []int64
	Error       *CoreError
}

// ErrorEvent wraps a domain error into an event for the originating session.
func ErrorEvent(err error) *Event {
	return &Event{Kind: EventError, Error: AsCoreError(err)}
}
