package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeJoin        = "channel:join"
	InboundTypeLeave       = "channel:leave"
	InboundTypeSend        = "message:send"
	InboundTypeEdit        = "message:edit"
	InboundTypeDelete      = "message:delete"
	InboundTypeReact       = "message:react"
	InboundTypeRead        = "messages:read"
	InboundTypeTypingStart = "typing:start"
	InboundTypeTypingStop  = "typing:stop"
	InboundTypeSetStatus   = "presence:set"
	InboundTypeListOnline  = "presence:online"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// JoinData requests to join or leave a container's channel.
type JoinData struct {
	ContainerID int64 `json:"container_id"`
}

// SendData is a new message from the client.
type SendData struct {
	ContainerID int64  `json:"container_id"`
	Content     string `json:"content"`
	Type        string `json:"type,omitempty"`
	ReplyTo     *int64 `json:"reply_to,omitempty"`
}

// EditData replaces the content of an authored message.
type EditData struct {
	MessageID int64  `json:"message_id"`
	Content   string `json:"content"`
}

// DeleteData deletes an authored message.
type DeleteData struct {
	MessageID int64 `json:"message_id"`
}

// ReactData toggles an emoji reaction.
type ReactData struct {
	MessageID int64  `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// ReadData marks messages in a container as read.
type ReadData struct {
	ContainerID int64   `json:"container_id"`
	MessageIDs  []int64 `json:"message_ids"`
}

// TypingData scopes a typing indicator to a container.
type TypingData struct {
	ContainerID int64 `json:"container_id"`
}

// StatusData sets an explicit presence status.
type StatusData struct {
	Status string `json:"status"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// ReadReceipt is the wire form of a read receipt.
type ReadReceipt struct {
	IdentityID int64     `json:"identity_id"`
	ReadAt     time.Time `json:"read_at"`
}

// Reaction is the wire form of an emoji reaction.
type Reaction struct {
	IdentityID int64  `json:"identity_id"`
	Emoji      string `json:"emoji"`
}

// Message is the wire form of a chat message.
type Message struct {
	ID          int64         `json:"id"`
	ContainerID int64         `json:"container_id"`
	SenderID    int64         `json:"sender_id"`
	Content     string        `json:"content"`
	Type        string        `json:"type"`
	State       string        `json:"state"`
	ReplyTo     *int64        `json:"reply_to,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	EditedAt    *time.Time    `json:"edited_at,omitempty"`
	DeletedAt   *time.Time    `json:"deleted_at,omitempty"`
	ReadBy      []ReadReceipt `json:"read_by,omitempty"`
	Reactions   []Reaction    `json:"reactions,omitempty"`
}

// EventChannelJoined confirms a channel subscription.
type EventChannelJoined struct {
	ContainerID int64 `json:"container_id"`
}

// EventMessage carries a full message for new/edited events.
type EventMessage struct {
	Message     Message `json:"message"`
	ContainerID int64   `json:"container_id"`
}

// EventMessageDeleted announces a message deletion.
type EventMessageDeleted struct {
	MessageID   int64 `json:"message_id"`
	ContainerID int64 `json:"container_id"`
}

// EventMessageReacted announces a reaction change.
type EventMessageReacted struct {
	MessageID   int64      `json:"message_id"`
	Reactions   []Reaction `json:"reactions"`
	ContainerID int64      `json:"container_id"`
}

// EventMessagesRead announces read receipts to the other participants.
type EventMessagesRead struct {
	ContainerID int64   `json:"container_id"`
	MessageIDs  []int64 `json:"message_ids"`
	ReadBy      int64   `json:"read_by"`
}

// EventTyping announces a typing indicator change.
type EventTyping struct {
	IdentityID  int64  `json:"identity_id"`
	Username    string `json:"username,omitempty"`
	ContainerID int64  `json:"container_id"`
}

// EventPresence announces a presence transition.
type EventPresence struct {
	IdentityID int64     `json:"identity_id"`
	Status     string    `json:"status"`
	LastSeen   time.Time `json:"last_seen"`
}

// EventOnlineList delivers the currently online identity ids.
type EventOnlineList struct {
	Identities []int64 `json:"identities"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
