package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional update lost a race:
// the entity changed since the caller read it.
var ErrConflict = errors.New("conflict")

// PresenceStatus is the durable presence state of an identity.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceOffline PresenceStatus = "offline"
)

// Identity represents a registered user account.
type Identity struct {
	ID           int64
	Username     string
	PasswordHash string
	Status       PresenceStatus
	LastSeen     time.Time
	CreatedAt    time.Time
}

// Conversation is a direct or group chat between two or more identities.
type Conversation struct {
	ID            int64
	Participants  []int64
	LastMessageID *int64
	UnreadCounts  map[int64]int
	CreatedAt     time.Time
}

// HasParticipant reports whether the identity belongs to the conversation.
func (c *Conversation) HasParticipant(identityID int64) bool {
	for _, p := range c.Participants {
		if p == identityID {
			return true
		}
	}
	return false
}

// Room is a topical channel with an owner and explicit membership.
type Room struct {
	ID        int64
	Name      string
	OwnerID   int64
	Private   bool
	Members   []int64
	CreatedAt time.Time
}

// HasMember reports whether the identity is a member of the room.
func (r *Room) HasMember(identityID int64) bool {
	for _, m := range r.Members {
		if m == identityID {
			return true
		}
	}
	return false
}

// ContainerKind discriminates the two message container variants.
type ContainerKind string

const (
	ContainerConversation ContainerKind = "conversation"
	ContainerRoom         ContainerKind = "room"
)

// Container is the tagged union of Conversation and Room. A message belongs
// to exactly one container; the kind is resolved once at channel-join time
// and carried on the subscription thereafter.
type Container struct {
	Kind         ContainerKind
	Conversation *Conversation
	Room         *Room
}

// ID returns the container id regardless of variant.
func (c *Container) ID() int64 {
	if c.Kind == ContainerRoom {
		return c.Room.ID
	}
	return c.Conversation.ID
}

// HasParticipant reports whether the identity may read and write the container.
func (c *Container) HasParticipant(identityID int64) bool {
	if c.Kind == ContainerRoom {
		return c.Room.HasMember(identityID)
	}
	return c.Conversation.HasParticipant(identityID)
}

// MessageType classifies message content.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

// ValidMessageType reports whether t is a known message type.
func ValidMessageType(t MessageType) bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeSystem:
		return true
	}
	return false
}

// MessageState is the lifecycle state of a message.
type MessageState string

const (
	MessageStateActive  MessageState = "active"
	MessageStateEdited  MessageState = "edited"
	MessageStateDeleted MessageState = "deleted"
)

// ReadReceipt records that an identity has read a message.
// A message holds at most one receipt per identity.
type ReadReceipt struct {
	IdentityID int64
	ReadAt     time.Time
}

// Reaction is an emoji reaction by one identity.
type Reaction struct {
	IdentityID int64
	Emoji      string
	CreatedAt  time.Time
}

// Message is a persisted chat message.
type Message struct {
	ID            int64
	ContainerID   int64
	ContainerKind ContainerKind
	SenderID      int64
	Content       string
	Type          MessageType
	State         MessageState
	ReplyTo       *int64
	CreatedAt     time.Time
	EditedAt      *time.Time
	DeletedAt     *time.Time
	ReadBy        []ReadReceipt
	Reactions     []Reaction
}

// IdentityStore handles identity persistence.
type IdentityStore interface {
	// CreateIdentity creates a new identity with hashed password.
	CreateIdentity(ctx context.Context, username, passwordHash string) (*Identity, error)

	// GetIdentityByID retrieves an identity by id.
	GetIdentityByID(ctx context.Context, id int64) (*Identity, error)

	// GetIdentityByUsername retrieves an identity by username.
	GetIdentityByUsername(ctx context.Context, username string) (*Identity, error)

	// UpdatePresence updates the durable presence status and last-seen time.
	UpdatePresence(ctx context.Context, id int64, status PresenceStatus, lastSeen time.Time) error

	// SearchIdentities searches identities by username substring.
	SearchIdentities(ctx context.Context, query string) ([]*Identity, error)
}

// ConversationStore handles conversation persistence.
type ConversationStore interface {
	// CreateConversation creates a conversation between the given participants.
	// Requires at least two participants.
	CreateConversation(ctx context.Context, participants []int64) (*Conversation, error)

	// GetConversationByID retrieves a conversation with its participants and
	// per-participant unread counts.
	GetConversationByID(ctx context.Context, id int64) (*Conversation, error)

	// ListConversations lists conversations the identity participates in.
	ListConversations(ctx context.Context, identityID int64) ([]*Conversation, error)

	// IncrementUnread adds one to the unread counter of every participant
	// except exceptIdentityID.
	IncrementUnread(ctx context.Context, conversationID, exceptIdentityID int64) error

	// ResetUnread sets the identity's unread counter for the conversation to zero.
	ResetUnread(ctx context.Context, conversationID, identityID int64) error
}

// RoomStore handles room persistence.
type RoomStore interface {
	// CreateRoom creates a room owned by ownerID; the owner becomes a member.
	CreateRoom(ctx context.Context, name string, ownerID int64, private bool) (*Room, error)

	// GetRoomByID retrieves a room with its member list.
	GetRoomByID(ctx context.Context, id int64) (*Room, error)

	// ListRooms lists rooms visible to the identity: public rooms plus
	// private rooms the identity is a member of.
	ListRooms(ctx context.Context, identityID int64) ([]*Room, error)

	// AddMember adds an identity to the room.
	AddMember(ctx context.Context, roomID, identityID int64) error

	// IsMember checks room membership.
	IsMember(ctx context.Context, roomID, identityID int64) (bool, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateRoomMessage persists a message sent into a room.
	CreateRoomMessage(ctx context.Context, msg *Message) (*Message, error)

	// CreateConversationMessage persists a message sent into a conversation.
	// In the same transaction it advances the conversation's last-message
	// pointer and increments the unread counter of every participant other
	// than the sender, so no increment is lost under concurrent sends.
	CreateConversationMessage(ctx context.Context, msg *Message) (*Message, error)

	// GetMessageByID retrieves a message with receipts and reactions.
	GetMessageByID(ctx context.Context, id int64) (*Message, error)

	// UpdateMessageIf applies content, state and lifecycle timestamps from msg
	// only while the stored state is one of fromStates. Returns ErrConflict
	// when the state changed since the caller read the message.
	UpdateMessageIf(ctx context.Context, msg *Message, fromStates ...MessageState) error

	// ToggleReaction removes an existing (identity, emoji) reaction or appends
	// one, and returns the resulting reaction set.
	ToggleReaction(ctx context.Context, messageID, identityID int64, emoji string) ([]Reaction, error)

	// AddReadReceipts appends a receipt per message for the identity, skipping
	// messages the identity authored or already receipted. Returns the ids
	// that actually received a new receipt. Repeated calls with overlapping
	// id sets are idempotent.
	AddReadReceipts(ctx context.Context, identityID int64, messageIDs []int64, readAt time.Time) ([]int64, error)

	// ListMessages retrieves container messages with pagination, newest first.
	// If beforeID is set only messages older than that id are returned.
	ListMessages(ctx context.Context, kind ContainerKind, containerID int64, limit int, beforeID *int64) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	IdentityStore
	ConversationStore
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
