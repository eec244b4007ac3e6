package core

import (
	"context"
	"strings"
	"time"

	"github.com/olegsharov/converse-server/internal/store"
)

// DeletedPlaceholder replaces the content of a deleted message.
const DeletedPlaceholder = "This message was deleted"

// Lifecycle owns the message state machine:
//
//	active --edit--> edited --edit--> edited
//	active|edited --delete--> deleted (terminal)
//	active|edited --react--> unchanged state
//
// A deleted message accepts no further edit, delete or reaction. Writes to
// one message are serialized through a striped lock, and the store update is
// conditional on the expected source states, so a transition computed against
// stale state fails with a visible conflict instead of silently winning.
type Lifecycle struct {
	store store.Store
	locks stripedLocks
	now   func() time.Time
}

// NewLifecycle constructs a lifecycle manager over the given store.
func NewLifecycle(st store.Store) *Lifecycle {
	return &Lifecycle{store: st, now: time.Now}
}

// Create validates and persists a new message in the container. For a
// conversation container, the unread-counter increments and the last-message
// pointer advance happen in the same store transaction as the insert.
func (l *Lifecycle) Create(ctx context.Context, senderID int64, container *store.Container, content string, msgType store.MessageType, replyTo *int64) (*store.Message, error) {
	if !container.HasParticipant(senderID) {
		return nil, coreError(ErrCodeNotAuthorized, "not a participant of this container")
	}
	if msgType == "" {
		msgType = store.MessageTypeText
	}
	if !store.ValidMessageType(msgType) {
		return nil, coreError(ErrCodeValidation, "unknown message type")
	}
	if msgType == store.MessageTypeText && strings.TrimSpace(content) == "" {
		return nil, coreError(ErrCodeValidation, "text message requires content")
	}

	msg := &store.Message{
		ContainerID:   container.ID(),
		ContainerKind: container.Kind,
		SenderID:      senderID,
		Content:       content,
		Type:          msgType,
		State:         store.MessageStateActive,
		ReplyTo:       replyTo,
		CreatedAt:     l.now(),
	}

	if container.Kind == store.ContainerConversation {
		return l.store.CreateConversationMessage(ctx, msg)
	}
	return l.store.CreateRoomMessage(ctx, msg)
}

// Edit replaces the content of a message the requester authored.
func (l *Lifecycle) Edit(ctx context.Context, requesterID, messageID int64, newContent string) (*store.Message, error) {
	if strings.TrimSpace(newContent) == "" {
		return nil, coreError(ErrCodeValidation, "edit requires content")
	}

	unlock := l.locks.lock(messageID)
	defer unlock()

	msg, err := l.store.GetMessageByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != requesterID {
		return nil, coreError(ErrCodeNotAuthorized, "only the sender may edit a message")
	}
	if msg.State == store.MessageStateDeleted {
		return nil, coreError(ErrCodeInvalidState, "message is deleted")
	}

	editedAt := l.now()
	msg.Content = newContent
	msg.State = store.MessageStateEdited
	msg.EditedAt = &editedAt

	if err := l.store.UpdateMessageIf(ctx, msg, store.MessageStateActive, store.MessageStateEdited); err != nil {
		return nil, err
	}
	return msg, nil
}

// Delete marks a message the requester authored as deleted. The transition is
// terminal and the content is replaced with a fixed placeholder.
func (l *Lifecycle) Delete(ctx context.Context, requesterID, messageID int64) (*store.Message, error) {
	unlock := l.locks.lock(messageID)
	defer unlock()

	msg, err := l.store.GetMessageByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != requesterID {
		return nil, coreError(ErrCodeNotAuthorized, "only the sender may delete a message")
	}
	if msg.State == store.MessageStateDeleted {
		return nil, coreError(ErrCodeInvalidState, "message is already deleted")
	}

	deletedAt := l.now()
	msg.Content = DeletedPlaceholder
	msg.State = store.MessageStateDeleted
	msg.DeletedAt = &deletedAt

	if err := l.store.UpdateMessageIf(ctx, msg, store.MessageStateActive, store.MessageStateEdited); err != nil {
		return nil, err
	}
	return msg, nil
}

// React toggles an (identity, emoji) reaction: present reactions are removed,
// absent ones appended. Reacting twice with the same pair is an involution.
func (l *Lifecycle) React(ctx context.Context, requesterID, messageID int64, emoji string) (*store.Message, error) {
	if emoji == "" {
		return nil, coreError(ErrCodeValidation, "emoji is required")
	}

	unlock := l.locks.lock(messageID)
	defer unlock()

	msg, err := l.store.GetMessageByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.State == store.MessageStateDeleted {
		return nil, coreError(ErrCodeInvalidState, "message is deleted")
	}

	reactions, err := l.store.ToggleReaction(ctx, messageID, requesterID, emoji)
	if err != nil {
		return nil, err
	}
	msg.Reactions = reactions
	return msg, nil
}

// MarkRead appends a read receipt for every referenced message not authored
// by the requester and lacking one, at most one receipt per identity per
// message. Repeated calls with overlapping id sets are idempotent.
func (l *Lifecycle) MarkRead(ctx context.Context, requesterID int64, messageIDs []int64) ([]int64, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	return l.store.AddReadReceipts(ctx, requesterID, messageIDs, l.now())
}
