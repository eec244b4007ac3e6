package core

import (
	"context"

	"github.com/olegsharov/converse-server/internal/store"
)

// UnreadCounter maintains per-participant unread counts on conversations.
// Counts never go negative: increments add one per non-sender participant,
// resets set the reader's counter to zero.
//
// Increments triggered by message creation run inside the store transaction
// that persists the message (see MessageStore.CreateConversationMessage), so
// they cannot be lost under concurrent sends. The methods here cover the
// remaining callers and keep the per-conversation write discipline for them.
type UnreadCounter struct {
	store store.ConversationStore
	locks stripedLocks
}

// NewUnreadCounter constructs a counter over the given conversation store.
func NewUnreadCounter(st store.ConversationStore) *UnreadCounter {
	return &UnreadCounter{store: st}
}

// Increment adds one to every participant's counter except exceptIdentityID.
func (u *UnreadCounter) Increment(ctx context.Context, conversationID, exceptIdentityID int64) error {
	unlock := u.locks.lock(conversationID)
	defer unlock()
	return u.store.IncrementUnread(ctx, conversationID, exceptIdentityID)
}

// Reset sets the identity's counter for the conversation to zero. Called
// after a successful mark-read for that conversation.
func (u *UnreadCounter) Reset(ctx context.Context, conversationID, identityID int64) error {
	unlock := u.locks.lock(conversationID)
	defer unlock()
	return u.store.ResetUnread(ctx, conversationID, identityID)
}
