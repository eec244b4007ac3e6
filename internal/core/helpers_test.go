package core

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/olegsharov/converse-server/internal/events"
	"github.com/olegsharov/converse-server/internal/store"
)

// fakeStore is an in-memory store.Store used by core tests.
type fakeStore struct {
	mu            sync.Mutex
	nextID        int64
	identities    map[int64]*store.Identity
	conversations map[int64]*store.Conversation
	rooms         map[int64]*store.Room
	messages      map[int64]*store.Message
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		identities:    make(map[int64]*store.Identity),
		conversations: make(map[int64]*store.Conversation),
		rooms:         make(map[int64]*store.Room),
		messages:      make(map[int64]*store.Message),
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) CreateIdentity(_ context.Context, username, passwordHash string) (*store.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ident := &store.Identity{
		ID:           f.id(),
		Username:     username,
		PasswordHash: passwordHash,
		Status:       store.PresenceOffline,
		CreatedAt:    time.Now(),
	}
	f.identities[ident.ID] = ident
	return ident, nil
}

func (f *fakeStore) GetIdentityByID(_ context.Context, id int64) (*store.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ident, ok := f.identities[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *ident
	return &cp, nil
}

func (f *fakeStore) GetIdentityByUsername(_ context.Context, username string) (*store.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ident := range f.identities {
		if ident.Username == username {
			cp := *ident
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) UpdatePresence(_ context.Context, id int64, status store.PresenceStatus, lastSeen time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ident, ok := f.identities[id]
	if !ok {
		return store.ErrNotFound
	}
	ident.Status = status
	ident.LastSeen = lastSeen
	return nil
}

func (f *fakeStore) SearchIdentities(_ context.Context, query string) ([]*store.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.Identity
	for _, ident := range f.identities {
		if strings.Contains(ident.Username, query) {
			cp := *ident
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateConversation(_ context.Context, participants []int64) (*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv := &store.Conversation{
		ID:           f.id(),
		Participants: append([]int64(nil), participants...),
		UnreadCounts: make(map[int64]int),
		CreatedAt:    time.Now(),
	}
	f.conversations[conv.ID] = conv
	return conv, nil
}

func (f *fakeStore) GetConversationByID(_ context.Context, id int64) (*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyConversation(conv), nil
}

func (f *fakeStore) ListConversations(_ context.Context, identityID int64) ([]*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.Conversation
	for _, conv := range f.conversations {
		if conv.HasParticipant(identityID) {
			out = append(out, copyConversation(conv))
		}
	}
	return out, nil
}

func (f *fakeStore) IncrementUnread(_ context.Context, conversationID, exceptIdentityID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversations[conversationID]
	if !ok {
		return store.ErrNotFound
	}
	for _, p := range conv.Participants {
		if p != exceptIdentityID {
			conv.UnreadCounts[p]++
		}
	}
	return nil
}

func (f *fakeStore) ResetUnread(_ context.Context, conversationID, identityID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversations[conversationID]
	if !ok {
		return store.ErrNotFound
	}
	conv.UnreadCounts[identityID] = 0
	return nil
}

func (f *fakeStore) CreateRoom(_ context.Context, name string, ownerID int64, private bool) (*store.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room := &store.Room{
		ID:        f.id(),
		Name:      name,
		OwnerID:   ownerID,
		Private:   private,
		Members:   []int64{ownerID},
		CreatedAt: time.Now(),
	}
	f.rooms[room.ID] = room
	return room, nil
}

func (f *fakeStore) GetRoomByID(_ context.Context, id int64) (*store.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *room
	cp.Members = append([]int64(nil), room.Members...)
	return &cp, nil
}

func (f *fakeStore) ListRooms(_ context.Context, identityID int64) ([]*store.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.Room
	for _, room := range f.rooms {
		if !room.Private || room.HasMember(identityID) {
			cp := *room
			cp.Members = append([]int64(nil), room.Members...)
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) AddMember(_ context.Context, roomID, identityID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[roomID]
	if !ok {
		return store.ErrNotFound
	}
	if !room.HasMember(identityID) {
		room.Members = append(room.Members, identityID)
	}
	return nil
}

func (f *fakeStore) IsMember(_ context.Context, roomID, identityID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[roomID]
	if !ok {
		return false, store.ErrNotFound
	}
	return room.HasMember(identityID), nil
}

func (f *fakeStore) CreateRoomMessage(_ context.Context, msg *store.Message) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *msg
	stored.ID = f.id()
	f.messages[stored.ID] = &stored
	cp := stored
	return &cp, nil
}

func (f *fakeStore) CreateConversationMessage(_ context.Context, msg *store.Message) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversations[msg.ContainerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	stored := *msg
	stored.ID = f.id()
	f.messages[stored.ID] = &stored
	conv.LastMessageID = &stored.ID
	for _, p := range conv.Participants {
		if p != msg.SenderID {
			conv.UnreadCounts[p]++
		}
	}
	cp := stored
	return &cp, nil
}

func (f *fakeStore) GetMessageByID(_ context.Context, id int64) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyMessage(msg), nil
}

func (f *fakeStore) UpdateMessageIf(_ context.Context, msg *store.Message, fromStates ...store.MessageState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.messages[msg.ID]
	if !ok {
		return store.ErrNotFound
	}
	allowed := false
	for _, s := range fromStates {
		if stored.State == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return store.ErrConflict
	}
	stored.Content = msg.Content
	stored.State = msg.State
	stored.EditedAt = msg.EditedAt
	stored.DeletedAt = msg.DeletedAt
	return nil
}

func (f *fakeStore) ToggleReaction(_ context.Context, messageID, identityID int64, emoji string) ([]store.Reaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[messageID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for i, r := range msg.Reactions {
		if r.IdentityID == identityID && r.Emoji == emoji {
			msg.Reactions = append(msg.Reactions[:i], msg.Reactions[i+1:]...)
			return append([]store.Reaction(nil), msg.Reactions...), nil
		}
	}
	msg.Reactions = append(msg.Reactions, store.Reaction{IdentityID: identityID, Emoji: emoji, CreatedAt: time.Now()})
	return append([]store.Reaction(nil), msg.Reactions...), nil
}

func (f *fakeStore) AddReadReceipts(_ context.Context, identityID int64, messageIDs []int64, readAt time.Time) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var receipted []int64
	for _, id := range messageIDs {
		msg, ok := f.messages[id]
		if !ok || msg.SenderID == identityID {
			continue
		}
		already := false
		for _, r := range msg.ReadBy {
			if r.IdentityID == identityID {
				already = true
				break
			}
		}
		if already {
			continue
		}
		msg.ReadBy = append(msg.ReadBy, store.ReadReceipt{IdentityID: identityID, ReadAt: readAt})
		receipted = append(receipted, id)
	}
	return receipted, nil
}

func (f *fakeStore) ListMessages(_ context.Context, kind store.ContainerKind, containerID int64, limit int, beforeID *int64) ([]*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.Message
	for _, msg := range f.messages {
		if msg.ContainerKind != kind || msg.ContainerID != containerID {
			continue
		}
		if beforeID != nil && msg.ID >= *beforeID {
			continue
		}
		out = append(out, copyMessage(msg))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) Close() error { return nil }

func copyConversation(conv *store.Conversation) *store.Conversation {
	cp := *conv
	cp.Participants = append([]int64(nil), conv.Participants...)
	cp.UnreadCounts = make(map[int64]int, len(conv.UnreadCounts))
	for k, v := range conv.UnreadCounts {
		cp.UnreadCounts[k] = v
	}
	return &cp
}

func copyMessage(msg *store.Message) *store.Message {
	cp := *msg
	cp.ReadBy = append([]store.ReadReceipt(nil), msg.ReadBy...)
	cp.Reactions = append([]store.Reaction(nil), msg.Reactions...)
	return &cp
}

func newTestHub(st store.Store) *Hub {
	logger := zerolog.Nop()
	return NewHub(st, events.NewPublisher("", "", &logger), &logger)
}

func newTestDispatcher(registry *Registry, router *Router) *Dispatcher {
	logger := zerolog.Nop()
	return NewDispatcher(registry, router, events.NewPublisher("", "", &logger), &logger)
}

// awaitEvent reads from the session's event channel until an event of the
// wanted kind arrives, skipping unrelated events like presence broadcasts.
func awaitEvent(t *testing.T, s *Session, kind EventKind) *Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-s.Events:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", kind)
			return nil
		}
	}
}

// expectNoEvent asserts that no event of the given kind is queued.
func expectNoEvent(t *testing.T, s *Session, kind EventKind) {
	t.Helper()
	timeout := time.After(100 * time.Millisecond)
	for {
		select {
		case ev := <-s.Events:
			if ev.Kind == kind {
				t.Fatalf("unexpected %s event", kind)
			}
		case <-timeout:
			return
		}
	}
}
