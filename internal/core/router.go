package core

import (
	"context"
	"errors"
	"sync"

	"github.com/olegsharov/converse-server/internal/store"
)

// ContainerSource resolves container ids against durable storage.
type ContainerSource interface {
	GetConversationByID(ctx context.Context, id int64) (*store.Conversation, error)
	GetRoomByID(ctx context.Context, id int64) (*store.Room, error)
}

// Router manages channel subscriptions for message containers and authorizes
// join requests against durable membership.
//
// Authorization happens once at join time. Membership changes after a
// successful join do not revoke the open subscription; that is deliberate.
type Router struct {
	source ContainerSource

	mu       sync.RWMutex
	channels map[int64]map[string]*Session
}

// NewRouter constructs a router backed by the given container source.
func NewRouter(source ContainerSource) *Router {
	return &Router{
		source:   source,
		channels: make(map[int64]map[string]*Session),
	}
}

// Resolve disambiguates a container id: conversation first, then room.
// The returned tagged container is carried by callers so the lookup never
// repeats for the same subscription.
func (r *Router) Resolve(ctx context.Context, containerID int64) (*store.Container, error) {
	conv, err := r.source.GetConversationByID(ctx, containerID)
	if err == nil {
		return &store.Container{Kind: store.ContainerConversation, Conversation: conv}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	room, err := r.source.GetRoomByID(ctx, containerID)
	if err == nil {
		return &store.Container{Kind: store.ContainerRoom, Room: room}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return nil, coreError(ErrCodeNotFound, "container not found")
}

// Join authorizes the session's identity against the container's durable
// membership and, on success, adds the session to the channel's subscriber
// set. On any failure no state changes.
func (r *Router) Join(ctx context.Context, s *Session, containerID int64) (*store.Container, error) {
	container, err := r.Resolve(ctx, containerID)
	if err != nil {
		return nil, err
	}
	if !container.HasParticipant(s.IdentityID) {
		return nil, coreError(ErrCodeNotAuthorized, "not a participant of this container")
	}

	r.mu.Lock()
	if _, ok := r.channels[containerID]; !ok {
		r.channels[containerID] = make(map[string]*Session)
	}
	r.channels[containerID][s.ID] = s
	r.mu.Unlock()

	s.Subscribe(container)
	return container, nil
}

// Leave drops the session's subscription to the channel. Unknown
// subscriptions are ignored; leaving is idempotent.
func (r *Router) Leave(s *Session, containerID int64) {
	r.mu.Lock()
	if subs, ok := r.channels[containerID]; ok {
		delete(subs, s.ID)
		if len(subs) == 0 {
			delete(r.channels, containerID)
		}
	}
	r.mu.Unlock()

	s.Unsubscribe(containerID)
}

// LeaveAll drops every subscription held by the session. Used on disconnect.
func (r *Router) LeaveAll(s *Session) {
	for _, id := range s.ChannelIDs() {
		r.Leave(s, id)
	}
}

// Subscribers returns a snapshot of the channel's subscriber set. The
// snapshot is safe to iterate while other sessions join or leave.
func (r *Router) Subscribers(containerID int64) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subs := r.channels[containerID]
	sessions := make([]*Session, 0, len(subs))
	for _, s := range subs {
		sessions = append(sessions, s)
	}
	return sessions
}
