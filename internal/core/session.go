package core

import (
	"sync"

	"github.com/olegsharov/converse-server/internal/store"
)

// Session is one live real-time connection as seen by the core layer.
// A session is owned by exactly one identity; one identity may hold any
// number of concurrent sessions.
type Session struct {
	ID         string
	IdentityID int64
	Username   string
	Commands   chan *Command
	Events     chan *Event

	mu       sync.Mutex
	channels map[int64]*store.Container
}

// NewSession constructs a session with initialized channels.
func NewSession(id string, identityID int64, username string) *Session {
	return &Session{
		ID:         id,
		IdentityID: identityID,
		Username:   username,
		Commands:   make(chan *Command, 16),
		Events:     make(chan *Event, 32),
		channels:   make(map[int64]*store.Container),
	}
}

// Subscribe records the resolved container for a joined channel.
func (s *Session) Subscribe(c *store.Container) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[c.ID()] = c
}

// Unsubscribe forgets a channel subscription. Returns false if absent.
func (s *Session) Unsubscribe(containerID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[containerID]; !ok {
		return false
	}
	delete(s.channels, containerID)
	return true
}

// Channel returns the container carried by an open subscription, if any.
func (s *Session) Channel(containerID int64) (*store.Container, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.channels[containerID]
	return c, ok
}

// ChannelIDs returns the ids of all subscribed channels.
func (s *Session) ChannelIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.channels))
	for id := range s.channels {
		ids = append(ids, id)
	}
	return ids
}
