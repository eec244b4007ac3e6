package core

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/olegsharov/converse-server/internal/events"
	"github.com/olegsharov/converse-server/internal/observability"
	"github.com/olegsharov/converse-server/internal/store"
)

// Hub owns the realtime coordination state: the session registry, presence
// tracking, channel routing, the message lifecycle and event dispatch. It is
// constructed at startup and torn down with the process; nothing survives a
// restart.
//
// Each attached session gets its own goroutine that consumes the session's
// command channel in arrival order. Commands from different sessions run
// concurrently and may interleave on shared entities; the lifecycle and
// store layers serialize those writes.
type Hub struct {
	registry   *Registry
	presence   *Presence
	router     *Router
	lifecycle  *Lifecycle
	unread     *UnreadCounter
	dispatcher *Dispatcher
	log        *zerolog.Logger

	handlers map[CommandKind]handlerFunc
}

type handlerFunc func(ctx context.Context, s *Session, cmd *Command) error

// NewHub wires the coordination components over the given store.
func NewHub(st store.Store, publisher events.Publisher, logger *zerolog.Logger) *Hub {
	registry := NewRegistry()
	router := NewRouter(st)
	dispatcher := NewDispatcher(registry, router, publisher, logger)

	h := &Hub{
		registry:   registry,
		presence:   NewPresence(registry, st, dispatcher, logger),
		router:     router,
		lifecycle:  NewLifecycle(st),
		unread:     NewUnreadCounter(st),
		dispatcher: dispatcher,
		log:        logger,
	}

	h.handlers = map[CommandKind]handlerFunc{
		CommandJoinChannel:   h.handleJoin,
		CommandLeaveChannel:  h.handleLeave,
		CommandSendMessage:   h.handleSend,
		CommandEditMessage:   h.handleEdit,
		CommandDeleteMessage: h.handleDelete,
		CommandReactMessage:  h.handleReact,
		CommandMarkRead:      h.handleMarkRead,
		CommandTypingStart:   h.handleTypingStart,
		CommandTypingStop:    h.handleTypingStop,
		CommandSetStatus:     h.handleSetStatus,
		CommandListOnline:    h.handleListOnline,
	}
	return h
}

// Registry exposes the session registry for transports and tests.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// AttachSession registers the session, fires the presence transition and
// starts the per-session command loop. The loop ends when the session's
// command channel is closed or ctx is cancelled.
func (h *Hub) AttachSession(ctx context.Context, s *Session) {
	h.registry.Register(s)
	observability.SessionOpened()
	h.presence.OnConnect(ctx, s.IdentityID)
	go h.serve(ctx, s)
}

func (h *Hub) serve(ctx context.Context, s *Session) {
	defer h.detach(s)
	for {
		select {
		case cmd, ok := <-s.Commands:
			if !ok {
				return
			}
			h.dispatch(ctx, s, cmd)
		case <-ctx.Done():
			return
		}
	}
}

// detach runs only after the command loop drained, so a disconnecting
// session never leaves a mutation half-applied.
func (h *Hub) detach(s *Session) {
	h.router.LeaveAll(s)
	h.registry.Unregister(s.ID)
	observability.SessionClosed()

	// The connection context is gone by now; presence persistence gets its own.
	h.presence.OnDisconnect(context.Background(), s.IdentityID)

	// Events stays open: a broadcast may hold a registry snapshot taken just
	// before Unregister, and its non-blocking send must not hit a closed
	// channel. The transport's write loop exits on its own context instead.
}

func (h *Hub) dispatch(ctx context.Context, s *Session, cmd *Command) {
	fn, ok := h.handlers[cmd.Kind]
	if !ok {
		h.dispatcher.Unicast(s, ErrorEvent(coreError(ErrCodeBadRequest, "unknown command")))
		return
	}
	if err := fn(ctx, s, cmd); err != nil {
		ce := AsCoreError(err)
		if IsInternal(ce) {
			h.log.Error().Err(err).
				Str("session_id", s.ID).
				Int64("identity_id", s.IdentityID).
				Msg("command failed")
		}
		h.dispatcher.Unicast(s, &Event{Kind: EventError, Error: ce})
	}
}

func (h *Hub) handleJoin(ctx context.Context, s *Session, cmd *Command) error {
	container, err := h.router.Join(ctx, s, cmd.ContainerID)
	if err != nil {
		return err
	}
	h.dispatcher.Unicast(s, &Event{
		Kind:        EventChannelJoined,
		ContainerID: container.ID(),
		IdentityID:  s.IdentityID,
	})
	return nil
}

func (h *Hub) handleLeave(_ context.Context, s *Session, cmd *Command) error {
	h.router.Leave(s, cmd.ContainerID)
	return nil
}

func (h *Hub) handleSend(ctx context.Context, s *Session, cmd *Command) error {
	container, err := h.containerFor(ctx, s, cmd.ContainerID)
	if err != nil {
		return err
	}

	msg, err := h.lifecycle.Create(ctx, s.IdentityID, container, cmd.Content, cmd.MessageType, cmd.ReplyTo)
	if err != nil {
		return err
	}

	h.dispatcher.BroadcastChannel(container.ID(), &Event{
		Kind:        EventMessageNew,
		ContainerID: container.ID(),
		Message:     msg,
		IdentityID:  s.IdentityID,
	})
	return nil
}

func (h *Hub) handleEdit(ctx context.Context, s *Session, cmd *Command) error {
	msg, err := h.lifecycle.Edit(ctx, s.IdentityID, cmd.MessageID, cmd.Content)
	if err != nil {
		return err
	}

	h.dispatcher.BroadcastChannel(msg.ContainerID, &Event{
		Kind:        EventMessageEdited,
		ContainerID: msg.ContainerID,
		Message:     msg,
		IdentityID:  s.IdentityID,
	})
	return nil
}

func (h *Hub) handleDelete(ctx context.Context, s *Session, cmd *Command) error {
	msg, err := h.lifecycle.Delete(ctx, s.IdentityID, cmd.MessageID)
	if err != nil {
		return err
	}

	h.dispatcher.BroadcastChannel(msg.ContainerID, &Event{
		Kind:        EventMessageDeleted,
		ContainerID: msg.ContainerID,
		MessageID:   msg.ID,
		IdentityID:  s.IdentityID,
	})
	return nil
}

func (h *Hub) handleReact(ctx context.Context, s *Session, cmd *Command) error {
	msg, err := h.lifecycle.React(ctx, s.IdentityID, cmd.MessageID, cmd.Emoji)
	if err != nil {
		return err
	}

	h.dispatcher.BroadcastChannel(msg.ContainerID, &Event{
		Kind:        EventMessageReacted,
		ContainerID: msg.ContainerID,
		MessageID:   msg.ID,
		Reactions:   msg.Reactions,
		IdentityID:  s.IdentityID,
	})
	return nil
}

func (h *Hub) handleMarkRead(ctx context.Context, s *Session, cmd *Command) error {
	container, err := h.containerFor(ctx, s, cmd.ContainerID)
	if err != nil {
		return err
	}
	if !container.HasParticipant(s.IdentityID) {
		return coreError(ErrCodeNotAuthorized, "not a participant of this container")
	}

	if _, err := h.lifecycle.MarkRead(ctx, s.IdentityID, cmd.MessageIDs); err != nil {
		return err
	}
	if container.Kind == store.ContainerConversation {
		if err := h.unread.Reset(ctx, container.ID(), s.IdentityID); err != nil {
			return err
		}
	}

	// The reader's own sessions get no echo.
	h.dispatcher.BroadcastChannelExcept(container.ID(), s.IdentityID, &Event{
		Kind:        EventMessagesRead,
		ContainerID: container.ID(),
		MessageIDs:  cmd.MessageIDs,
		IdentityID:  s.IdentityID,
	})
	return nil
}

func (h *Hub) handleTypingStart(ctx context.Context, s *Session, cmd *Command) error {
	container, err := h.containerFor(ctx, s, cmd.ContainerID)
	if err != nil {
		return err
	}
	if !container.HasParticipant(s.IdentityID) {
		return coreError(ErrCodeNotAuthorized, "not a participant of this container")
	}

	h.dispatcher.BroadcastChannelExcept(container.ID(), s.IdentityID, &Event{
		Kind:        EventTypingStarted,
		ContainerID: container.ID(),
		IdentityID:  s.IdentityID,
		Username:    s.Username,
	})
	return nil
}

func (h *Hub) handleTypingStop(_ context.Context, s *Session, cmd *Command) error {
	h.dispatcher.BroadcastChannelExcept(cmd.ContainerID, s.IdentityID, &Event{
		Kind:        EventTypingStopped,
		ContainerID: cmd.ContainerID,
		IdentityID:  s.IdentityID,
	})
	return nil
}

func (h *Hub) handleSetStatus(ctx context.Context, s *Session, cmd *Command) error {
	return h.presence.SetStatus(ctx, s.IdentityID, cmd.Status)
}

func (h *Hub) handleListOnline(_ context.Context, s *Session, _ *Command) error {
	h.dispatcher.Unicast(s, &Event{
		Kind:   EventOnlineList,
		Online: h.registry.OnlineIdentities(),
	})
	return nil
}

// containerFor reuses the container carried by an open subscription and
// falls back to a durable lookup for sessions acting without a join.
func (h *Hub) containerFor(ctx context.Context, s *Session, containerID int64) (*store.Container, error) {
	if container, ok := s.Channel(containerID); ok {
		return container, nil
	}
	return h.router.Resolve(ctx, containerID)
}
