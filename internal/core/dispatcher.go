package core

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/olegsharov/converse-server/internal/events"
	"github.com/olegsharov/converse-server/internal/observability"
)

// Dispatcher composes the router and the registry to deliver events to the
// correct session set. Delivery is fire-and-forget per session: a slow or
// dead session loses the event instead of blocking everyone else.
type Dispatcher struct {
	registry  *Registry
	router    *Router
	publisher events.Publisher
	log       *zerolog.Logger
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(registry *Registry, router *Router, publisher events.Publisher, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		router:    router,
		publisher: publisher,
		log:       logger,
	}
}

// Unicast delivers an event to a single session.
func (d *Dispatcher) Unicast(s *Session, ev *Event) {
	d.send(s, ev)
	d.audit(ev, 1)
}

// BroadcastChannel delivers a container-scoped event to every subscriber of
// the container's channel, the sender's sessions included.
func (d *Dispatcher) BroadcastChannel(containerID int64, ev *Event) {
	subs := d.router.Subscribers(containerID)
	for _, s := range subs {
		d.send(s, ev)
	}
	d.audit(ev, len(subs))
}

// BroadcastChannelExcept delivers a container-scoped event to the channel's
// subscribers, skipping every session owned by exceptIdentityID. Used for
// read receipts and typing indicators, which must not echo back.
func (d *Dispatcher) BroadcastChannelExcept(containerID, exceptIdentityID int64, ev *Event) {
	sent := 0
	for _, s := range d.router.Subscribers(containerID) {
		if s.IdentityID == exceptIdentityID {
			continue
		}
		d.send(s, ev)
		sent++
	}
	d.audit(ev, sent)
}

// BroadcastGlobal delivers an event to all connected sessions, bypassing
// channel membership. Sessions owned by exceptIdentityID are skipped when it
// is non-zero. Presence transitions use this path.
func (d *Dispatcher) BroadcastGlobal(exceptIdentityID int64, ev *Event) {
	sent := 0
	for _, s := range d.registry.Sessions() {
		if exceptIdentityID != 0 && s.IdentityID == exceptIdentityID {
			continue
		}
		d.send(s, ev)
		sent++
	}
	d.audit(ev, sent)
}

func (d *Dispatcher) send(s *Session, ev *Event) {
	select {
	case s.Events <- ev:
		observability.IncEventDelivered(ev.Kind.String())
	default:
		// Slow consumer; drop rather than block the delivery loop.
		observability.IncEventDropped(ev.Kind.String())
		d.log.Debug().
			Str("session_id", s.ID).
			Str("event", ev.Kind.String()).
			Msg("dropped event for slow session")
	}
}

func (d *Dispatcher) audit(ev *Event, sessions int) {
	if ev.Kind == EventError {
		return
	}
	routingKey := "events." + strings.ReplaceAll(ev.Kind.String(), ":", ".")
	_ = d.publisher.Publish(context.Background(), routingKey, events.Envelope{
		Event:       ev.Kind.String(),
		ContainerID: ev.ContainerID,
		IdentityID:  ev.IdentityID,
		Sessions:    sessions,
		At:          time.Now(),
	})
}
