package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/olegsharov/converse-server/internal/observability"
	"github.com/olegsharov/converse-server/internal/store"
)

// Presence derives online/away/offline status from registry occupancy.
//
// An identity is online while it has at least one live session and becomes
// offline, with last-seen set, only when the count drops to zero. An explicit
// away status is preserved across additional connects and is cleared by the
// next explicit change or by the final disconnect.
type Presence struct {
	registry   *Registry
	store      store.IdentityStore
	dispatcher *Dispatcher
	log        *zerolog.Logger
	now        func() time.Time
}

// NewPresence constructs a presence tracker.
func NewPresence(registry *Registry, st store.IdentityStore, dispatcher *Dispatcher, logger *zerolog.Logger) *Presence {
	return &Presence{
		registry:   registry,
		store:      st,
		dispatcher: dispatcher,
		log:        logger,
		now:        time.Now,
	}
}

// OnConnect is called after a session registered. The first session of an
// identity flips it online; further sessions change nothing.
func (p *Presence) OnConnect(ctx context.Context, identityID int64) {
	if p.registry.SessionCount(identityID) != 1 {
		return
	}
	p.transition(ctx, identityID, store.PresenceOnline)
}

// OnDisconnect is called after a session unregistered. The transition to
// offline fires only when the identity's last session is gone.
func (p *Presence) OnDisconnect(ctx context.Context, identityID int64) {
	if p.registry.SessionCount(identityID) != 0 {
		return
	}
	p.transition(ctx, identityID, store.PresenceOffline)
}

// SetStatus applies an explicit status change requested by the identity's own
// action, e.g. away. Offline cannot be requested; it is derived.
func (p *Presence) SetStatus(ctx context.Context, identityID int64, status store.PresenceStatus) error {
	if status != store.PresenceOnline && status != store.PresenceAway {
		return coreError(ErrCodeValidation, "status must be online or away")
	}
	if p.registry.SessionCount(identityID) == 0 {
		return coreError(ErrCodeInvalidState, "identity has no live session")
	}
	p.transition(ctx, identityID, status)
	return nil
}

func (p *Presence) transition(ctx context.Context, identityID int64, status store.PresenceStatus) {
	lastSeen := p.now()
	if err := p.store.UpdatePresence(ctx, identityID, status, lastSeen); err != nil {
		p.log.Error().Err(err).Int64("identity_id", identityID).Msg("failed to persist presence")
		return
	}
	observability.IncPresenceTransition(string(status))

	// Presence reaches everyone else, not any particular channel.
	p.dispatcher.BroadcastGlobal(identityID, &Event{
		Kind:       EventPresence,
		IdentityID: identityID,
		Status:     status,
		LastSeen:   lastSeen,
	})
}
