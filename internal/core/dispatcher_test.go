package core

import (
	"context"
	"testing"
	"time"
)

func TestDispatcherBroadcastChannel(t *testing.T) {
	st := newFakeStore()
	ctx := context.Background()

	room, _ := st.CreateRoom(ctx, "general", 1, false)
	_ = st.AddMember(ctx, room.ID, 2)

	registry := NewRegistry()
	router := NewRouter(st)
	d := newTestDispatcher(registry, router)

	alice := NewSession("a", 1, "alice")
	bob := NewSession("b", 2, "bob")
	outsider := NewSession("c", 3, "carol")
	registry.Register(alice)
	registry.Register(bob)
	registry.Register(outsider)

	if _, err := router.Join(ctx, alice, room.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := router.Join(ctx, bob, room.ID); err != nil {
		t.Fatal(err)
	}

	d.BroadcastChannel(room.ID, &Event{Kind: EventMessageNew, ContainerID: room.ID})

	awaitEvent(t, alice, EventMessageNew)
	awaitEvent(t, bob, EventMessageNew)
	expectNoEvent(t, outsider, EventMessageNew)
}

func TestDispatcherBroadcastChannelExceptSkipsAllOwnedSessions(t *testing.T) {
	st := newFakeStore()
	ctx := context.Background()

	room, _ := st.CreateRoom(ctx, "general", 1, false)
	_ = st.AddMember(ctx, room.ID, 2)

	registry := NewRegistry()
	router := NewRouter(st)
	d := newTestDispatcher(registry, router)

	// Alice holds two sessions; the exclusion is by identity, not session.
	alice1 := NewSession("a1", 1, "alice")
	alice2 := NewSession("a2", 1, "alice")
	bob := NewSession("b", 2, "bob")
	for _, s := range []*Session{alice1, alice2, bob} {
		registry.Register(s)
		if _, err := router.Join(ctx, s, room.ID); err != nil {
			t.Fatal(err)
		}
	}

	d.BroadcastChannelExcept(room.ID, 1, &Event{Kind: EventMessagesRead, ContainerID: room.ID, IdentityID: 1})

	awaitEvent(t, bob, EventMessagesRead)
	expectNoEvent(t, alice1, EventMessagesRead)
	expectNoEvent(t, alice2, EventMessagesRead)
}

func TestDispatcherDropsForSlowConsumer(t *testing.T) {
	st := newFakeStore()
	registry := NewRegistry()
	router := NewRouter(st)
	d := newTestDispatcher(registry, router)

	slow := NewSession("slow", 1, "alice")
	registry.Register(slow)

	// Fill the event buffer past capacity; extra sends must not block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < cap(slow.Events)+10; i++ {
			d.Unicast(slow, &Event{Kind: EventPresence})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher blocked on a slow consumer")
	}

	if len(slow.Events) != cap(slow.Events) {
		t.Fatalf("buffered events = %d, want full buffer %d", len(slow.Events), cap(slow.Events))
	}
}

func TestDispatcherBroadcastGlobal(t *testing.T) {
	st := newFakeStore()
	registry := NewRegistry()
	router := NewRouter(st)
	d := newTestDispatcher(registry, router)

	alice := NewSession("a", 1, "alice")
	bob := NewSession("b", 2, "bob")
	registry.Register(alice)
	registry.Register(bob)

	d.BroadcastGlobal(1, &Event{Kind: EventPresence, IdentityID: 1})

	awaitEvent(t, bob, EventPresence)
	expectNoEvent(t, alice, EventPresence)

	// Zero means no exclusion.
	d.BroadcastGlobal(0, &Event{Kind: EventPresence, IdentityID: 2})
	awaitEvent(t, alice, EventPresence)
}
