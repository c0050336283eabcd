package http

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmaksimov/beatlink-server/internal/multiplayer"
)

func TestGroupRegistryFanOut(t *testing.T) {
	ctx := context.Background()
	r := NewGroupRegistry(nopLogger())

	a := r.Register("conn-a", 1)
	b := r.Register("conn-b", 2)

	require.NoError(t, r.AddToGroup(ctx, "room:1:false", "conn-a"))
	require.NoError(t, r.AddToGroup(ctx, "room:1:false", "conn-b"))

	require.NoError(t, r.SendToGroup(ctx, "room:1:false", multiplayer.Event{Event: "user_joined"}))

	assert.Equal(t, "user_joined", (<-a.Events).Event)
	assert.Equal(t, "user_joined", (<-b.Events).Event)
}

func TestGroupRegistryMembershipScoping(t *testing.T) {
	ctx := context.Background()
	r := NewGroupRegistry(nopLogger())

	a := r.Register("conn-a", 1)
	b := r.Register("conn-b", 2)

	require.NoError(t, r.AddToGroup(ctx, "room:1:true", "conn-a"))

	require.NoError(t, r.SendToGroup(ctx, "room:1:true", multiplayer.Event{Event: "load_requested"}))

	assert.Len(t, a.Events, 1)
	assert.Len(t, b.Events, 0, "non-member must not receive group events")

	require.NoError(t, r.RemoveFromGroup(ctx, "room:1:true", "conn-a"))
	require.NoError(t, r.SendToGroup(ctx, "room:1:true", multiplayer.Event{Event: "load_requested"}))
	assert.Len(t, a.Events, 1, "removed member must not receive further events")
}

func TestGroupRegistryUnregisterDropsMemberships(t *testing.T) {
	ctx := context.Background()
	r := NewGroupRegistry(nopLogger())

	a := r.Register("conn-a", 1)
	require.NoError(t, r.AddToGroup(ctx, "room:1:false", "conn-a"))
	require.NoError(t, r.AddToGroup(ctx, "room:1:true", "conn-a"))

	r.Unregister("conn-a")

	require.NoError(t, r.SendToGroup(ctx, "room:1:false", multiplayer.Event{Event: "user_left"}))

	_, open := <-a.Events
	assert.False(t, open, "event channel must be closed on unregister")
}

func TestGroupRegistryAddUnknownConnection(t *testing.T) {
	ctx := context.Background()
	r := NewGroupRegistry(nopLogger())

	// Joining a group after the connection is gone is a quiet no-op.
	require.NoError(t, r.AddToGroup(ctx, "room:1:false", "ghost"))
	require.NoError(t, r.SendToGroup(ctx, "room:1:false", multiplayer.Event{Event: "user_joined"}))
}

func TestGroupRegistryDropsForSlowConsumer(t *testing.T) {
	ctx := context.Background()
	r := NewGroupRegistry(nopLogger())

	a := r.Register("conn-a", 1)
	require.NoError(t, r.AddToGroup(ctx, "room:1:false", "conn-a"))

	// Fill the buffer past capacity; sends must never block.
	for i := 0; i < cap(a.Events)+10; i++ {
		require.NoError(t, r.SendToGroup(ctx, "room:1:false", multiplayer.Event{Event: "settings_changed"}))
	}
	assert.Len(t, a.Events, cap(a.Events))
}
