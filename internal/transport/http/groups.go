package http

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dmaksimov/beatlink-server/internal/multiplayer"
)

// Client is a connected websocket peer as seen by the fan-out layer. Events
// are buffered; slow consumers drop rather than block the room handle.
type Client struct {
	ConnectionID string
	UserID       int32
	Events       chan multiplayer.Event
}

// GroupRegistry is the in-process implementation of the core's GroupManager.
type GroupRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	groups  map[string]map[string]*Client
	log     *zerolog.Logger
}

// NewGroupRegistry builds an empty registry.
func NewGroupRegistry(logger *zerolog.Logger) *GroupRegistry {
	return &GroupRegistry{
		clients: make(map[string]*Client),
		groups:  make(map[string]map[string]*Client),
		log:     logger,
	}
}

// Register tracks a new connection and returns its client record.
func (r *GroupRegistry) Register(connectionID string, userID int32) *Client {
	c := &Client{
		ConnectionID: connectionID,
		UserID:       userID,
		Events:       make(chan multiplayer.Event, 16),
	}

	r.mu.Lock()
	r.clients[connectionID] = c
	r.mu.Unlock()
	return c
}

// Unregister drops a connection from every group and closes its event
// channel.
func (r *GroupRegistry) Unregister(connectionID string) {
	r.mu.Lock()
	c, ok := r.clients[connectionID]
	if ok {
		delete(r.clients, connectionID)
		for name, members := range r.groups {
			delete(members, connectionID)
			if len(members) == 0 {
				delete(r.groups, name)
			}
		}
	}
	r.mu.Unlock()

	if ok {
		close(c.Events)
	}
}

// SendToGroup delivers an event to every member of the group.
func (r *GroupRegistry) SendToGroup(_ context.Context, group string, event multiplayer.Event) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.groups[group] {
		select {
		case c.Events <- event:
		default:
			r.log.Warn().
				Str("connection_id", c.ConnectionID).
				Str("event", event.Event).
				Msg("dropping event for slow consumer")
		}
	}
	return nil
}

// AddToGroup registers a connection in the group.
func (r *GroupRegistry) AddToGroup(_ context.Context, group string, connectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[connectionID]
	if !ok {
		// Connection already torn down; membership is moot.
		return nil
	}

	members, ok := r.groups[group]
	if !ok {
		members = make(map[string]*Client)
		r.groups[group] = members
	}
	members[connectionID] = c
	return nil
}

// RemoveFromGroup drops a connection from the group.
func (r *GroupRegistry) RemoveFromGroup(_ context.Context, group string, connectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.groups[group]
	if !ok {
		return nil
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(r.groups, group)
	}
	return nil
}
