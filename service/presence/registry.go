package presence

import (
	"sync"

	errs "IMCore/tools/errs"
)

// Registry is the authoritative map of connection/user/conversation
// relationships. Four mirrored indexes live under one mutex so that no
// reader ever observes a connection registered on one side only:
//
//	byUser   user -> set of conn ids
//	byConn   conn -> user
//	byConv   conversation -> set of conn ids
//	subs     conn -> set of conversation ids
//
// State is process-local: multi-instance deployments need a shared store
// behind the gateway, the registry itself stays single-node.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]struct{}
	byConn map[string]string
	byConv map[string]map[string]struct{}
	subs   map[string]map[string]struct{}
}

// Removal reports what RemoveConnection tore down, so the caller can react
// (clear typing state, announce offline).
type Removal struct {
	UserID         string
	LastConnection bool
	Conversations  []string
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]map[string]struct{}),
		byConn: make(map[string]string),
		byConv: make(map[string]map[string]struct{}),
		subs:   make(map[string]map[string]struct{}),
	}
}

// AddConnection registers a connection for a user. Idempotent per connID; a
// user may hold any number of connections. Re-registering a live connection
// under a different user moves it (byConn is the source of truth).
func (r *Registry) AddConnection(connID, userID string) error {
	if connID == "" || userID == "" {
		return errs.ErrInvalidArgument.WrapMsg("connID/userID empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byConn[connID]; ok {
		if prev == userID {
			return nil
		}
		r.removeUserIndexLocked(connID, prev)
	}

	m := r.byUser[userID]
	if m == nil {
		m = make(map[string]struct{})
		r.byUser[userID] = m
	}
	m[connID] = struct{}{}
	r.byConn[connID] = userID
	return nil
}

// RemoveConnection tears the connection down atomically: reverse map, user
// index, every conversation subscriber set and its own subscription set.
// Unknown ids are not an error; ok reports whether anything was removed.
func (r *Registry) RemoveConnection(connID string) (Removal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[connID]
	if !ok {
		return Removal{}, false
	}
	delete(r.byConn, connID)
	r.removeUserIndexLocked(connID, userID)

	var convs []string
	for convID := range r.subs[connID] {
		convs = append(convs, convID)
		if set := r.byConv[convID]; set != nil {
			delete(set, connID)
			if len(set) == 0 {
				delete(r.byConv, convID)
			}
		}
	}
	delete(r.subs, connID)

	_, stillOnline := r.byUser[userID]
	return Removal{
		UserID:         userID,
		LastConnection: !stillOnline,
		Conversations:  convs,
	}, true
}

// AddToConversation subscribes the connection to a conversation, keeping
// both conversation maps in lock-step. Unknown connections are ignored:
// join frames racing a disconnect are routine, not an error.
func (r *Registry) AddToConversation(connID, conversationID string) {
	if connID == "" || conversationID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byConn[connID]; !ok {
		return
	}
	set := r.byConv[conversationID]
	if set == nil {
		set = make(map[string]struct{})
		r.byConv[conversationID] = set
	}
	set[connID] = struct{}{}

	sub := r.subs[connID]
	if sub == nil {
		sub = make(map[string]struct{})
		r.subs[connID] = sub
	}
	sub[conversationID] = struct{}{}
}

// RemoveFromConversation unsubscribes the connection; empty sets are pruned
// so the maps do not grow unbounded.
func (r *Registry) RemoveFromConversation(connID, conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if set := r.byConv[conversationID]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.byConv, conversationID)
		}
	}
	if sub := r.subs[connID]; sub != nil {
		delete(sub, conversationID)
		if len(sub) == 0 {
			delete(r.subs, connID)
		}
	}
}

// GetConnectionsForUser returns the user's live connection ids; empty when
// the user is unknown or offline.
func (r *Registry) GetConnectionsForUser(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return keysOf(r.byUser[userID])
}

// GetConnectionsForConversation returns the conversation's subscriber set.
func (r *Registry) GetConnectionsForConversation(conversationID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return keysOf(r.byConv[conversationID])
}

// GetUserIDForConnection resolves the owning user of a connection.
func (r *Registry) GetUserIDForConnection(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.byConn[connID]
	return userID, ok
}

// GetConversationsForConnection returns the connection's subscriptions.
func (r *Registry) GetConversationsForConnection(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return keysOf(r.subs[connID])
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// must hold r.mu
func (r *Registry) removeUserIndexLocked(connID, userID string) {
	if m := r.byUser[userID]; m != nil {
		delete(m, connID)
		if len(m) == 0 {
			delete(r.byUser, userID)
		}
	}
}

func keysOf(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
