package presence

import (
	"context"

	"IMCore/logger"
)

// Notifier turns "event + scope" into pushes to a resolved connection set.
//
// Delivery is best effort: an empty target set is a silent no-op (the
// recipient may simply be offline), and a failing connection never aborts
// the rest of the batch. There is no queueing or retry; clients re-pull
// current state when they (re)join.
type Notifier struct {
	reg    *Registry
	sender Sender
}

func NewNotifier(reg *Registry, sender Sender) *Notifier {
	return &Notifier{reg: reg, sender: sender}
}

// ToConversation delivers the event to every connection subscribed to the
// conversation, minus the connections of excludeUsers (used to keep a
// typist from receiving their own typing signal).
func (n *Notifier) ToConversation(ctx context.Context, conversationID, event string, payload any, excludeUsers ...string) {
	conns := n.reg.GetConnectionsForConversation(conversationID)
	if len(excludeUsers) > 0 {
		conns = n.without(conns, excludeUsers)
	}
	n.deliver(ctx, conns, event, payload)
}

// ToUser delivers the event to every live connection of the user
// (multi-device fanout).
func (n *Notifier) ToUser(ctx context.Context, userID, event string, payload any) {
	n.deliver(ctx, n.reg.GetConnectionsForUser(userID), event, payload)
}

// ToConnections delivers to an explicit connection set.
func (n *Notifier) ToConnections(ctx context.Context, connIDs []string, event string, payload any) {
	n.deliver(ctx, connIDs, event, payload)
}

func (n *Notifier) deliver(ctx context.Context, connIDs []string, event string, payload any) {
	if len(connIDs) == 0 {
		return
	}
	if err := n.sender.Send(ctx, connIDs, event, payload); err != nil {
		// Best effort: the sender's failure is invisible to the producer.
		logger.Warnf("[notifier] send failed event=%s conns=%d err=%v", event, len(connIDs), err)
	}
}

func (n *Notifier) without(conns []string, excludeUsers []string) []string {
	drop := make(map[string]struct{}, len(excludeUsers))
	for _, u := range excludeUsers {
		drop[u] = struct{}{}
	}
	out := conns[:0]
	for _, id := range conns {
		userID, ok := n.reg.GetUserIDForConnection(id)
		if ok {
			if _, skip := drop[userID]; skip {
				continue
			}
		}
		out = append(out, id)
	}
	return out
}
