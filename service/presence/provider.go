package presence

import "context"

// Sender is the outbound transport: push one event to a set of connections.
// Implemented by the websocket gateway's local fanout pool. Delivery is best
// effort; a Sender must tolerate stale connection ids.
type Sender interface {
	Send(ctx context.Context, connIDs []string, event string, payload any) error
}

// ChatProvider is the persistence-side collaborator. Conversation and
// message storage live outside this process; the presence core only asks
// membership and counting questions at the boundary.
type ChatProvider interface {
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	// CountMessagesAfter counts messages in the conversation authored by
	// users other than userID with a timestamp strictly greater than since
	// (unix milliseconds).
	CountMessagesAfter(ctx context.Context, conversationID, userID string, since int64) (int, error)
	GetParticipants(ctx context.Context, conversationID string) ([]string, error)
}

// ReceiptStore holds last-read watermarks. The in-memory implementation is
// the single-node default; the Redis implementation allows a shared store
// without touching the tracker logic.
type ReceiptStore interface {
	// GetLastRead returns the stored watermark, 0 when the user never read
	// the conversation.
	GetLastRead(ctx context.Context, userID, conversationID string) (int64, error)
	// SetMaxLastRead stores max(existing, ts) and returns the value now
	// stored. Concurrent calls converge to the maximum.
	SetMaxLastRead(ctx context.Context, userID, conversationID string, ts int64) (int64, error)
}

// Announcer publishes user online/offline transitions so that other nodes
// can route to this gateway. Single-node deployments use the no-op.
type Announcer interface {
	Online(ctx context.Context, userID string) error
	Offline(ctx context.Context, userID string) error
}

type NopAnnouncer struct{}

func (NopAnnouncer) Online(context.Context, string) error  { return nil }
func (NopAnnouncer) Offline(context.Context, string) error { return nil }
