package presence

// Event names pushed to clients. The gateway wraps these into outbound
// frames; remote producers reuse the same names on the NATS event subjects.
const (
	EventMessageReceived     = "message.received"
	EventTypingChanged       = "typing.changed"
	EventReceiptsUpdated     = "receipts.updated"
	EventAlertsChanged       = "alerts.changed"
	EventParticipantsChanged = "participants.changed"
)

// TypingPayload announces one typing transition in a conversation.
type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Typing         bool   `json:"typing"`
	Ts             int64  `json:"ts"`
}

// ReceiptsPayload carries the full read-receipt map of a conversation.
// Users that never read map to 0.
type ReceiptsPayload struct {
	ConversationID string           `json:"conversation_id"`
	Receipts       map[string]int64 `json:"receipts"`
}

// MessagePayload wraps a message produced by the application service.
type MessagePayload struct {
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Ts             int64  `json:"ts"`
	Body           any    `json:"body"`
}

// AlertsPayload signals that a user's alert list changed; the client
// re-pulls the list through the regular API.
type AlertsPayload struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason,omitempty"`
}

// ParticipantsPayload signals a membership change in a conversation.
type ParticipantsPayload struct {
	ConversationID string   `json:"conversation_id"`
	UserIDs        []string `json:"user_ids"`
}
