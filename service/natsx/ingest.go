package natsx

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"

	"IMCore/logger"
	"IMCore/service/gateway"
	"IMCore/service/presence"
)

// Domain-event subjects published by the application service. The gateway
// is a pure consumer here: persistence already happened on the producer
// side, only the fanout remains. Every node subscribes plainly (no queue
// group) because each node can only deliver to the connections it owns.
const (
	SubjectMessageSent         = "im.events.message.sent"
	SubjectAlertsChanged       = "im.events.alerts.changed"
	SubjectParticipantsChanged = "im.events.participants.changed"
)

type alertEvent struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason,omitempty"`
}

type participantsEvent struct {
	ConversationID string `json:"conversation_id"`
}

// PublishMessageSent broadcasts a client-produced message to every gateway
// node. This node delivers too, through its own subscription.
func (c *Client) PublishMessageSent(_ context.Context, msg presence.MessagePayload) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.publish(SubjectMessageSent, data)
}

// ServeEvents subscribes the domain-event subjects and drives the hub.
func ServeEvents(c *Client, hub *gateway.Hub) error {
	if err := c.subscribe(SubjectMessageSent, func(m *nats.Msg) {
		var msg presence.MessagePayload
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			logger.Warnf("[ingest] bad message event: %v", err)
			return
		}
		if err := hub.MessageSent(context.Background(), msg.ConversationID, msg); err != nil {
			logger.Warnf("[ingest] message fanout failed conversation=%s err=%v", msg.ConversationID, err)
		}
	}); err != nil {
		return err
	}

	if err := c.subscribe(SubjectAlertsChanged, func(m *nats.Msg) {
		var ev alertEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			logger.Warnf("[ingest] bad alert event: %v", err)
			return
		}
		if err := hub.AlertsChanged(context.Background(), ev.UserID, ev.Reason); err != nil {
			logger.Warnf("[ingest] alert fanout failed user=%s err=%v", ev.UserID, err)
		}
	}); err != nil {
		return err
	}

	return c.subscribe(SubjectParticipantsChanged, func(m *nats.Msg) {
		var ev participantsEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			logger.Warnf("[ingest] bad participants event: %v", err)
			return
		}
		if err := hub.ParticipantsChanged(context.Background(), ev.ConversationID); err != nil {
			logger.Warnf("[ingest] participants fanout failed conversation=%s err=%v", ev.ConversationID, err)
		}
	})
}
