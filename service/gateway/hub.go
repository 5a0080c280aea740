package gateway

import (
	"context"
	"time"

	"IMCore/logger"
	"IMCore/service/presence"
	errs "IMCore/tools/errs"
)

// Hub is the thin adapter between inbound transport events and the
// presence core. Every method corresponds to one transport event; the
// websocket server and the NATS event consumer both drive it, and tests
// drive it directly.
type Hub struct {
	reg       *presence.Registry
	typing    *presence.Typing
	receipts  *presence.Receipts
	notifier  *presence.Notifier
	provider  presence.ChatProvider
	announcer presence.Announcer
}

func NewHub(
	reg *presence.Registry,
	typing *presence.Typing,
	receipts *presence.Receipts,
	notifier *presence.Notifier,
	provider presence.ChatProvider,
	announcer presence.Announcer,
) *Hub {
	if announcer == nil {
		announcer = presence.NopAnnouncer{}
	}
	return &Hub{
		reg:       reg,
		typing:    typing,
		receipts:  receipts,
		notifier:  notifier,
		provider:  provider,
		announcer: announcer,
	}
}

func (h *Hub) Registry() *presence.Registry { return h.reg }

// OnConnect registers the connection; the first connection of a user
// announces the user online.
func (h *Hub) OnConnect(ctx context.Context, connID, userID string) error {
	wasOnline := h.reg.IsOnline(userID)
	if err := h.reg.AddConnection(connID, userID); err != nil {
		return err
	}
	if !wasOnline {
		if err := h.announcer.Online(ctx, userID); err != nil {
			logger.Warnf("[hub] presence announce failed user=%s err=%v", userID, err)
		}
	}
	return nil
}

// OnDisconnect tears the connection down. When it was the user's last
// connection, their typing entries in subscribed conversations are cleared
// and the user goes offline.
func (h *Hub) OnDisconnect(ctx context.Context, connID string) {
	rem, ok := h.reg.RemoveConnection(connID)
	if !ok {
		return
	}
	if rem.LastConnection {
		h.typing.ClearUser(ctx, rem.UserID, rem.Conversations)
		if err := h.announcer.Offline(ctx, rem.UserID); err != nil {
			logger.Warnf("[hub] presence offline failed user=%s err=%v", rem.UserID, err)
		}
	}
}

// JoinConversation subscribes the connection after a membership check and
// pushes current state (active typists, receipt map) to the joining
// connection, since missed events are not replayed.
func (h *Hub) JoinConversation(ctx context.Context, connID, conversationID string) error {
	if connID == "" || conversationID == "" {
		return errs.ErrInvalidArgument.WrapMsg("connID/conversationID empty")
	}
	userID, ok := h.reg.GetUserIDForConnection(connID)
	if !ok {
		return errs.ErrNotFound.WrapMsg("unknown connection", "conn", connID)
	}
	member, err := h.provider.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return errs.ErrInternal.WrapMsg("membership check failed", "err", err)
	}
	if !member {
		return errs.ErrUnauthorized.WrapMsg("not a participant", "user", userID, "conversation", conversationID)
	}
	h.reg.AddToConversation(connID, conversationID)
	h.pushCurrentState(ctx, connID, conversationID)
	return nil
}

// LeaveConversation unsubscribes the connection. Unknown ids are a no-op.
func (h *Hub) LeaveConversation(_ context.Context, connID, conversationID string) {
	h.reg.RemoveFromConversation(connID, conversationID)
}

// UserStartedTyping validates membership and delegates to the coordinator.
func (h *Hub) UserStartedTyping(ctx context.Context, conversationID, userID string) error {
	if err := h.requireParticipant(ctx, conversationID, userID); err != nil {
		return err
	}
	return h.typing.UserStartedTyping(ctx, conversationID, userID)
}

// UserStoppedTyping clears the typing flag; stopping twice is a no-op.
func (h *Hub) UserStoppedTyping(ctx context.Context, conversationID, userID string) error {
	if err := h.requireParticipant(ctx, conversationID, userID); err != nil {
		return err
	}
	return h.typing.UserStoppedTyping(ctx, conversationID, userID)
}

// MessageSent fans a freshly persisted message out to the conversation's
// subscribers. The gateway does not persist messages; the producer already
// did.
func (h *Hub) MessageSent(ctx context.Context, conversationID string, msg presence.MessagePayload) error {
	if conversationID == "" {
		return errs.ErrInvalidArgument.WrapMsg("conversationID empty")
	}
	msg.ConversationID = conversationID
	h.notifier.ToConversation(ctx, conversationID, presence.EventMessageReceived, msg)
	return nil
}

// MarkRead advances the read watermark and returns the unread count.
func (h *Hub) MarkRead(ctx context.Context, conversationID, userID string, ts int64) (int, error) {
	return h.receipts.MarkRead(ctx, conversationID, userID, ts)
}

// AlertsChanged notifies every device of the user that their alert list
// changed.
func (h *Hub) AlertsChanged(ctx context.Context, userID, reason string) error {
	if userID == "" {
		return errs.ErrInvalidArgument.WrapMsg("userID empty")
	}
	h.notifier.ToUser(ctx, userID, presence.EventAlertsChanged, presence.AlertsPayload{
		UserID: userID,
		Reason: reason,
	})
	return nil
}

// ParticipantsChanged broadcasts the current participant list of a
// conversation to its subscribers.
func (h *Hub) ParticipantsChanged(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return errs.ErrInvalidArgument.WrapMsg("conversationID empty")
	}
	users, err := h.provider.GetParticipants(ctx, conversationID)
	if err != nil {
		return errs.ErrInternal.WrapMsg("list participants failed", "err", err)
	}
	h.notifier.ToConversation(ctx, conversationID, presence.EventParticipantsChanged, presence.ParticipantsPayload{
		ConversationID: conversationID,
		UserIDs:        users,
	})
	return nil
}

func (h *Hub) requireParticipant(ctx context.Context, conversationID, userID string) error {
	if conversationID == "" || userID == "" {
		return errs.ErrInvalidArgument.WrapMsg("conversationID/userID empty")
	}
	member, err := h.provider.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return errs.ErrInternal.WrapMsg("membership check failed", "err", err)
	}
	if !member {
		return errs.ErrUnauthorized.WrapMsg("not a participant", "user", userID, "conversation", conversationID)
	}
	return nil
}

// pushCurrentState sends the conversation's live typing flags and receipt
// map to one connection.
func (h *Hub) pushCurrentState(ctx context.Context, connID, conversationID string) {
	target := []string{connID}
	now := time.Now().UnixMilli()
	for _, typist := range h.typing.ActiveTypists(conversationID) {
		h.notifier.ToConnections(ctx, target, presence.EventTypingChanged, presence.TypingPayload{
			ConversationID: conversationID,
			UserID:         typist,
			Typing:         true,
			Ts:             now,
		})
	}
	receipts, err := h.receipts.GetReceiptsForConversation(ctx, conversationID)
	if err != nil {
		logger.Warnf("[hub] receipt snapshot failed conversation=%s err=%v", conversationID, err)
		return
	}
	h.notifier.ToConnections(ctx, target, presence.EventReceiptsUpdated, presence.ReceiptsPayload{
		ConversationID: conversationID,
		Receipts:       receipts,
	})
}
