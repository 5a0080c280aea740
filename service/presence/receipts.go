package presence

import (
	"context"

	"IMCore/logger"
	errs "IMCore/tools/errs"
)

// NeverRead is the sentinel watermark for a participant that never marked
// the conversation read; it sorts below any real unix-millisecond value.
const NeverRead int64 = 0

// Receipts tracks the last-read watermark per (user, conversation) and
// computes unread counts. The actual storage sits behind ReceiptStore so a
// shared backend can replace the in-memory map without touching this logic.
//
// Updates are monotonic: concurrent MarkRead calls for the same key
// converge to the maximum timestamp regardless of arrival order, which
// makes the operation commutative and safe to retry.
type Receipts struct {
	store    ReceiptStore
	provider ChatProvider
	notifier *Notifier
}

func NewReceipts(store ReceiptStore, provider ChatProvider, notifier *Notifier) *Receipts {
	return &Receipts{store: store, provider: provider, notifier: notifier}
}

// MarkRead advances the user's watermark in the conversation to
// max(existing, ts), returns the number of messages by others between the
// previous watermark and ts, and fans the conversation's full receipt map
// out to its subscribers. Validation failures mutate nothing.
func (rc *Receipts) MarkRead(ctx context.Context, conversationID, userID string, ts int64) (int, error) {
	if conversationID == "" || userID == "" {
		return 0, errs.ErrInvalidArgument.WrapMsg("conversationID/userID empty")
	}
	if ts <= NeverRead {
		return 0, errs.ErrInvalidArgument.WrapMsg("timestamp must be positive", "ts", ts)
	}
	ok, err := rc.provider.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return 0, errs.ErrInternal.WrapMsg("membership check failed", "err", err)
	}
	if !ok {
		return 0, errs.ErrUnauthorized.WrapMsg("not a participant", "user", userID, "conversation", conversationID)
	}

	prev, err := rc.store.GetLastRead(ctx, userID, conversationID)
	if err != nil {
		return 0, err
	}
	unread, err := rc.provider.CountMessagesAfter(ctx, conversationID, userID, prev)
	if err != nil {
		return 0, errs.ErrInternal.WrapMsg("count messages failed", "err", err)
	}
	if _, err := rc.store.SetMaxLastRead(ctx, userID, conversationID, ts); err != nil {
		return 0, err
	}

	receipts, err := rc.GetReceiptsForConversation(ctx, conversationID)
	if err != nil {
		// The watermark is stored; only the push is lost.
		logger.Warnf("[receipts] snapshot fanout skipped conversation=%s err=%v", conversationID, err)
		return unread, nil
	}
	rc.notifier.ToConversation(ctx, conversationID, EventReceiptsUpdated, ReceiptsPayload{
		ConversationID: conversationID,
		Receipts:       receipts,
	})
	return unread, nil
}

// GetLastRead returns the stored watermark, NeverRead when absent.
func (rc *Receipts) GetLastRead(ctx context.Context, userID, conversationID string) (int64, error) {
	if conversationID == "" || userID == "" {
		return NeverRead, errs.ErrInvalidArgument.WrapMsg("conversationID/userID empty")
	}
	return rc.store.GetLastRead(ctx, userID, conversationID)
}

// GetReceiptsForConversation snapshots every participant's watermark;
// participants that never read map to NeverRead.
func (rc *Receipts) GetReceiptsForConversation(ctx context.Context, conversationID string) (map[string]int64, error) {
	if conversationID == "" {
		return nil, errs.ErrInvalidArgument.WrapMsg("conversationID empty")
	}
	participants, err := rc.provider.GetParticipants(ctx, conversationID)
	if err != nil {
		return nil, errs.ErrInternal.WrapMsg("list participants failed", "err", err)
	}
	out := make(map[string]int64, len(participants))
	for _, userID := range participants {
		ts, err := rc.store.GetLastRead(ctx, userID, conversationID)
		if err != nil {
			return nil, err
		}
		out[userID] = ts
	}
	return out, nil
}
