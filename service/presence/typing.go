package presence

import (
	"context"
	"sync"
	"time"

	errs "IMCore/tools/errs"
	"IMCore/tools/safe"
)

// TypingConfig carries the expiry window and an injectable clock for tests.
type TypingConfig struct {
	Timeout time.Duration    // idle window from the last refresh
	Clock   func() time.Time // nil => time.Now
}

func (c *TypingConfig) norm() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// typingEntry is one live "user is typing in conversation" flag. gen is
// assigned from the coordinator-wide counter at every arm, so an expiry that
// fires after the entry was refreshed, replaced, or recreated re-checks it
// under the lock and silently aborts. Timer.Stop does not wait for a
// callback already running; a per-entry counter restarting at zero would let
// such a callback kill a freshly recreated entry.
type typingEntry struct {
	gen   uint64
	timer *time.Timer
}

// Typing is the per-conversation, per-user typing state machine.
//
// Idle -> Typing on start (arms the timer, broadcasts once);
// Typing -> Typing on refresh (re-arms, no re-broadcast);
// Typing -> Idle on explicit stop or expiry (broadcasts the stop).
// Entry mutation and timer arm/cancel happen under one mutex.
type Typing struct {
	mu       sync.Mutex
	conf     TypingConfig
	reg      *Registry
	notifier *Notifier
	gen      uint64                             // monotonic, never reused
	byConv   map[string]map[string]*typingEntry // conversation -> user -> entry
}

func NewTyping(conf TypingConfig, reg *Registry, notifier *Notifier) *Typing {
	conf.norm()
	return &Typing{
		conf:     conf,
		reg:      reg,
		notifier: notifier,
		byConv:   make(map[string]map[string]*typingEntry),
	}
}

// UserStartedTyping registers or refreshes the typing flag. Only the
// Idle->Typing edge notifies the other subscribers; refreshes re-arm the
// timer without re-broadcasting. A user with zero live connections cannot
// be typing.
func (t *Typing) UserStartedTyping(ctx context.Context, conversationID, userID string) error {
	if conversationID == "" || userID == "" {
		return errs.ErrInvalidArgument.WrapMsg("conversationID/userID empty")
	}
	if !t.reg.IsOnline(userID) {
		return errs.ErrNotFound.WrapMsg("no live connection", "user", userID)
	}

	t.mu.Lock()
	users := t.byConv[conversationID]
	if users == nil {
		users = make(map[string]*typingEntry)
		t.byConv[conversationID] = users
	}
	e, refresh := users[userID]
	if refresh {
		// Cancel-then-replace is atomic with respect to the entry map;
		// a timer that already fired will see the new generation.
		e.timer.Stop()
	} else {
		e = &typingEntry{}
		users[userID] = e
	}
	t.gen++
	e.gen = t.gen
	gen := e.gen
	e.timer = time.AfterFunc(t.conf.Timeout, func() {
		t.expire(conversationID, userID, gen)
	})
	t.mu.Unlock()

	if !refresh {
		t.notifier.ToConversation(ctx, conversationID, EventTypingChanged, TypingPayload{
			ConversationID: conversationID,
			UserID:         userID,
			Typing:         true,
			Ts:             t.conf.Clock().UnixMilli(),
		}, userID)
	}
	return nil
}

// UserStoppedTyping clears the flag and notifies the other subscribers.
// Stopping with no active entry is a no-op, not an error.
func (t *Typing) UserStoppedTyping(ctx context.Context, conversationID, userID string) error {
	if conversationID == "" || userID == "" {
		return errs.ErrInvalidArgument.WrapMsg("conversationID/userID empty")
	}
	if !t.removeEntry(conversationID, userID, 0, false) {
		return nil
	}
	t.emitStopped(ctx, conversationID, userID)
	return nil
}

// ClearUser drops the user's typing entries in the given conversations,
// notifying each one. Called when the user's last connection goes away.
func (t *Typing) ClearUser(ctx context.Context, userID string, conversationIDs []string) {
	for _, conversationID := range conversationIDs {
		if t.removeEntry(conversationID, userID, 0, false) {
			t.emitStopped(ctx, conversationID, userID)
		}
	}
}

// ActiveTypists returns a snapshot of users currently typing in the
// conversation, for clients pulling current state on (re)join.
func (t *Typing) ActiveTypists(conversationID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	users := t.byConv[conversationID]
	if len(users) == 0 {
		return nil
	}
	out := make([]string, 0, len(users))
	for u := range users {
		out = append(out, u)
	}
	return out
}

// Close cancels all pending timers.
func (t *Typing) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, users := range t.byConv {
		for _, e := range users {
			e.timer.Stop()
		}
	}
	t.byConv = make(map[string]map[string]*typingEntry)
}

// expire runs on the timer goroutine. A notification failure is logged by
// the notifier and does not resurrect the entry: a stuck "typing forever"
// indicator would be strictly worse than a missed stop event.
func (t *Typing) expire(conversationID, userID string, gen uint64) {
	defer safe.Recover()
	if !t.removeEntry(conversationID, userID, gen, true) {
		return
	}
	t.emitStopped(context.Background(), conversationID, userID)
}

// removeEntry deletes the entry if present (and, when checkGen is set, only
// if the generation still matches). Reports whether an entry was removed.
func (t *Typing) removeEntry(conversationID, userID string, gen uint64, checkGen bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	users := t.byConv[conversationID]
	e, ok := users[userID]
	if !ok {
		return false
	}
	if checkGen && e.gen != gen {
		return false
	}
	e.timer.Stop()
	delete(users, userID)
	if len(users) == 0 {
		delete(t.byConv, conversationID)
	}
	return true
}

func (t *Typing) emitStopped(ctx context.Context, conversationID, userID string) {
	t.notifier.ToConversation(ctx, conversationID, EventTypingChanged, TypingPayload{
		ConversationID: conversationID,
		UserID:         userID,
		Typing:         false,
		Ts:             t.conf.Clock().UnixMilli(),
	}, userID)
}
