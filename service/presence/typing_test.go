package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "IMCore/tools/errs"
)

func newTypingFixture(t *testing.T, timeout time.Duration) (*Typing, *Registry, *recordingSender) {
	t.Helper()
	r := NewRegistry()
	s := &recordingSender{}
	ty := NewTyping(TypingConfig{Timeout: timeout}, r, NewNotifier(r, s))
	t.Cleanup(ty.Close)
	return ty, r, s
}

func joinConv(t *testing.T, r *Registry, connID, userID, convID string) {
	t.Helper()
	require.NoError(t, r.AddConnection(connID, userID))
	r.AddToConversation(connID, convID)
}

func typingEvents(s *recordingSender) []TypingPayload {
	var out []TypingPayload
	for _, e := range s.snapshot() {
		if e.event == EventTypingChanged {
			out = append(out, e.payload.(TypingPayload))
		}
	}
	return out
}

func TestTypingStartNotifiesOthersOnly(t *testing.T) {
	ty, r, s := newTypingFixture(t, time.Minute)
	joinConv(t, r, "c1", "alice", "conv1")
	joinConv(t, r, "c2", "bob", "conv1")

	require.NoError(t, ty.UserStartedTyping(context.Background(), "conv1", "alice"))

	got := s.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, []string{"c2"}, got[0].connIDs)
	p := got[0].payload.(TypingPayload)
	assert.Equal(t, "alice", p.UserID)
	assert.True(t, p.Typing)
	assert.Equal(t, []string{"alice"}, ty.ActiveTypists("conv1"))
}

func TestTypingRefreshDoesNotRebroadcast(t *testing.T) {
	ty, r, s := newTypingFixture(t, time.Minute)
	joinConv(t, r, "c1", "alice", "conv1")
	joinConv(t, r, "c2", "bob", "conv1")

	ctx := context.Background()
	require.NoError(t, ty.UserStartedTyping(ctx, "conv1", "alice"))
	require.NoError(t, ty.UserStartedTyping(ctx, "conv1", "alice"))
	require.NoError(t, ty.UserStartedTyping(ctx, "conv1", "alice"))

	assert.Len(t, typingEvents(s), 1)
	assert.Equal(t, []string{"alice"}, ty.ActiveTypists("conv1"))
}

func TestTypingStopEmitsOnce(t *testing.T) {
	ty, r, s := newTypingFixture(t, time.Minute)
	joinConv(t, r, "c1", "alice", "conv1")
	joinConv(t, r, "c2", "bob", "conv1")

	ctx := context.Background()
	require.NoError(t, ty.UserStartedTyping(ctx, "conv1", "alice"))
	require.NoError(t, ty.UserStoppedTyping(ctx, "conv1", "alice"))
	require.NoError(t, ty.UserStoppedTyping(ctx, "conv1", "alice")) // idempotent

	got := typingEvents(s)
	require.Len(t, got, 2)
	assert.True(t, got[0].Typing)
	assert.False(t, got[1].Typing)
	assert.Empty(t, ty.ActiveTypists("conv1"))
}

func TestTypingExpiresAfterTimeout(t *testing.T) {
	ty, r, s := newTypingFixture(t, 30*time.Millisecond)
	joinConv(t, r, "c1", "alice", "conv1")
	joinConv(t, r, "c2", "bob", "conv1")

	require.NoError(t, ty.UserStartedTyping(context.Background(), "conv1", "alice"))

	require.Eventually(t, func() bool {
		evs := typingEvents(s)
		return len(evs) == 2 && !evs[1].Typing
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, ty.ActiveTypists("conv1"))
}

func TestTypingRefreshExtendsTimer(t *testing.T) {
	ty, r, s := newTypingFixture(t, 60*time.Millisecond)
	joinConv(t, r, "c1", "alice", "conv1")
	joinConv(t, r, "c2", "bob", "conv1")

	ctx := context.Background()
	require.NoError(t, ty.UserStartedTyping(ctx, "conv1", "alice"))
	for i := 0; i < 3; i++ {
		time.Sleep(30 * time.Millisecond)
		require.NoError(t, ty.UserStartedTyping(ctx, "conv1", "alice"))
	}
	// Still inside the refreshed window: no stop event yet.
	assert.Len(t, typingEvents(s), 1)
	assert.Equal(t, []string{"alice"}, ty.ActiveTypists("conv1"))

	require.Eventually(t, func() bool {
		return len(typingEvents(s)) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestTypingStaleTimerDoesNotKillFreshEntry(t *testing.T) {
	ty, r, s := newTypingFixture(t, 40*time.Millisecond)
	joinConv(t, r, "c1", "alice", "conv1")
	joinConv(t, r, "c2", "bob", "conv1")

	ctx := context.Background()
	require.NoError(t, ty.UserStartedTyping(ctx, "conv1", "alice"))
	require.NoError(t, ty.UserStoppedTyping(ctx, "conv1", "alice"))
	// New entry right after the stop; the first timer may still be pending.
	require.NoError(t, ty.UserStartedTyping(ctx, "conv1", "alice"))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"alice"}, ty.ActiveTypists("conv1"))

	require.Eventually(t, func() bool {
		evs := typingEvents(s)
		return len(evs) == 4 && !evs[3].Typing
	}, time.Second, 5*time.Millisecond)
}

func TestTypingRecreatedEntrySurvivesOldCallback(t *testing.T) {
	ty, r, s := newTypingFixture(t, time.Minute)
	joinConv(t, r, "c1", "alice", "conv1")
	joinConv(t, r, "c2", "bob", "conv1")

	ctx := context.Background()
	require.NoError(t, ty.UserStartedTyping(ctx, "conv1", "alice")) // arms gen 1
	require.NoError(t, ty.UserStoppedTyping(ctx, "conv1", "alice"))
	require.NoError(t, ty.UserStartedTyping(ctx, "conv1", "alice")) // fresh entry, gen 2

	// The first timer's callback may already be running when Stop is
	// called; simulate it firing now. It must not touch the new entry.
	ty.expire("conv1", "alice", 1)

	assert.Equal(t, []string{"alice"}, ty.ActiveTypists("conv1"))
	evs := typingEvents(s)
	require.Len(t, evs, 3)
	assert.True(t, evs[2].Typing)
}

func TestTypingRequiresLiveConnection(t *testing.T) {
	ty, _, s := newTypingFixture(t, time.Minute)

	err := ty.UserStartedTyping(context.Background(), "conv1", "ghost")
	require.Error(t, err)
	assert.True(t, errs.ErrNotFound.Is(err))
	assert.Empty(t, s.snapshot())
}

func TestTypingValidatesArguments(t *testing.T) {
	ty, _, _ := newTypingFixture(t, time.Minute)
	ctx := context.Background()

	assert.True(t, errs.ErrInvalidArgument.Is(ty.UserStartedTyping(ctx, "", "alice")))
	assert.True(t, errs.ErrInvalidArgument.Is(ty.UserStartedTyping(ctx, "conv1", "")))
	assert.True(t, errs.ErrInvalidArgument.Is(ty.UserStoppedTyping(ctx, "", "alice")))
}

func TestTypingClearUser(t *testing.T) {
	ty, r, s := newTypingFixture(t, time.Minute)
	joinConv(t, r, "c1", "alice", "conv1")
	joinConv(t, r, "c1b", "alice", "conv2")
	joinConv(t, r, "c2", "bob", "conv1")
	joinConv(t, r, "c3", "bob", "conv2")

	ctx := context.Background()
	require.NoError(t, ty.UserStartedTyping(ctx, "conv1", "alice"))
	require.NoError(t, ty.UserStartedTyping(ctx, "conv2", "alice"))

	ty.ClearUser(ctx, "alice", []string{"conv1", "conv2", "conv3"})

	assert.Empty(t, ty.ActiveTypists("conv1"))
	assert.Empty(t, ty.ActiveTypists("conv2"))

	var stops int
	for _, p := range typingEvents(s) {
		if !p.Typing {
			stops++
		}
	}
	assert.Equal(t, 2, stops)
}
