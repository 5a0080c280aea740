package presence

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sorted(ss []string) []string {
	out := append([]string(nil), ss...)
	sort.Strings(out)
	return out
}

func TestRegistryAddConnection(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.AddConnection("c1", "alice"))
	require.NoError(t, r.AddConnection("c2", "alice"))
	require.NoError(t, r.AddConnection("c3", "bob"))

	assert.Equal(t, []string{"c1", "c2"}, sorted(r.GetConnectionsForUser("alice")))
	assert.Equal(t, []string{"c3"}, r.GetConnectionsForUser("bob"))
	assert.True(t, r.IsOnline("alice"))
	assert.False(t, r.IsOnline("carol"))

	userID, ok := r.GetUserIDForConnection("c1")
	require.True(t, ok)
	assert.Equal(t, "alice", userID)
}

func TestRegistryAddConnectionValidation(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.AddConnection("", "alice"))
	assert.Error(t, r.AddConnection("c1", ""))
	assert.False(t, r.IsOnline("alice"))
}

func TestRegistryAddConnectionIdempotent(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddConnection("c1", "alice"))
	require.NoError(t, r.AddConnection("c1", "alice"))
	assert.Equal(t, []string{"c1"}, r.GetConnectionsForUser("alice"))
}

func TestRegistryRebindMovesConnection(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddConnection("c1", "alice"))
	require.NoError(t, r.AddConnection("c1", "bob"))

	assert.Empty(t, r.GetConnectionsForUser("alice"))
	assert.False(t, r.IsOnline("alice"))
	assert.Equal(t, []string{"c1"}, r.GetConnectionsForUser("bob"))
}

func TestRegistryConversationSubscriptions(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddConnection("c1", "alice"))
	require.NoError(t, r.AddConnection("c2", "bob"))

	r.AddToConversation("c1", "conv1")
	r.AddToConversation("c2", "conv1")
	r.AddToConversation("c1", "conv2")

	assert.Equal(t, []string{"c1", "c2"}, sorted(r.GetConnectionsForConversation("conv1")))
	assert.Equal(t, []string{"conv1", "conv2"}, sorted(r.GetConversationsForConnection("c1")))

	r.RemoveFromConversation("c1", "conv1")
	assert.Equal(t, []string{"c2"}, r.GetConnectionsForConversation("conv1"))
	assert.Equal(t, []string{"conv2"}, r.GetConversationsForConnection("c1"))
}

func TestRegistrySubscribeUnknownConnection(t *testing.T) {
	r := NewRegistry()
	r.AddToConversation("ghost", "conv1")
	assert.Empty(t, r.GetConnectionsForConversation("conv1"))
}

func TestRegistryRemoveConnection(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddConnection("c1", "alice"))
	require.NoError(t, r.AddConnection("c2", "alice"))
	r.AddToConversation("c1", "conv1")
	r.AddToConversation("c1", "conv2")

	rem, ok := r.RemoveConnection("c1")
	require.True(t, ok)
	assert.Equal(t, "alice", rem.UserID)
	assert.False(t, rem.LastConnection)
	assert.Equal(t, []string{"conv1", "conv2"}, sorted(rem.Conversations))

	assert.Empty(t, r.GetConnectionsForConversation("conv1"))
	assert.Empty(t, r.GetConversationsForConnection("c1"))
	assert.True(t, r.IsOnline("alice"))

	rem, ok = r.RemoveConnection("c2")
	require.True(t, ok)
	assert.True(t, rem.LastConnection)
	assert.False(t, r.IsOnline("alice"))
}

func TestRegistryRemoveUnknownConnection(t *testing.T) {
	r := NewRegistry()
	_, ok := r.RemoveConnection("ghost")
	assert.False(t, ok)
}
