package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryReceiptsUnknownKeyIsZero(t *testing.T) {
	s := NewMemoryReceipts()
	ts, err := s.GetLastRead(context.Background(), "alice", "conv1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), ts)
}

func TestMemoryReceiptsSetMax(t *testing.T) {
	s := NewMemoryReceipts()
	ctx := context.Background()

	stored, err := s.SetMaxLastRead(ctx, "alice", "conv1", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), stored)

	stored, err = s.SetMaxLastRead(ctx, "alice", "conv1", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(100), stored)

	stored, err = s.SetMaxLastRead(ctx, "alice", "conv1", 200)
	require.NoError(t, err)
	assert.Equal(t, int64(200), stored)

	ts, err := s.GetLastRead(ctx, "alice", "conv1")
	require.NoError(t, err)
	assert.Equal(t, int64(200), ts)
}

func TestMemoryReceiptsKeysAreIndependent(t *testing.T) {
	s := NewMemoryReceipts()
	ctx := context.Background()

	_, err := s.SetMaxLastRead(ctx, "alice", "conv1", 100)
	require.NoError(t, err)
	_, err = s.SetMaxLastRead(ctx, "alice", "conv2", 200)
	require.NoError(t, err)
	_, err = s.SetMaxLastRead(ctx, "bob", "conv1", 300)
	require.NoError(t, err)

	for _, tc := range []struct {
		user, conv string
		want       int64
	}{
		{"alice", "conv1", 100},
		{"alice", "conv2", 200},
		{"bob", "conv1", 300},
		{"bob", "conv2", 0},
	} {
		ts, err := s.GetLastRead(ctx, tc.user, tc.conv)
		require.NoError(t, err)
		assert.Equal(t, tc.want, ts, "%s/%s", tc.user, tc.conv)
	}
}

func TestMemoryReceiptsConcurrentWritersConverge(t *testing.T) {
	s := NewMemoryReceipts()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(ts int64) {
			defer wg.Done()
			_, _ = s.SetMaxLastRead(ctx, "alice", "conv1", ts)
		}(int64(i))
	}
	wg.Wait()

	ts, err := s.GetLastRead(ctx, "alice", "conv1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), ts)
}
