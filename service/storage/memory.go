package storage

import (
	"context"
	"sync"
)

// MemoryReceipts is the single-node ReceiptStore: a mutex-guarded map of
// user -> conversation -> last-read watermark. Entries are created lazily
// on first mark-read and live for the process lifetime.
type MemoryReceipts struct {
	mu     sync.Mutex
	byUser map[string]map[string]int64
}

func NewMemoryReceipts() *MemoryReceipts {
	return &MemoryReceipts{byUser: make(map[string]map[string]int64)}
}

func (s *MemoryReceipts) GetLastRead(_ context.Context, userID, conversationID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byUser[userID][conversationID], nil
}

// SetMaxLastRead applies ts only when strictly greater than the stored
// value, so concurrent writers converge to the maximum.
func (s *MemoryReceipts) SetMaxLastRead(_ context.Context, userID, conversationID string, ts int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.byUser[userID]
	if m == nil {
		m = make(map[string]int64)
		s.byUser[userID] = m
	}
	if ts > m[conversationID] {
		m[conversationID] = ts
	}
	return m[conversationID], nil
}
