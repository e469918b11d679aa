// Package suppress provides the in-progress marker table that keeps a
// trigger handler from re-entering a build its own writes caused.
//
// A caller acquires the key of the operation it is about to run. While the
// marker is held, further acquisitions of the same key fail, so the
// notification fired by the build's own commit is skipped. Markers expire
// after their TTL so a crashed holder cannot block a key for good.
package suppress

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Token is a held marker. Only the holder of a token can release it.
type Token struct {
	Key   string
	Value string
}

// Table is a key-scoped in-progress marker table.
type Table interface {
	// Acquire sets the marker for key unless one is active. ok is false
	// when another holder is active.
	Acquire(ctx context.Context, key string, ttl time.Duration) (tok Token, ok bool, err error)
	// Release drops the marker if tok still holds it.
	Release(ctx context.Context, tok Token) error
}

// =============================================================================
// Memory Table
// =============================================================================

// MemoryTable is a process-local Table.
type MemoryTable struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value   string
	expires time.Time
}

var _ Table = (*MemoryTable)(nil)

// NewMemoryTable creates an empty process-local table.
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryTable) Acquire(_ context.Context, key string, ttl time.Duration) (Token, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[key]; ok && now.Before(e.expires) {
		return Token{}, false, nil
	}
	tok := Token{Key: key, Value: uuid.New().String()}
	m.entries[key] = memoryEntry{value: tok.Value, expires: now.Add(ttl)}
	m.sweep(now)
	return tok, true, nil
}

func (m *MemoryTable) Release(_ context.Context, tok Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[tok.Key]; ok && e.value == tok.Value {
		delete(m.entries, tok.Key)
	}
	return nil
}

// Len returns the number of live markers.
func (m *MemoryTable) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep(m.now())
	return len(m.entries)
}

func (m *MemoryTable) sweep(now time.Time) {
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
		}
	}
}
