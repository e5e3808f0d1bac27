package sink

import (
	"context"
	"sync"

	"github.com/JakeFAU/video-trend-crawler/internal/crawler"
)

// Memory keeps entries in process. It backs dry runs and tests.
type Memory struct {
	stamper *Stamper
	mu      sync.RWMutex
	entries []Entry
}

// NewMemory builds an in-memory sink.
func NewMemory(stamper *Stamper) *Memory {
	return &Memory{stamper: stamper}
}

// PushRecord appends record.
func (m *Memory) PushRecord(_ context.Context, record crawler.EnrichedRecord) error {
	entry := m.stamper.Stamp(record)
	m.mu.Lock()
	m.entries = append(m.entries, entry)
	m.mu.Unlock()
	return nil
}

// Entries returns a copy of everything stored so far.
func (m *Memory) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Entry(nil), m.entries...)
}

// Close is a no-op.
func (m *Memory) Close(context.Context) error {
	return nil
}
