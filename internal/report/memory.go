package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"snapattach/internal/core"
)

// Entry is one attachment as received by a MemorySink.
type Entry struct {
	Test     core.TestRef
	Artifact core.Artifact
}

// MemorySink keeps attachments in memory, keyed by test ID.
type MemorySink struct {
	mu   sync.RWMutex
	data map[string][]Entry
}

func NewMemorySink() *MemorySink {
	return &MemorySink{data: make(map[string][]Entry)}
}

func (s *MemorySink) Attach(_ context.Context, test core.TestRef, a core.Artifact) error {
	if s == nil {
		return fmt.Errorf("sink is nil")
	}
	id := strings.TrimSpace(test.ID)
	if id == "" {
		return fmt.Errorf("test id is required")
	}
	a.Payload = append([]byte(nil), a.Payload...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = append(s.data[id], Entry{Test: test, Artifact: a})
	return nil
}

// Entries returns a copy of the attachments of one test, in arrival order.
func (s *MemorySink) Entries(testID string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.data[testID]
	out := make([]Entry, len(src))
	copy(out, src)
	return out
}

// TestIDs returns the IDs of every test that received an attachment, sorted.
func (s *MemorySink) TestIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for id := range s.data {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the total number of attachments received.
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, entries := range s.data {
		n += len(entries)
	}
	return n
}
