// Package trace journals every attachment recording decision.
package trace

import (
	"sort"
	"sync"
)

// Sink receives attachment decisions. Record is observational: it must not
// block delivery, and callers go through SafeRecord so a panicking sink
// cannot fail an assertion.
type Sink interface {
	Record(event Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Record(Event) {}

// SafeRecord hands event to s and swallows any panic from it.
func SafeRecord(s Sink, event Event) {
	if s == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	s.Record(event)
}

// Recorder collects attachment decisions in memory, indexed by test so a
// single test's journal can be pulled out of a shared session.
//
// Skipped events have no test and only appear in the run-wide journal.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	byTest map[string][]int
}

func NewRecorder() *Recorder { return &Recorder{byTest: map[string][]int{}} }

func (r *Recorder) Record(event Event) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byTest == nil {
		r.byTest = map[string][]int{}
	}
	if event.TestID != "" {
		r.byTest[event.TestID] = append(r.byTest[event.TestID], len(r.events))
	}
	r.events = append(r.events, event)
}

// Snapshot returns a copy of every event in arrival order.
func (r *Recorder) Snapshot() []Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Journal returns the canonical run-wide journal.
func (r *Recorder) Journal(runID string) Journal {
	j := Journal{RunID: runID, Events: r.Snapshot()}
	j.Canonicalize()
	return j
}

// ForTest returns the canonical journal of one test's attachments.
func (r *Recorder) ForTest(runID, testID string) Journal {
	j := Journal{RunID: runID}
	if r == nil {
		return j
	}
	r.mu.Lock()
	for _, i := range r.byTest[testID] {
		j.Events = append(j.Events, r.events[i])
	}
	r.mu.Unlock()
	j.Canonicalize()
	return j
}

// Tests lists the IDs of every test that recorded at least one attachment.
func (r *Recorder) Tests() []string {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	ids := make([]string, 0, len(r.byTest))
	for id := range r.byTest {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}
