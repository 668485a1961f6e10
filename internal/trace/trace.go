package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Journal is the canonical record of what happened to each attachment in a run.
//
// Invariants:
//   - Captures RunID and an ordered list of events.
//   - Records decisions (skipped, queued, delivered, failed), not payload bytes.
//   - Contains no timestamps, so the same decisions always hash the same.
//
// Canonical representation:
//   - Events are sorted via Canonicalize() using a fully-specified ordering.
//   - JSON serialization uses a custom marshaler to fix field order and omit absent optional fields.
//
// The journal is observational only and must never affect delivery.
type Journal struct {
	RunID  string
	Events []Event
}

// EventKind is the stable discriminator for Event.
// The string values are part of the journal's canonical bytes; do not rename.
type EventKind string

const (
	EventAttachmentSkipped   EventKind = "AttachmentSkipped"
	EventAttachmentQueued    EventKind = "AttachmentQueued"
	EventAttachmentDelivered EventKind = "AttachmentDelivered"
	EventAttachmentFailed    EventKind = "AttachmentFailed"
)

// Event is a single recording decision.
//
// Determinism constraints:
//   - No timestamps.
//   - Reason is a stable code, never a raw error string.
type Event struct {
	Kind EventKind

	// TestID identifies the test the attachment was attributed to. Empty for
	// skipped attachments, which by definition had no test.
	TestID string

	// Name is the attachment name, possibly empty.
	Name string

	// Location is the assertion call site in file:line form.
	Location string

	// Reason is a stable code such as "NoTestContext" or "SinkError".
	Reason string
}

// Validate checks basic invariants and returns a descriptive error.
func (j *Journal) Validate() error {
	if j == nil {
		return errors.New("journal is nil")
	}
	if j.RunID == "" {
		return errors.New("runId is required")
	}
	for i := range j.Events {
		e := j.Events[i]
		if e.Kind == "" {
			return fmt.Errorf("events[%d].kind is required", i)
		}
		if e.Kind != EventAttachmentSkipped && e.TestID == "" {
			return fmt.Errorf("events[%d].testId is required for kind %q", i, e.Kind)
		}
		if e.Location == "" {
			return fmt.Errorf("events[%d].location is required", i)
		}
	}
	return nil
}

// Canonicalize sorts the journal into its canonical form.
//
// Ordering is independent of delivery timing: TestID first, then location,
// name, kind and reason.
func (j *Journal) Canonicalize() {
	if j == nil {
		return
	}
	sort.SliceStable(j.Events, func(a, b int) bool {
		x := j.Events[a]
		y := j.Events[b]

		if x.TestID != y.TestID {
			return x.TestID < y.TestID
		}
		if x.Location != y.Location {
			return x.Location < y.Location
		}
		if x.Name != y.Name {
			return x.Name < y.Name
		}
		if kindOrder(x.Kind) != kindOrder(y.Kind) {
			return kindOrder(x.Kind) < kindOrder(y.Kind)
		}
		return x.Reason < y.Reason
	})
}

func kindOrder(k EventKind) int {
	switch k {
	case EventAttachmentSkipped:
		return 10
	case EventAttachmentQueued:
		return 20
	case EventAttachmentDelivered:
		return 30
	case EventAttachmentFailed:
		return 40
	default:
		return 1000
	}
}

// Count returns how many events of kind k the journal holds.
func (j Journal) Count(k EventKind) int {
	n := 0
	for _, e := range j.Events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// CanonicalJSON returns the canonical JSON encoding of the journal.
// It canonicalizes a copy to avoid mutating the caller's slice.
func (j Journal) CanonicalJSON() ([]byte, error) {
	cp := Journal{RunID: j.RunID}
	cp.Events = make([]Event, len(j.Events))
	copy(cp.Events, j.Events)
	cp.Canonicalize()
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(&cp)
}

// Hash returns the deterministic journal hash (blake3 hex) of the canonical JSON bytes.
func (j Journal) Hash() (string, error) {
	b, err := j.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return ComputeJournalHash(b), nil
}

// MarshalJSON ensures canonical field ordering and omission rules.
func (j Journal) MarshalJSON() ([]byte, error) {
	if j.RunID == "" {
		return nil, errors.New("runId is required")
	}
	var buf bytes.Buffer
	buf.WriteString(`{"runId":`)
	rb, _ := json.Marshal(j.RunID)
	buf.Write(rb)

	buf.WriteString(`,"events":[`)
	for i := range j.Events {
		if i > 0 {
			buf.WriteByte(',')
		}
		eb, err := json.Marshal(j.Events[i])
		if err != nil {
			return nil, err
		}
		buf.Write(eb)
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

// MarshalJSON ensures canonical field ordering and omission of empty optional fields.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Kind == "" {
		return nil, errors.New("kind is required")
	}
	var buf bytes.Buffer
	buf.WriteByte('{')

	writeField(&buf, "kind", string(e.Kind), true)
	writeField(&buf, "testId", e.TestID, false)
	writeField(&buf, "name", e.Name, false)
	writeField(&buf, "location", e.Location, false)
	writeField(&buf, "reason", e.Reason, false)

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeField(buf *bytes.Buffer, key, value string, first bool) {
	if value == "" && !first {
		return
	}
	if !first {
		buf.WriteByte(',')
	}
	kb, _ := json.Marshal(key)
	vb, _ := json.Marshal(value)
	buf.Write(kb)
	buf.WriteByte(':')
	buf.Write(vb)
}
