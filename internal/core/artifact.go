package core

import "fmt"

// OutcomeKind classifies a snapshot comparison.
//
// The string values appear in journals and CLI output; do not rename.
type OutcomeKind string

const (
	// OutcomeRecorded is a first-time write; the artifact is the recorded value.
	OutcomeRecorded OutcomeKind = "recorded"
	// OutcomeMatched produces no artifacts.
	OutcomeMatched OutcomeKind = "matched"
	// OutcomeMismatched produces reference/failure/difference, or a single patch.
	OutcomeMismatched OutcomeKind = "mismatched"
)

// Valid reports whether k is one of the known outcome kinds.
func (k OutcomeKind) Valid() bool {
	switch k {
	case OutcomeRecorded, OutcomeMatched, OutcomeMismatched:
		return true
	default:
		return false
	}
}

// Payload is a suggested artifact name and the bytes regenerated for it.
type Payload struct {
	Name string
	Data []byte
}

// Artifact is a named binary payload attributed to an assertion call site.
//
// Name is optional; an empty Name means the runner picks one.
type Artifact struct {
	Name     string
	Payload  []byte
	Location SourceLocation
}

// NewArtifact binds a payload to a location. The payload is copied so the
// artifact stays immutable if the caller reuses its buffer.
func NewArtifact(name string, payload []byte, loc SourceLocation) Artifact {
	data := make([]byte, len(payload))
	copy(data, payload)
	return Artifact{Name: name, Payload: data, Location: loc}
}

// Validate checks the source location. An empty payload is valid: recording
// "" as a first snapshot produces one.
func (a Artifact) Validate() error {
	if err := a.Location.Validate(); err != nil {
		return fmt.Errorf("location: %w", err)
	}
	return nil
}

// TestRef identifies one test invocation to a report sink.
type TestRef struct {
	ID   string
	Name string
}
