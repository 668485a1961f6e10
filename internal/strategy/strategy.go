// Package strategy defines how snapshot values become comparable bytes and
// how the difference between two values is rendered.
//
// Comparison itself is not part of this package. A strategy only knows how to
// serialize a value and how to draw the difference once something else has
// decided the values do not match.
package strategy

import "fmt"

// Kind tells the builder which artifacts a mismatch produces.
type Kind int

const (
	// KindImage produces reference, failure and difference images.
	KindImage Kind = iota + 1
	// KindPatch produces a single unified-diff text patch.
	KindPatch
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindPatch:
		return "patch"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Strategy serializes values of type V and renders differences between them.
//
// Implementations must be deterministic: the same value always serializes to
// the same bytes.
type Strategy[V any] interface {
	Kind() Kind

	// Extension is the file extension of serialized values, without a dot.
	Extension() string

	Serialize(v V) ([]byte, error)

	// RenderDifference renders reference against failure. For KindImage it
	// returns encoded image bytes; for KindPatch a textual patch.
	RenderDifference(reference, failure V) ([]byte, error)
}
