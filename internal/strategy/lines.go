package strategy

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
)

const (
	patchFrom    = "reference"
	patchTo      = "failure"
	patchContext = 3
)

// Lines snapshots strings line by line; mismatches render as a unified diff.
type Lines struct{}

func (Lines) Kind() Kind        { return KindPatch }
func (Lines) Extension() string { return "txt" }

func (Lines) Serialize(s string) ([]byte, error) {
	return []byte(s), nil
}

func (Lines) RenderDifference(reference, failure string) ([]byte, error) {
	return unifiedPatch(reference, failure)
}

// unifiedPatch returns a unified diff of a against b. When the texts are equal
// the result is the bare file header, so a patch is never empty.
func unifiedPatch(a, b string) ([]byte, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: patchFrom,
		ToFile:   patchTo,
		Context:  patchContext,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return nil, fmt.Errorf("unified diff: %w", err)
	}
	if text == "" {
		text = fmt.Sprintf("--- %s\n+++ %s\n", patchFrom, patchTo)
	}
	return []byte(text), nil
}
