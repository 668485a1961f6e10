package strategy

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAML snapshots arbitrary values as YAML documents. Map keys are emitted in
// sorted order by yaml.v3, which keeps the encoding stable.
type YAML[V any] struct {
	// Indent defaults to 2.
	Indent int
}

func (YAML[V]) Kind() Kind        { return KindPatch }
func (YAML[V]) Extension() string { return "yaml" }

func (y YAML[V]) Serialize(v V) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	indent := y.Indent
	if indent <= 0 {
		indent = 2
	}
	enc.SetIndent(indent)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

func (y YAML[V]) RenderDifference(reference, failure V) ([]byte, error) {
	a, err := y.Serialize(reference)
	if err != nil {
		return nil, fmt.Errorf("reference: %w", err)
	}
	b, err := y.Serialize(failure)
	if err != nil {
		return nil, fmt.Errorf("failure: %w", err)
	}
	return unifiedPatch(string(a), string(b))
}
