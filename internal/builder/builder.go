// Package builder regenerates artifact payloads from the values a snapshot
// assertion compared.
//
// Rich attachment objects handed to a runner cannot be read back, so every
// payload is rebuilt from the source values through the assertion's strategy.
// Build is pure: it never talks to a runner, and identical inputs always give
// byte-identical payloads.
package builder

import (
	"snapattach/internal/core"
	"snapattach/internal/strategy"
)

// Artifact names. These show up in test reports; do not rename.
const (
	NameRecorded   = "recorded"
	NameReference  = "reference"
	NameFailure    = "failure"
	NameDifference = "difference"
	NamePatch      = "difference.patch"
)

// Input is what the comparison layer knows after classifying a snapshot.
//
// Reference is ignored for Recorded outcomes, where no reference exists yet.
type Input[V any] struct {
	Outcome   core.OutcomeKind
	Reference V
	Actual    V
}

// Build returns the ordered payloads warranted by in.Outcome.
//
//   - Matched: nil, and the strategy is never called.
//   - Recorded: one "recorded" payload holding the actual value.
//   - Mismatched, image strategy: "reference", "failure", "difference".
//   - Mismatched, patch strategy: one "difference.patch".
//
// Any serialization failure is returned as a *BuildError, and so is an empty
// mismatch payload; an artifact is never silently dropped. A recorded payload
// may be empty, since "" is a valid first snapshot.
func Build[V any](s strategy.Strategy[V], in Input[V]) ([]core.Payload, error) {
	if !in.Outcome.Valid() {
		return nil, unsupportedf("unknown outcome %q", in.Outcome)
	}
	if in.Outcome == core.OutcomeMatched {
		return nil, nil
	}
	if s == nil {
		return nil, unsupportedf("nil strategy")
	}

	if in.Outcome == core.OutcomeRecorded {
		data, err := s.Serialize(in.Actual)
		if err != nil {
			return nil, buildErr(ErrSerialize, NameRecorded, err)
		}
		if data == nil {
			data = []byte{}
		}
		return []core.Payload{{Name: NameRecorded, Data: data}}, nil
	}

	switch s.Kind() {
	case strategy.KindImage:
		ref, err := serialize(s, NameReference, in.Reference)
		if err != nil {
			return nil, err
		}
		fail, err := serialize(s, NameFailure, in.Actual)
		if err != nil {
			return nil, err
		}
		diff, err := render(s, NameDifference, in.Reference, in.Actual)
		if err != nil {
			return nil, err
		}
		return []core.Payload{ref, fail, diff}, nil

	case strategy.KindPatch:
		patch, err := render(s, NamePatch, in.Reference, in.Actual)
		if err != nil {
			return nil, err
		}
		return []core.Payload{patch}, nil

	default:
		return nil, unsupportedf("strategy kind %s", s.Kind())
	}
}

func serialize[V any](s strategy.Strategy[V], name string, v V) (core.Payload, error) {
	data, err := s.Serialize(v)
	if err != nil {
		return core.Payload{}, buildErr(ErrSerialize, name, err)
	}
	if len(data) == 0 {
		return core.Payload{}, buildErr(ErrEmptyPayload, name, nil)
	}
	return core.Payload{Name: name, Data: data}, nil
}

func render[V any](s strategy.Strategy[V], name string, reference, failure V) (core.Payload, error) {
	data, err := s.RenderDifference(reference, failure)
	if err != nil {
		return core.Payload{}, buildErr(ErrRender, name, err)
	}
	if len(data) == 0 {
		return core.Payload{}, buildErr(ErrEmptyPayload, name, nil)
	}
	return core.Payload{Name: name, Data: data}, nil
}
