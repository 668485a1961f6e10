// Package report holds the reporting back-ends attachments are delivered to.
//
// A Sink plays the part of the host runner's "attach payload to the current
// test" primitive. The recorder never surfaces Sink errors to tests; they are
// logged and counted.
package report

import (
	"context"
	"errors"

	"snapattach/internal/core"
)

// Sink persists or displays one attachment for one test.
//
// Implementations must be safe for concurrent use: parallel tests deliver
// through the same sink.
type Sink interface {
	Attach(ctx context.Context, test core.TestRef, a core.Artifact) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, test core.TestRef, a core.Artifact) error

func (f SinkFunc) Attach(ctx context.Context, test core.TestRef, a core.Artifact) error {
	return f(ctx, test, a)
}

// MultiSink delivers to every sink in order and joins their errors.
type MultiSink []Sink

func (m MultiSink) Attach(ctx context.Context, test core.TestRef, a core.Artifact) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Attach(ctx, test, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ErrNilSink is returned by helpers that require a sink.
var ErrNilSink = errors.New("sink is nil")
