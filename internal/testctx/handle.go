// Package testctx resolves the test invocation an attachment belongs to.
//
// A Handle is captured synchronously while the assertion runs and then passed
// explicitly to the delivery step. Nothing in this package relies on implicit
// propagation through goroutines.
package testctx

import (
	"sync"

	"github.com/google/uuid"

	"snapattach/internal/core"
)

// Handle is an opaque reference to one executing test.
//
// Its lifetime is one test invocation. Track and Wait form the completion
// barrier a host runner uses to finish deferred deliveries before the test's
// results are reported.
type Handle struct {
	id   string
	name string

	pending sync.WaitGroup
}

// NewHandle creates a handle with a fresh random ID.
func NewHandle(name string) *Handle {
	return &Handle{id: uuid.NewString(), name: name}
}

func (h *Handle) ID() string   { return h.id }
func (h *Handle) Name() string { return h.name }

// Ref returns the identity handed to report sinks.
func (h *Handle) Ref() core.TestRef {
	return core.TestRef{ID: h.id, Name: h.name}
}

// Track registers one in-flight delivery. The returned func must be called
// exactly once when the delivery ends, successfully or not.
func (h *Handle) Track() (done func()) {
	h.pending.Add(1)
	var once sync.Once
	return func() { once.Do(h.pending.Done) }
}

// Wait blocks until every tracked delivery has finished.
func (h *Handle) Wait() {
	h.pending.Wait()
}
