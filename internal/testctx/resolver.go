package testctx

import (
	"context"
	"testing"
)

// handleCtxKey stores the current test handle in a context.
type handleCtxKey struct{}

// With annotates ctx with the handle of the test it runs under.
func With(ctx context.Context, h *Handle) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if h == nil {
		return ctx
	}
	return context.WithValue(ctx, handleCtxKey{}, h)
}

// FromContext extracts the handle (if any) from ctx.
func FromContext(ctx context.Context) (*Handle, bool) {
	if ctx == nil {
		return nil, false
	}
	h, ok := ctx.Value(handleCtxKey{}).(*Handle)
	return h, ok && h != nil
}

// Resolver answers whether a recordable test is active for ctx.
//
// Resolve must be called synchronously, before any asynchronous hand-off.
type Resolver interface {
	Resolve(ctx context.Context) (*Handle, bool)
}

// Ambient resolves the handle threaded through the context by With.
type Ambient struct{}

func (Ambient) Resolve(ctx context.Context) (*Handle, bool) { return FromContext(ctx) }

// Unsupported never finds a test. It stands in for runners without any
// attachment facility, turning every recording into a no-op.
type Unsupported struct{}

func (Unsupported) Resolve(context.Context) (*Handle, bool) { return nil, false }

// ForTest binds a handle to t.
//
// The handle waits for its tracked deliveries in t.Cleanup, so attachments
// queued during the test land before the test is reported as finished. The
// returned context is not cancelled when the test ends: deferred deliveries
// run during cleanup, after t.Context would have been cancelled.
func ForTest(t testing.TB) (context.Context, *Handle) {
	t.Helper()
	h := NewHandle(t.Name())
	t.Cleanup(h.Wait)
	return With(context.Background(), h), h
}
