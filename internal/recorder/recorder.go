// Package recorder delivers artifacts to the report sink of the test that
// produced them.
//
// Record is the only operation the assertion layer uses. It resolves the
// current test synchronously, binds the artifact to the assertion's source
// location, and hands it to one of two delivery variants chosen when the
// Recorder is built:
//
//   - queued: the delivery is submitted to a process-owned worker Queue and
//     Record returns at once. The test handle tracks the delivery, so a host
//     that waits on the handle (see testctx.ForTest) sees it land before the
//     test is reported.
//   - blocking: the delivery runs on the caller's goroutine before Record
//     returns.
//
// Delivery failures never reach the caller. They are logged, journaled and
// counted.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"snapattach/internal/core"
	"snapattach/internal/logging"
	"snapattach/internal/metrics"
	"snapattach/internal/report"
	"snapattach/internal/testctx"
	"snapattach/internal/trace"
)

// Mode selects the delivery variant.
type Mode string

const (
	ModeQueued   Mode = "queued"
	ModeBlocking Mode = "blocking"
	// ModeDisabled turns every Record into a no-op, as on a runner without an
	// attachment facility.
	ModeDisabled Mode = "disabled"
)

// ParseMode maps a config value to a Mode. Empty means queued.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeQueued, nil
	case ModeQueued, ModeBlocking, ModeDisabled:
		return m, nil
	default:
		return "", fmt.Errorf("unknown delivery mode %q", s)
	}
}

// State is the outcome of one Record call.
type State string

const (
	StateNoOp      State = "noop"
	StateQueued    State = "queued"
	StateDelivered State = "delivered"
	StateFailed    State = "failed"
)

// Stable journal reason codes.
const (
	ReasonNoTestContext   = "NoTestContext"
	ReasonInvalidArtifact = "InvalidArtifact"
	ReasonSinkError       = "SinkError"
	ReasonSinkPanic       = "SinkPanic"
)

var errSinkPanic = errors.New("sink panicked")

// delivery is the runner capability a Recorder is built around.
type delivery interface {
	deliver(ctx context.Context, h *testctx.Handle, a core.Artifact) State
}

// Recorder is safe for concurrent use by parallel tests. It holds no
// per-test state: every Record call works only with its own artifact and the
// handle it resolved.
type Recorder struct {
	mode     Mode
	sink     report.Sink
	resolver testctx.Resolver
	delivery delivery
	queue    *Queue

	journal trace.Sink
	metrics *metrics.Metrics
	log     *logging.Logger
}

type options struct {
	resolver   testctx.Resolver
	journal    trace.Sink
	metrics    *metrics.Metrics
	log        *logging.Logger
	workers    int
	queueDepth int
}

// Option customizes a Recorder.
type Option func(*options)

// WithResolver replaces the default testctx.Ambient resolver.
func WithResolver(r testctx.Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithJournal records every decision on s.
func WithJournal(s trace.Sink) Option {
	return func(o *options) { o.journal = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithQueue sizes the worker pool used in queued mode.
func WithQueue(workers, depth int) Option {
	return func(o *options) {
		o.workers = workers
		o.queueDepth = depth
	}
}

// New builds a Recorder delivering to sink.
func New(mode Mode, sink report.Sink, opts ...Option) (*Recorder, error) {
	if sink == nil {
		return nil, report.ErrNilSink
	}
	o := options{
		resolver:   testctx.Ambient{},
		journal:    trace.NopSink{},
		workers:    4,
		queueDepth: 64,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logging.Discard()
	}
	if o.resolver == nil {
		o.resolver = testctx.Ambient{}
	}

	r := &Recorder{
		mode:     mode,
		sink:     sink,
		resolver: o.resolver,
		journal:  o.journal,
		metrics:  o.metrics,
		log:      o.log,
	}
	switch mode {
	case ModeQueued:
		r.queue = NewQueue(o.workers, o.queueDepth)
		r.delivery = queuedDelivery{r: r, queue: r.queue}
	case ModeBlocking:
		r.delivery = blockingDelivery{r: r}
	case ModeDisabled:
		r.resolver = testctx.Unsupported{}
		r.delivery = blockingDelivery{r: r}
	default:
		return nil, fmt.Errorf("unknown delivery mode %q", mode)
	}
	return r, nil
}

func (r *Recorder) Mode() Mode { return r.mode }

// Record attaches payload, under the optional name, to the test active on ctx.
//
// loc must be the assertion's call site; it travels with the artifact no
// matter where or when the delivery runs. Record never fails the caller.
func (r *Recorder) Record(ctx context.Context, payload []byte, name string, loc core.SourceLocation) State {
	if ctx == nil {
		ctx = context.Background()
	}
	h, ok := r.resolver.Resolve(ctx)
	if !ok {
		r.log.DebugContext(ctx, "No test context; attachment skipped",
			slog.String("name", name), slog.String("location", locationOrUnknown(loc)))
		r.observe(trace.Event{Kind: trace.EventAttachmentSkipped, Name: name, Location: locationOrUnknown(loc), Reason: ReasonNoTestContext}, StateNoOp)
		return StateNoOp
	}

	a := core.NewArtifact(name, payload, loc)
	if err := a.Validate(); err != nil {
		r.log.WithTest(h.ID(), h.Name()).WithError(err).WarnContext(ctx, "Invalid attachment dropped",
			slog.String("name", name))
		r.observe(trace.Event{Kind: trace.EventAttachmentFailed, TestID: h.ID(), Name: name, Location: locationOrUnknown(loc), Reason: ReasonInvalidArtifact}, StateFailed)
		return StateFailed
	}
	return r.delivery.deliver(ctx, h, a)
}

// Close drains queued deliveries. Record must not be called afterwards in
// queued mode; late records are delivered on their own goroutine.
func (r *Recorder) Close() {
	if r.queue != nil {
		r.queue.Close()
	}
}

type blockingDelivery struct {
	r *Recorder
}

func (d blockingDelivery) deliver(ctx context.Context, h *testctx.Handle, a core.Artifact) State {
	return d.r.attach(ctx, h, a)
}

type queuedDelivery struct {
	r     *Recorder
	queue *Queue
}

func (d queuedDelivery) deliver(ctx context.Context, h *testctx.Handle, a core.Artifact) State {
	done := h.Track()
	// The delivery may run after the caller's context is cancelled.
	ctx = context.WithoutCancel(ctx)
	job := func() {
		defer done()
		d.r.attach(ctx, h, a)
	}

	d.r.observe(trace.Event{Kind: trace.EventAttachmentQueued, TestID: h.ID(), Name: a.Name, Location: a.Location.String()}, StateQueued)
	if !d.queue.Submit(job) {
		go job()
	}
	return StateQueued
}

// attach calls the sink once and records the result.
func (r *Recorder) attach(ctx context.Context, h *testctx.Handle, a core.Artifact) State {
	err := r.callSink(ctx, h, a)
	ev := trace.Event{TestID: h.ID(), Name: a.Name, Location: a.Location.String()}
	if err != nil {
		ev.Kind = trace.EventAttachmentFailed
		ev.Reason = ReasonSinkError
		if errors.Is(err, errSinkPanic) {
			ev.Reason = ReasonSinkPanic
		}
		r.log.WithTest(h.ID(), h.Name()).WithError(err).WarnContext(ctx, "Attachment delivery failed",
			slog.String("name", a.Name), slog.String("location", a.Location.String()))
		r.observe(ev, StateFailed)
		return StateFailed
	}
	ev.Kind = trace.EventAttachmentDelivered
	r.observe(ev, StateDelivered)
	r.metrics.ObserveBytes(len(a.Payload))
	return StateDelivered
}

func (r *Recorder) callSink(ctx context.Context, h *testctx.Handle, a core.Artifact) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", errSinkPanic, p)
		}
	}()
	return r.sink.Attach(ctx, h.Ref(), a)
}

func (r *Recorder) observe(ev trace.Event, state State) {
	trace.SafeRecord(r.journal, ev)
	r.metrics.ObserveState(string(state))
}

func locationOrUnknown(loc core.SourceLocation) string {
	if err := loc.Validate(); err != nil {
		return "unknown"
	}
	return loc.String()
}
