// Package snapattach is the entry point for snapshot assertions that want to
// attach reference, failure and difference artifacts to the running test.
//
//	s, err := snapattach.Open(cfg, nil)
//	...
//	ctx, _ := snapattach.ForTest(t)
//	err = snapattach.Attach(ctx, s, strategy.Image{}, snapattach.Input[image.Image]{
//		Outcome:   snapattach.Mismatched,
//		Reference: want,
//		Actual:    got,
//	}, snapattach.Here())
//
// Only build errors are returned. Delivery problems are logged and journaled
// but never fail the test.
package snapattach

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"snapattach/internal/builder"
	"snapattach/internal/config"
	"snapattach/internal/core"
	"snapattach/internal/logging"
	"snapattach/internal/metrics"
	"snapattach/internal/recorder"
	"snapattach/internal/report"
	"snapattach/internal/strategy"
	"snapattach/internal/testctx"
	"snapattach/internal/trace"
)

type (
	Input[V any]    = builder.Input[V]
	Strategy[V any] = strategy.Strategy[V]
	Location        = core.SourceLocation
	Outcome         = core.OutcomeKind
	State           = recorder.State
)

const (
	Recorded   = core.OutcomeRecorded
	Matched    = core.OutcomeMatched
	Mismatched = core.OutcomeMismatched
)

// Session owns one recorder, its sink and its journal.
type Session struct {
	rec     *recorder.Recorder
	sink    report.Sink
	journal *trace.Recorder
	metrics *metrics.Metrics
	log     *logging.Logger
}

// Open builds a Session from cfg. A nil cfg means config.Default(). Metrics
// are registered on reg when it is not nil.
func Open(cfg *config.Config, reg prometheus.Registerer) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logging.New(logging.Config{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		Output:    "stderr",
		Component: "snapattach",
	})

	sink, err := report.Open(cfg, log)
	if err != nil {
		return nil, err
	}
	return NewSession(cfg, sink, reg, log)
}

// NewSession is Open with an explicit sink, for hosts that bring their own
// reporting back-end.
func NewSession(cfg *config.Config, sink report.Sink, reg prometheus.Registerer, log *logging.Logger) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logging.Discard()
	}
	mode, err := recorder.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}
	journal := trace.NewRecorder()
	rec, err := recorder.New(mode, sink,
		recorder.WithJournal(journal),
		recorder.WithMetrics(m),
		recorder.WithLogger(log),
		recorder.WithQueue(cfg.Workers, cfg.QueueDepth),
	)
	if err != nil {
		return nil, fmt.Errorf("recorder: %w", err)
	}
	log.Debug("Session opened", slog.String("mode", string(mode)), slog.String("sink", cfg.Sink))
	return &Session{rec: rec, sink: sink, journal: journal, metrics: m, log: log}, nil
}

func (s *Session) Recorder() *recorder.Recorder { return s.rec }
func (s *Session) Sink() report.Sink            { return s.sink }

// Journal returns the canonical journal of everything recorded so far.
func (s *Session) Journal(runID string) trace.Journal {
	return s.journal.Journal(runID)
}

// TestJournal returns the journal of one test's attachments.
func (s *Session) TestJournal(runID, testID string) trace.Journal {
	return s.journal.ForTest(runID, testID)
}

// Close drains queued deliveries.
func (s *Session) Close() {
	s.rec.Close()
}

// Attach builds the artifacts warranted by in and records each of them at loc.
//
// Matched outcomes attach nothing. A build error is returned before anything
// is recorded, so a broken strategy never produces a partial set.
func Attach[V any](ctx context.Context, s *Session, strat Strategy[V], in Input[V], loc Location) error {
	if s == nil {
		return fmt.Errorf("nil session")
	}
	payloads, err := builder.Build(strat, in)
	if err != nil {
		s.metrics.ObserveBuildError()
		s.log.WithError(err).Error("Could not build attachments", slog.String("location", loc.String()))
		return err
	}
	for _, p := range payloads {
		s.rec.Record(ctx, p.Data, p.Name, loc)
	}
	return nil
}

// ForTest binds the running test to a context. Queued attachments recorded
// with that context are delivered before t finishes.
func ForTest(t testing.TB) (context.Context, *testctx.Handle) {
	t.Helper()
	return testctx.ForTest(t)
}

// Here returns the location of its caller.
func Here() Location {
	return core.Caller(1)
}
