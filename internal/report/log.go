package report

import (
	"context"
	"log/slog"

	"snapattach/internal/core"
	"snapattach/internal/logging"
)

// LogSink writes one log line per attachment. It never fails.
type LogSink struct {
	Log *logging.Logger
}

func (s LogSink) Attach(ctx context.Context, test core.TestRef, a core.Artifact) error {
	if s.Log == nil {
		return nil
	}
	s.Log.InfoContext(ctx, "Attached",
		slog.String("test", test.Name),
		slog.String("test_id", test.ID),
		slog.String("name", a.Name),
		slog.Int("bytes", len(a.Payload)),
		slog.String("location", a.Location.String()),
	)
	return nil
}
