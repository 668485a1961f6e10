package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"snapattach/internal/config"
	"snapattach/internal/core"
	"snapattach/internal/logging"
	"snapattach/internal/strategy"
	"snapattach/internal/testctx"
	"snapattach/internal/trace"
	"snapattach/pkg/snapattach"
)

type CLIResult struct {
	ExitCode int
	Outcome  core.OutcomeKind
	TestID   string
	Journal  trace.Journal
}

// ConfigLoader returns the environment configuration Execute starts from.
type ConfigLoader func() (*config.Config, error)

// Run parses args (without argv[0]) and executes them against the
// environment configuration. Invalid invocations never load configuration.
func Run(ctx context.Context, args []string) (CLIResult, error) {
	return RunWithConfig(ctx, args, config.Load)
}

func RunWithConfig(ctx context.Context, args []string, load ConfigLoader) (CLIResult, error) {
	inv, err := ParseInvocation(args)
	if err != nil {
		return CLIResult{ExitCode: ExitCode(err)}, err
	}
	return ExecuteWithConfig(ctx, inv, load)
}

// ExecuteWithConfig compares the actual value against the reference snapshot,
// attaches the resulting artifacts, waits for their delivery and writes the
// journal.
//
// Exit codes: 0 matched, 1 recorded or mismatched, 3 bad configuration or
// unreadable inputs, 4 build failures and panics.
func ExecuteWithConfig(ctx context.Context, inv CLIInvocation, load ConfigLoader) (res CLIResult, execErr error) {
	res.ExitCode = ExitInternalError
	if load == nil {
		return res, fmt.Errorf("nil config loader")
	}

	cfg, err := load()
	if err != nil {
		res.ExitCode = ExitConfigError
		return res, err
	}
	applyOverrides(cfg, inv)
	if err := cfg.Validate(); err != nil {
		res.ExitCode = ExitConfigError
		return res, err
	}
	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: "stderr", Component: "cli"})

	session, err := snapattach.Open(cfg, nil)
	if err != nil {
		res.ExitCode = ExitConfigError
		return res, err
	}

	h := testctx.NewHandle(inv.TestName)
	res.TestID = h.ID()
	ctx = testctx.With(ctx, h)
	loc := core.SourceLocation{
		FileID:   filepath.ToSlash(inv.OriginalActual),
		FilePath: inv.ActualPath,
		Line:     1,
	}

	defer func() {
		if r := recover(); r != nil {
			res.ExitCode = ExitInternalError
			execErr = fmt.Errorf("panic: %v", r)
		}
		// Queued deliveries land before the journal is written.
		h.Wait()
		session.Close()
		res.Journal = session.Journal(inv.RunID)
		if err := writeJournal(inv, res.Journal); err != nil {
			log.WithError(err).Error("Could not write journal", slog.String("path", inv.Journal.Path))
			if execErr == nil {
				res.ExitCode = ExitInternalError
				execErr = err
			}
		}
	}()

	var outcome core.OutcomeKind
	switch inv.Strategy {
	case StrategyImage:
		outcome, err = compareFiles(ctx, session, snapattach.Strategy[image.Image](strategy.Image{}), inv, loadImage, loc)
	case StrategyLines:
		outcome, err = compareFiles(ctx, session, snapattach.Strategy[string](strategy.Lines{}), inv, loadText, loc)
	case StrategyYAML:
		outcome, err = compareFiles(ctx, session, snapattach.Strategy[any](strategy.YAML[any]{}), inv, loadYAML, loc)
	default:
		return res, fmt.Errorf("unknown strategy %q", inv.Strategy)
	}
	res.Outcome = outcome
	if err != nil {
		var inErr *inputError
		if errors.As(err, &inErr) {
			res.ExitCode = ExitConfigError
		} else {
			res.ExitCode = ExitInternalError
		}
		return res, err
	}

	log.Info("Snapshot compared",
		slog.String("test", inv.TestName),
		slog.String("strategy", string(inv.Strategy)),
		slog.String("outcome", string(outcome)))
	res.ExitCode = translateOutcomeToExitCode(outcome)
	return res, nil
}

func applyOverrides(cfg *config.Config, inv CLIInvocation) {
	if inv.Mode != "" {
		cfg.Mode = inv.Mode
	}
	if inv.Sink != "" {
		cfg.Sink = inv.Sink
	}
	if inv.Dir != "" {
		cfg.Dir = inv.Dir
	} else if cfg.Dir != "" && !filepath.IsAbs(cfg.Dir) {
		cfg.Dir = filepath.Join(inv.WorkDir, cfg.Dir)
	}
}

// inputError marks a reference or actual file that could not be read or decoded.
type inputError struct {
	Path string
	Err  error
}

func (e *inputError) Error() string { return fmt.Sprintf("load %s: %v", e.Path, e.Err) }
func (e *inputError) Unwrap() error { return e.Err }

// compareFiles classifies the comparison and attaches its artifacts.
//
// A missing reference is a first recording. Otherwise both values are
// serialized through s and compared byte for byte.
func compareFiles[V any](ctx context.Context, session *snapattach.Session, s snapattach.Strategy[V], inv CLIInvocation, load func(string) (V, error), loc core.SourceLocation) (core.OutcomeKind, error) {
	actual, err := load(inv.ActualPath)
	if err != nil {
		return "", &inputError{Path: inv.ActualPath, Err: err}
	}

	in := snapattach.Input[V]{Actual: actual}
	reference, err := load(inv.ReferencePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		in.Outcome = core.OutcomeRecorded
	case err != nil:
		return "", &inputError{Path: inv.ReferencePath, Err: err}
	default:
		in.Reference = reference
		in.Outcome, err = classify(s, reference, actual)
		if err != nil {
			return "", err
		}
	}

	if err := snapattach.Attach(ctx, session, s, in, loc); err != nil {
		return in.Outcome, err
	}
	return in.Outcome, nil
}

func classify[V any](s snapattach.Strategy[V], reference, actual V) (core.OutcomeKind, error) {
	ref, err := s.Serialize(reference)
	if err != nil {
		return "", fmt.Errorf("serialize reference: %w", err)
	}
	act, err := s.Serialize(actual)
	if err != nil {
		return "", fmt.Errorf("serialize actual: %w", err)
	}
	if bytes.Equal(ref, act) {
		return core.OutcomeMatched, nil
	}
	return core.OutcomeMismatched, nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

func loadText(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func loadYAML(path string) (any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v any
	if err := yaml.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func translateOutcomeToExitCode(o core.OutcomeKind) int {
	switch o {
	case core.OutcomeMatched:
		return ExitMatched
	case core.OutcomeRecorded, core.OutcomeMismatched:
		return ExitSnapshotFailure
	default:
		return ExitInternalError
	}
}

func writeJournal(inv CLIInvocation, j trace.Journal) error {
	if !inv.Journal.Enabled {
		return nil
	}
	if err := j.Validate(); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	b, err := j.CanonicalJSON()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(inv.Journal.Path), 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}
	return writeFileAtomic(inv.Journal.Path, b, 0o644)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
