package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"snapattach/internal/config"
)

const (
	ExitMatched           = 0
	ExitSnapshotFailure   = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

type StrategyName string

const (
	StrategyImage StrategyName = "image"
	StrategyLines StrategyName = "lines"
	StrategyYAML  StrategyName = "yaml"
)

type JournalConfig struct {
	Enabled bool
	Path    string
}

// CLIInvocation is the fully canonicalized description of one comparison.
//
// All paths are normalized (Clean) and all relative paths are resolved relative
// to WorkDir. WorkDir is required and must be absolute, so nothing depends on
// the process current working directory.
//
// Mode, Sink and Dir are optional overrides of the environment configuration.
type CLIInvocation struct {
	WorkDir       string
	Strategy      StrategyName
	ReferencePath string
	ActualPath    string
	TestName      string
	RunID         string
	Mode          string
	Sink          string
	Dir           string
	Journal       JournalConfig

	OriginalReference string
	OriginalActual    string
}

type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// ParseInvocation parses CLI flags into a canonical CLIInvocation. It does not
// read environment variables; those are loaded by Execute.
func ParseInvocation(args []string) (CLIInvocation, error) {
	fs := pflag.NewFlagSet("snapattach", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		workDir     string
		strategy    string
		reference   string
		actual      string
		testName    string
		runID       string
		mode        string
		sink        string
		dir         string
		journalPath string
	)
	fs.StringVar(&workDir, "workdir", "", "Absolute working directory. Required.")
	fs.StringVarP(&strategy, "strategy", "s", "", "Snapshot strategy: image|lines|yaml. Required.")
	fs.StringVarP(&reference, "reference", "r", "", "Reference snapshot path. Required; may not exist yet.")
	fs.StringVarP(&actual, "actual", "a", "", "Actual value path. Required.")
	fs.StringVar(&testName, "test", "snapattach", "Test name the artifacts are attached to.")
	fs.StringVar(&runID, "run-id", "local", "Run identifier written to the journal.")
	fs.StringVar(&mode, "mode", "", "Delivery mode override: queued|blocking|disabled.")
	fs.StringVar(&sink, "sink", "", "Sink override: memory|dir|s3|log.")
	fs.StringVar(&dir, "dir", "", "Directory for the dir sink.")
	fs.StringVar(&journalPath, "journal", "", "Journal output path (optional).")

	if err := fs.Parse(args); err != nil {
		return CLIInvocation{}, invalidInvocationf("%v", err)
	}
	if fs.NArg() != 0 {
		return CLIInvocation{}, invalidInvocationf("unexpected positional arguments: %q", strings.Join(fs.Args(), " "))
	}

	if workDir == "" {
		return CLIInvocation{}, invalidInvocationf("--workdir is required")
	}
	workDir = filepath.Clean(workDir)
	if !filepath.IsAbs(workDir) {
		return CLIInvocation{}, invalidInvocationf("--workdir must be an absolute path (got %q)", workDir)
	}

	parsedStrategy, err := parseStrategy(strategy)
	if err != nil {
		return CLIInvocation{}, err
	}
	if reference == "" {
		return CLIInvocation{}, invalidInvocationf("--reference is required")
	}
	if actual == "" {
		return CLIInvocation{}, invalidInvocationf("--actual is required")
	}
	if strings.TrimSpace(testName) == "" {
		return CLIInvocation{}, invalidInvocationf("--test must not be empty")
	}
	if strings.TrimSpace(runID) == "" {
		return CLIInvocation{}, invalidInvocationf("--run-id must not be empty")
	}
	if err := checkOneOf("--mode", mode, config.ModeQueued, config.ModeBlocking, config.ModeDisabled); err != nil {
		return CLIInvocation{}, err
	}
	if err := checkOneOf("--sink", sink, config.SinkMemory, config.SinkDir, config.SinkS3, config.SinkLog); err != nil {
		return CLIInvocation{}, err
	}

	resolvedReference, err := resolveUnderWorkDir(workDir, reference)
	if err != nil {
		return CLIInvocation{}, err
	}
	resolvedActual, err := resolveUnderWorkDir(workDir, actual)
	if err != nil {
		return CLIInvocation{}, err
	}

	inv := CLIInvocation{
		WorkDir:           workDir,
		Strategy:          parsedStrategy,
		ReferencePath:     resolvedReference,
		ActualPath:        resolvedActual,
		TestName:          testName,
		RunID:             runID,
		Mode:              strings.ToLower(mode),
		Sink:              strings.ToLower(sink),
		OriginalReference: reference,
		OriginalActual:    actual,
	}
	if dir != "" {
		inv.Dir, err = resolveUnderWorkDir(workDir, dir)
		if err != nil {
			return CLIInvocation{}, err
		}
	}
	if strings.TrimSpace(journalPath) != "" {
		resolvedJournal, err := resolveUnderWorkDir(workDir, journalPath)
		if err != nil {
			return CLIInvocation{}, err
		}
		inv.Journal = JournalConfig{Enabled: true, Path: resolvedJournal}
	}
	return inv, nil
}

func parseStrategy(raw string) (StrategyName, error) {
	n := strings.ToLower(strings.TrimSpace(raw))
	switch StrategyName(n) {
	case StrategyImage, StrategyLines, StrategyYAML:
		return StrategyName(n), nil
	case "":
		return "", invalidInvocationf("--strategy is required")
	default:
		return "", invalidInvocationf("invalid --strategy %q (expected image|lines|yaml)", raw)
	}
}

func checkOneOf(flag, value string, allowed ...string) error {
	if value == "" {
		return nil
	}
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return nil
		}
	}
	return invalidInvocationf("invalid %s %q (expected %s)", flag, value, strings.Join(allowed, "|"))
}

func resolveUnderWorkDir(workDir, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", invalidInvocationf("path must not be empty")
	}
	clean := filepath.Clean(p)
	if clean == "." {
		return "", invalidInvocationf("path must not be '.'")
	}
	if filepath.IsAbs(clean) {
		return clean, nil
	}
	return filepath.Clean(filepath.Join(workDir, clean)), nil
}

// ExitCode extracts a semantic exit code from a ParseInvocation error.
// If the error is not a known invocation error, it returns ExitInternalError.
func ExitCode(err error) int {
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	if err == nil {
		return ExitMatched
	}
	return ExitInternalError
}
