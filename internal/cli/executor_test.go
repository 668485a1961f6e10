package cli

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapattach/internal/config"
	"snapattach/internal/core"
	"snapattach/internal/report"
	"snapattach/internal/trace"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writePNG(t *testing.T, path string, c color.Color) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 50, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func staticConfig(mode string) ConfigLoader {
	return func() (*config.Config, error) {
		cfg := config.Default()
		cfg.Mode = mode
		cfg.Sink = config.SinkDir
		return cfg, nil
	}
}

func invocation(t *testing.T, workDir string, args ...string) CLIInvocation {
	t.Helper()
	inv, err := ParseInvocation(append([]string{"--workdir", workDir, "--dir", "attachments"}, args...))
	require.NoError(t, err)
	return inv
}

func loadStored(t *testing.T, workDir, testID string) []report.Stored {
	t.Helper()
	ds, err := report.NewDirSink(filepath.Join(workDir, "attachments"), report.CodecNone)
	require.NoError(t, err)
	stored, err := ds.Load(testID)
	require.NoError(t, err)
	return stored
}

func TestExecute_LinesMismatchAttachesPatch(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, "ref.txt"), "Line 1\nLine 2\nLine 3")
	writeFile(t, filepath.Join(workDir, "act.txt"), "Line 1\nLine 2 Changed\nLine 3\nLine 4")

	inv := invocation(t, workDir, "--strategy", "lines", "--reference", "ref.txt", "--actual", "act.txt", "--journal", "journal.json")
	res, err := ExecuteWithConfig(context.Background(), inv, staticConfig(config.ModeQueued))
	require.NoError(t, err)
	assert.Equal(t, ExitSnapshotFailure, res.ExitCode)
	assert.Equal(t, core.OutcomeMismatched, res.Outcome)

	stored := loadStored(t, workDir, res.TestID)
	require.Len(t, stored, 1)
	assert.Equal(t, "difference.patch", stored[0].Manifest.Name)
	assert.Contains(t, string(stored[0].Payload), "+Line 2 Changed")
	assert.Equal(t, "act.txt", stored[0].Manifest.FileID)

	raw, err := os.ReadFile(filepath.Join(workDir, "journal.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"runId":"local"`)
	assert.Equal(t, 1, res.Journal.Count(trace.EventAttachmentDelivered))
}

func TestExecute_ImageMismatchAttachesThree(t *testing.T) {
	workDir := t.TempDir()
	writePNG(t, filepath.Join(workDir, "ref.png"), color.RGBA{R: 255, A: 255})
	writePNG(t, filepath.Join(workDir, "act.png"), color.RGBA{B: 255, A: 255})

	inv := invocation(t, workDir, "--strategy", "image", "--reference", "ref.png", "--actual", "act.png")
	res, err := ExecuteWithConfig(context.Background(), inv, staticConfig(config.ModeBlocking))
	require.NoError(t, err)
	assert.Equal(t, ExitSnapshotFailure, res.ExitCode)

	stored := loadStored(t, workDir, res.TestID)
	require.Len(t, stored, 3)
	assert.Equal(t, "reference", stored[0].Manifest.Name)
	assert.Equal(t, "failure", stored[1].Manifest.Name)
	assert.Equal(t, "difference", stored[2].Manifest.Name)
}

func TestExecute_MatchedAttachesNothing(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, "ref.yaml"), "b: 2\na: 1\n")
	writeFile(t, filepath.Join(workDir, "act.yaml"), "a: 1\nb: 2\n")

	inv := invocation(t, workDir, "--strategy", "yaml", "--reference", "ref.yaml", "--actual", "act.yaml")
	res, err := ExecuteWithConfig(context.Background(), inv, staticConfig(config.ModeQueued))
	require.NoError(t, err)
	assert.Equal(t, ExitMatched, res.ExitCode)
	assert.Equal(t, core.OutcomeMatched, res.Outcome)
	assert.Empty(t, loadStored(t, workDir, res.TestID))
	assert.Empty(t, res.Journal.Events)
}

func TestExecute_MissingReferenceIsRecorded(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, "act.txt"), "first run")

	inv := invocation(t, workDir, "--strategy", "lines", "--reference", "missing.txt", "--actual", "act.txt")
	res, err := ExecuteWithConfig(context.Background(), inv, staticConfig(config.ModeQueued))
	require.NoError(t, err)
	assert.Equal(t, ExitSnapshotFailure, res.ExitCode)
	assert.Equal(t, core.OutcomeRecorded, res.Outcome)

	stored := loadStored(t, workDir, res.TestID)
	require.Len(t, stored, 1)
	assert.Equal(t, "recorded", stored[0].Manifest.Name)
	assert.Equal(t, []byte("first run"), stored[0].Payload)
}

func TestExecute_EmptyActualIsRecorded(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, "act.txt"), "")

	inv := invocation(t, workDir, "--strategy", "lines", "--reference", "missing.txt", "--actual", "act.txt")
	res, err := ExecuteWithConfig(context.Background(), inv, staticConfig(config.ModeBlocking))
	require.NoError(t, err)
	assert.Equal(t, ExitSnapshotFailure, res.ExitCode)
	assert.Equal(t, core.OutcomeRecorded, res.Outcome)

	stored := loadStored(t, workDir, res.TestID)
	require.Len(t, stored, 1)
	assert.Equal(t, "recorded", stored[0].Manifest.Name)
	assert.Zero(t, stored[0].Manifest.Size)
	assert.Empty(t, stored[0].Payload)
}

func TestExecute_UnreadableActualIsConfigError(t *testing.T) {
	workDir := t.TempDir()
	inv := invocation(t, workDir, "--strategy", "lines", "--reference", "ref.txt", "--actual", "nope.txt")
	res, err := ExecuteWithConfig(context.Background(), inv, staticConfig(config.ModeQueued))
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, res.ExitCode)
}

func TestExecute_CorruptImageIsConfigError(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, "act.png"), "not a png")
	inv := invocation(t, workDir, "--strategy", "image", "--reference", "ref.png", "--actual", "act.png")
	res, err := ExecuteWithConfig(context.Background(), inv, staticConfig(config.ModeQueued))
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, res.ExitCode)
}

func TestExecute_ConfigErrors(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, "act.txt"), "x")
	inv := invocation(t, workDir, "--strategy", "lines", "--reference", "r.txt", "--actual", "act.txt")

	res, err := ExecuteWithConfig(context.Background(), inv, func() (*config.Config, error) {
		return nil, errors.New("bad env")
	})
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, res.ExitCode)

	res, err = ExecuteWithConfig(context.Background(), inv, func() (*config.Config, error) {
		cfg := config.Default()
		cfg.Workers = 0
		return cfg, nil
	})
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, res.ExitCode)
}

func TestExecute_DisabledModeStillClassifies(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, "ref.txt"), "a")
	writeFile(t, filepath.Join(workDir, "act.txt"), "b")

	inv := invocation(t, workDir, "--strategy", "lines", "--reference", "ref.txt", "--actual", "act.txt", "--mode", "disabled", "--journal", "j.json")
	res, err := ExecuteWithConfig(context.Background(), inv, staticConfig(config.ModeQueued))
	require.NoError(t, err)
	assert.Equal(t, ExitSnapshotFailure, res.ExitCode)
	assert.Empty(t, loadStored(t, workDir, res.TestID))
	assert.Equal(t, 1, res.Journal.Count(trace.EventAttachmentSkipped))
}

func TestExecute_JournalIsDeterministic(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, "act.txt"), "x")

	run := func(journal string) string {
		inv := invocation(t, workDir, "--strategy", "lines", "--reference", "ref.txt", "--actual", "act.txt", "--mode", "disabled", "--journal", journal)
		_, err := ExecuteWithConfig(context.Background(), inv, staticConfig(config.ModeQueued))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(workDir, journal))
		require.NoError(t, err)
		return string(b)
	}
	a, b := run("a.json"), run("b.json")
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, `{"runId":"local"`))
}

func TestTranslateOutcomeToExitCode(t *testing.T) {
	assert.Equal(t, ExitMatched, translateOutcomeToExitCode(core.OutcomeMatched))
	assert.Equal(t, ExitSnapshotFailure, translateOutcomeToExitCode(core.OutcomeRecorded))
	assert.Equal(t, ExitSnapshotFailure, translateOutcomeToExitCode(core.OutcomeMismatched))
	assert.Equal(t, ExitInternalError, translateOutcomeToExitCode(""))
}

func TestRunWithConfig_InvalidArgsSkipConfig(t *testing.T) {
	called := false
	res, err := RunWithConfig(context.Background(), []string{"--strategy", "lines"}, func() (*config.Config, error) {
		called = true
		return config.Default(), nil
	})
	require.Error(t, err)
	assert.Equal(t, ExitInvalidInvocation, res.ExitCode)
	assert.False(t, called)
}

func TestRunWithConfig_ParsesAndExecutes(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, "ref.txt"), "same")
	writeFile(t, filepath.Join(workDir, "act.txt"), "same")

	res, err := RunWithConfig(context.Background(), []string{
		"--workdir", workDir, "--dir", "attachments", "-s", "lines", "-r", "ref.txt", "-a", "act.txt",
	}, staticConfig(config.ModeBlocking))
	require.NoError(t, err)
	assert.Equal(t, ExitMatched, res.ExitCode)
	assert.Equal(t, core.OutcomeMatched, res.Outcome)
	assert.NotEmpty(t, res.TestID)
}
