package cli

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseInvocation_DeterministicStruct(t *testing.T) {
	workDir := t.TempDir()
	args := []string{
		"--workdir", workDir,
		"--strategy", "Lines",
		"--reference", "snapshots/../ref.txt",
		"--actual", "./out//actual.txt",
		"--dir", "attachments/.",
		"--journal", "journals/../journal.json",
		"--mode", "blocking",
	}

	inv1, err := ParseInvocation(args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inv2, err := ParseInvocation(args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(inv1, inv2) {
		t.Fatalf("expected identical invocations, got\n%#v\n%#v", inv1, inv2)
	}

	if inv1.Strategy != StrategyLines {
		t.Fatalf("strategy not canonicalized: %q", inv1.Strategy)
	}
	if inv1.ReferencePath != filepath.Join(workDir, "ref.txt") {
		t.Fatalf("reference not resolved/canonicalized: %q", inv1.ReferencePath)
	}
	if inv1.ActualPath != filepath.Join(workDir, "out", "actual.txt") {
		t.Fatalf("actual not resolved/canonicalized: %q", inv1.ActualPath)
	}
	if inv1.Dir != filepath.Join(workDir, "attachments") {
		t.Fatalf("dir not resolved/canonicalized: %q", inv1.Dir)
	}
	if !inv1.Journal.Enabled || inv1.Journal.Path != filepath.Join(workDir, "journal.json") {
		t.Fatalf("journal not resolved/canonicalized: %#v", inv1.Journal)
	}
	if inv1.TestName != "snapattach" || inv1.RunID != "local" {
		t.Fatalf("unexpected defaults: %q %q", inv1.TestName, inv1.RunID)
	}
}

func TestParseInvocation_ShortFlags(t *testing.T) {
	workDir := t.TempDir()
	inv, err := ParseInvocation([]string{"--workdir", workDir, "-s", "image", "-r", "ref.png", "-a", "act.png"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.Strategy != StrategyImage || inv.OriginalReference != "ref.png" || inv.OriginalActual != "act.png" {
		t.Fatalf("unexpected invocation: %#v", inv)
	}
	if inv.Journal.Enabled {
		t.Fatalf("journal should be disabled by default")
	}
}

func TestParseInvocation_ResolvesRelativePathsAgainstWorkDir_NotCwd(t *testing.T) {
	workDir := t.TempDir()
	otherCwd := t.TempDir()

	oldCwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldCwd) })

	if err := os.Chdir(otherCwd); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}

	inv, err := ParseInvocation([]string{"--workdir", workDir, "--strategy", "yaml", "--reference", "a.yaml", "--actual", "b.yaml"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.ReferencePath != filepath.Join(workDir, "a.yaml") {
		t.Fatalf("expected reference under workdir, got %q", inv.ReferencePath)
	}
	if inv.ActualPath != filepath.Join(workDir, "b.yaml") {
		t.Fatalf("expected actual under workdir, got %q", inv.ActualPath)
	}
}

func TestParseInvocation_IgnoresEnvironmentVariables(t *testing.T) {
	workDir := t.TempDir()
	args := []string{"--workdir", workDir, "--strategy", "lines", "--reference", "r", "--actual", "a"}

	inv1, err := ParseInvocation(args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Setenv("SNAPATTACH_MODE", "blocking")
	t.Setenv("SNAPATTACH_SINK", "memory")
	t.Setenv("SNAPATTACH_DIR", "/elsewhere")

	inv2, err := ParseInvocation(args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(inv1, inv2) {
		t.Fatalf("expected env vars to not affect parsing, got\n%#v\n%#v", inv1, inv2)
	}
}

func TestParseInvocation_InvalidInvocations(t *testing.T) {
	workDir := t.TempDir()
	cases := map[string][]string{
		"missing workdir":  {"--strategy", "lines", "--reference", "r", "--actual", "a"},
		"relative workdir": {"--workdir", "relative", "--strategy", "lines", "--reference", "r", "--actual", "a"},
		"missing strategy": {"--workdir", workDir, "--reference", "r", "--actual", "a"},
		"bad strategy":     {"--workdir", workDir, "--strategy", "audio", "--reference", "r", "--actual", "a"},
		"missing ref":      {"--workdir", workDir, "--strategy", "lines", "--actual", "a"},
		"missing actual":   {"--workdir", workDir, "--strategy", "lines", "--reference", "r"},
		"bad mode":         {"--workdir", workDir, "--strategy", "lines", "--reference", "r", "--actual", "a", "--mode", "lazy"},
		"bad sink":         {"--workdir", workDir, "--strategy", "lines", "--reference", "r", "--actual", "a", "--sink", "ftp"},
		"unknown flag":     {"--workdir", workDir, "--strategy", "lines", "--reference", "r", "--actual", "a", "--verbose"},
		"positional":       {"--workdir", workDir, "--strategy", "lines", "--reference", "r", "--actual", "a", "extra"},
		"empty test":       {"--workdir", workDir, "--strategy", "lines", "--reference", "r", "--actual", "a", "--test", " "},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseInvocation(args)
			if err == nil {
				t.Fatalf("expected error")
			}
			if ExitCode(err) != ExitInvalidInvocation {
				t.Fatalf("expected exit code %d, got %d", ExitInvalidInvocation, ExitCode(err))
			}
		})
	}
}
