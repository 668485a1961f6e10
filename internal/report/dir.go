package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"

	"snapattach/internal/core"
)

const manifestSuffix = ".meta.cbor"

// Manifest is the CBOR sidecar written next to every stored payload.
type Manifest struct {
	TestID   string `cbor:"test_id"`
	Seq      uint64 `cbor:"seq"`
	Test     string `cbor:"test"`
	Name     string `cbor:"name,omitempty"`
	File     string `cbor:"file"`
	FileID   string `cbor:"file_id"`
	FilePath string `cbor:"file_path"`
	Line     uint   `cbor:"line"`
	Column   uint   `cbor:"column"`
	Size     int    `cbor:"size"`
	Digest   string `cbor:"digest"`
	Codec    Codec  `cbor:"codec"`
}

// Location rebuilds the source location recorded in the manifest.
func (m Manifest) Location() core.SourceLocation {
	return core.SourceLocation{FileID: m.FileID, FilePath: m.FilePath, Line: m.Line, Column: m.Column}
}

// Stored is a payload read back from a DirSink.
type Stored struct {
	Manifest Manifest
	Payload  []byte
}

// DirSink stores attachments under:
//
//	<baseDir>/.snapattach/tests/<test-id>/<seq>-<name>[codec suffix]
//
// Every payload and its sidecar are written atomically and durably (file sync
// + atomic rename + dir sync), so a crash never leaves half an attachment.
type DirSink struct {
	baseDir string
	codec   Codec
	encMode cbor.EncMode
	seq     atomic.Uint64
}

func NewDirSink(baseDir string, codec Codec) (*DirSink, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("baseDir is required")
	}
	if _, err := ParseCodec(string(codec)); err != nil {
		return nil, err
	}
	if codec == "" {
		codec = CodecNone
	}
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor encoder: %w", err)
	}
	return &DirSink{baseDir: baseDir, codec: codec, encMode: em}, nil
}

func (s *DirSink) testsRootDir() string {
	return filepath.Join(s.baseDir, ".snapattach", "tests")
}

func (s *DirSink) testDir(testID string) string {
	return filepath.Join(s.testsRootDir(), testID)
}

func (s *DirSink) Attach(ctx context.Context, test core.TestRef, a core.Artifact) error {
	if s == nil {
		return errors.New("nil DirSink")
	}
	id := strings.TrimSpace(test.ID)
	if id == "" || id != filepath.Base(id) {
		return fmt.Errorf("invalid test id %q", test.ID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	encoded, err := s.codec.Encode(a.Payload)
	if err != nil {
		return err
	}
	seq := s.seq.Add(1)
	file := fmt.Sprintf("%s-%s%s", seqPrefix(seq), fileName(a.Name), s.codec.Suffix())
	manifest := Manifest{
		TestID:   id,
		Seq:      seq,
		Test:     test.Name,
		Name:     a.Name,
		File:     file,
		FileID:   a.Location.FileID,
		FilePath: a.Location.FilePath,
		Line:     a.Location.Line,
		Column:   a.Location.Column,
		Size:     len(a.Payload),
		Digest:   Digest(a.Payload),
		Codec:    s.codec,
	}
	meta, err := s.encMode.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	dir := s.testDir(id)
	if err := ensureDirDurable(dir, 0o755); err != nil {
		return err
	}
	if err := writeFileAtomicDurable(filepath.Join(dir, file), encoded, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", file, err)
	}
	if err := writeFileAtomicDurable(filepath.Join(dir, file+manifestSuffix), meta, 0o644); err != nil {
		return fmt.Errorf("write %s manifest: %w", file, err)
	}
	return nil
}

// ListTestIDs returns all test IDs currently present on disk, sorted.
func (s *DirSink) ListTestIDs() ([]string, error) {
	entries, err := os.ReadDir(s.testsRootDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Load reads back every attachment of one test, in write order, verifying
// each payload against its recorded digest.
func (s *DirSink) Load(testID string) ([]Stored, error) {
	if strings.TrimSpace(testID) == "" {
		return nil, errors.New("testID is required")
	}
	dir := s.testDir(testID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []Stored
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), manifestSuffix) {
			continue
		}
		var m Manifest
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if err := cbor.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Name(), err)
		}
		encoded, err := os.ReadFile(filepath.Join(dir, m.File))
		if err != nil {
			return nil, err
		}
		payload, err := m.Codec.Decode(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", m.File, err)
		}
		if Digest(payload) != m.Digest {
			return nil, fmt.Errorf("digest mismatch for %s", m.File)
		}
		out = append(out, Stored{Manifest: m, Payload: payload})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Manifest.Seq < out[j].Manifest.Seq })
	return out, nil
}

// seqPrefix pads to the width of the largest uint32 so names sort by
// sequence in directory listings.
func seqPrefix(seq uint64) string {
	return fmt.Sprintf("%010d", seq)
}

// fileName turns an attachment name into a single safe path segment.
func fileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "attachment"
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, name)
	if name == "." || name == ".." {
		return "attachment"
	}
	return name
}

func ensureDirDurable(dir string, perm os.FileMode) error {
	if err := os.MkdirAll(dir, perm); err != nil {
		return err
	}
	// Best-effort durability: sync the directory and its parent.
	if err := fsyncDir(dir); err != nil {
		return err
	}
	parent := filepath.Dir(dir)
	if parent != dir {
		if err := fsyncDir(parent); err != nil {
			return err
		}
	}
	return nil
}

func writeFileAtomicDurable(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return fsyncDir(dir)
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
