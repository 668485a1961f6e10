package report

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapattach/internal/core"
)

// fakeS3 answers the handful of path-style S3 calls S3Sink makes.
type fakeS3 struct {
	bucket string

	mu           sync.Mutex
	headFailures int
	heads        int
	puts         []string
	copies       map[string]string // dst -> copy source
	lines        map[string]string // key -> x-amz-meta-line
}

func newFakeS3(t *testing.T, bucket string, headFailures int) (*fakeS3, S3Config) {
	t.Helper()
	f := &fakeS3{bucket: bucket, headFailures: headFailures, copies: map[string]string{}, lines: map[string]string{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, S3Config{
		Endpoint:   strings.TrimPrefix(srv.URL, "http://"),
		AccessKey:  "access",
		SecretKey:  "secret",
		Bucket:     bucket,
		DedupeSize: 8,
		MaxRetries: 1,
	}
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)
	f.mu.Lock()
	defer f.mu.Unlock()

	rest, ok := strings.CutPrefix(r.URL.Path, "/"+f.bucket)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	key := strings.TrimPrefix(rest, "/")

	switch {
	case r.Method == http.MethodHead && key == "":
		f.heads++
		if f.headFailures > 0 {
			f.headFailures--
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && key != "":
		f.lines[key] = r.Header.Get("X-Amz-Meta-Line")
		if src := r.Header.Get("X-Amz-Copy-Source"); src != "" {
			f.copies[key] = src
			w.Header().Set("Content-Type", "application/xml")
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>`+
				`<CopyObjectResult><ETag>"etag"</ETag><LastModified>2024-01-02T15:04:05.000Z</LastModified></CopyObjectResult>`)
			return
		}
		f.puts = append(f.puts, key)
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestNewS3Sink_Validation(t *testing.T) {
	_, err := NewS3Sink(S3Config{})
	assert.ErrorContains(t, err, "endpoint")

	_, err = NewS3Sink(S3Config{Endpoint: "localhost:9000", Bucket: "b"})
	assert.ErrorContains(t, err, "access key")

	_, err = NewS3Sink(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s"})
	assert.ErrorContains(t, err, "bucket")

	s, err := NewS3Sink(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s", Bucket: "b", DedupeSize: 8})
	require.NoError(t, err)
	assert.NotNil(t, s.uploaded)
	assert.Equal(t, "us-east-1", s.region)

	s, err = NewS3Sink(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s", Bucket: "b"})
	require.NoError(t, err)
	assert.Nil(t, s.uploaded)
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "test-1/0000000001-difference", objectKey("test-1", 1, "difference"))
	assert.Equal(t, "t/0000010000-attachment", objectKey("t", 10000, ""))
	assert.NotEqual(t, objectKey("t", 1, "x"), objectKey("t", 2, "x"))
}

func TestObjectMetadata(t *testing.T) {
	md := objectMetadata(core.TestRef{ID: "x", Name: "TestX"}, testLoc, "abc")
	assert.Equal(t, "TestX", md["test"])
	assert.Equal(t, "42", md["line"])
	assert.Equal(t, "0", md["column"])
	assert.Equal(t, testLoc.FileID, md["file-id"])
	assert.Equal(t, "abc", md["digest"])
}

func TestS3Sink_RetriesBucketCheckAfterFailure(t *testing.T) {
	fake, cfg := newFakeS3(t, "snaps", 1)
	s, err := NewS3Sink(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	test := core.TestRef{ID: "t", Name: "TestS3"}

	err = s.Attach(ctx, test, artifact("failure", "blue"))
	require.ErrorContains(t, err, "ensure bucket")

	require.NoError(t, s.Attach(ctx, test, artifact("failure", "blue")))
	require.NoError(t, s.Attach(ctx, test, artifact("reference", "red")))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 2, fake.heads)
	assert.Len(t, fake.puts, 2)
}

func TestS3Sink_RepeatedAttachmentsGetTheirOwnObjects(t *testing.T) {
	fake, cfg := newFakeS3(t, "snaps", 0)
	s, err := NewS3Sink(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	test := core.TestRef{ID: "t", Name: "TestS3"}
	first := core.NewArtifact("difference", []byte("same"), core.SourceLocation{FileID: "a.go", Line: 10})
	second := core.NewArtifact("difference", []byte("same"), core.SourceLocation{FileID: "a.go", Line: 20})

	require.NoError(t, s.Attach(ctx, test, first))
	require.NoError(t, s.Attach(ctx, test, second))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Equal(t, []string{"t/0000000001-difference"}, fake.puts)
	require.Len(t, fake.copies, 1)
	assert.Equal(t, "snaps/t/0000000001-difference", fake.copies["t/0000000002-difference"])
	assert.Equal(t, "10", fake.lines["t/0000000001-difference"])
	assert.Equal(t, "20", fake.lines["t/0000000002-difference"])
}

func TestS3Sink_WithoutDedupeAlwaysUploads(t *testing.T) {
	fake, cfg := newFakeS3(t, "snaps", 0)
	cfg.DedupeSize = 0
	s, err := NewS3Sink(cfg)
	require.NoError(t, err)

	test := core.TestRef{ID: "t"}
	require.NoError(t, s.Attach(context.Background(), test, artifact("x", "same")))
	require.NoError(t, s.Attach(context.Background(), test, artifact("x", "same")))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{"t/0000000001-x", "t/0000000002-x"}, fake.puts)
	assert.Empty(t, fake.copies)
}
