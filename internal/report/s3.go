package report

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"snapattach/internal/core"
)

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// DedupeSize bounds the cache of recently uploaded payload digests.
	// Zero disables server-side copies.
	DedupeSize int
	// MaxRetries overrides the client's retry count when positive.
	MaxRetries int
}

// S3Sink uploads attachments to an S3-compatible bucket under
// <test-id>/<seq>-<name>. Every Attach call creates its own object.
//
// When a payload with the same digest was uploaded recently, the new object
// is created by a server-side copy instead of a second upload.
type S3Sink struct {
	client     *minio.Client
	bucketName string
	region     string
	seq        atomic.Uint64
	uploaded   *lru.Cache[string, string] // digest -> object key

	initMu sync.Mutex
	ready  bool
}

func NewS3Sink(cfg S3Config) (*S3Sink, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:      credentials.NewStaticV4(access, secret, ""),
		Secure:     cfg.UseSSL,
		Region:     region,
		MaxRetries: cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	s := &S3Sink{client: client, bucketName: bucket, region: region}
	if cfg.DedupeSize > 0 {
		s.uploaded, err = lru.New[string, string](cfg.DedupeSize)
		if err != nil {
			return nil, fmt.Errorf("init dedupe cache: %w", err)
		}
	}
	return s, nil
}

// ensureBucket creates the bucket on first use. Only success is remembered;
// a failed check is retried by the next Attach.
func (s *S3Sink) ensureBucket(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.ready {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return err
		}
	}
	s.ready = true
	return nil
}

func (s *S3Sink) Attach(ctx context.Context, test core.TestRef, a core.Artifact) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("sink is nil")
	}
	id := strings.TrimSpace(test.ID)
	if id == "" {
		return fmt.Errorf("test id is required")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}

	key := objectKey(id, s.seq.Add(1), a.Name)
	digest := Digest(a.Payload)
	meta := objectMetadata(test, a.Location, digest)

	if s.uploaded != nil {
		if src, ok := s.uploaded.Get(digest); ok {
			_, err := s.client.CopyObject(ctx,
				minio.CopyDestOptions{Bucket: s.bucketName, Object: key, UserMetadata: meta, ReplaceMetadata: true},
				minio.CopySrcOptions{Bucket: s.bucketName, Object: src},
			)
			if err == nil {
				return nil
			}
			// The source may have been deleted; fall back to a full upload.
			s.uploaded.Remove(digest)
		}
	}

	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(a.Payload), int64(len(a.Payload)), minio.PutObjectOptions{
		ContentType:  http.DetectContentType(a.Payload),
		UserMetadata: meta,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	if s.uploaded != nil {
		s.uploaded.Add(digest, key)
	}
	return nil
}

func objectKey(testID string, seq uint64, name string) string {
	return testID + "/" + seqPrefix(seq) + "-" + fileName(name)
}

func objectMetadata(test core.TestRef, loc core.SourceLocation, digest string) map[string]string {
	return map[string]string{
		"test":      test.Name,
		"file-id":   loc.FileID,
		"file-path": loc.FilePath,
		"line":      strconv.FormatUint(uint64(loc.Line), 10),
		"column":    strconv.FormatUint(uint64(loc.Column), 10),
		"digest":    digest,
	}
}
