package report

import (
	"fmt"

	"snapattach/internal/config"
	"snapattach/internal/logging"
)

// Open builds the sink selected by cfg. When cfg.LogAttachments is set, every
// attachment is also logged through log.
func Open(cfg *config.Config, log *logging.Logger) (Sink, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if log == nil {
		log = logging.Discard()
	}

	var sink Sink
	switch cfg.Sink {
	case config.SinkMemory:
		sink = NewMemorySink()
	case config.SinkLog:
		return LogSink{Log: log}, nil
	case config.SinkDir:
		codec, err := ParseCodec(cfg.Codec)
		if err != nil {
			return nil, err
		}
		ds, err := NewDirSink(cfg.Dir, codec)
		if err != nil {
			return nil, fmt.Errorf("dir sink: %w", err)
		}
		sink = ds
	case config.SinkS3:
		s3, err := NewS3Sink(S3Config{
			Endpoint:   cfg.S3.Endpoint,
			Region:     cfg.S3.Region,
			AccessKey:  cfg.S3.AccessKey,
			SecretKey:  cfg.S3.SecretKey,
			Bucket:     cfg.S3.Bucket,
			UseSSL:     cfg.S3.UseSSL,
			DedupeSize: cfg.S3.DedupeSize,
			MaxRetries: cfg.S3.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 sink: %w", err)
		}
		sink = s3
	default:
		return nil, fmt.Errorf("unknown sink %q", cfg.Sink)
	}

	if cfg.LogAttachments {
		return MultiSink{sink, LogSink{Log: log}}, nil
	}
	return sink, nil
}
