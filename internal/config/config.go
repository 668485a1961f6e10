// Package config loads snapattach settings from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Delivery modes.
const (
	ModeQueued   = "queued"
	ModeBlocking = "blocking"
	ModeDisabled = "disabled"
)

// Sink kinds.
const (
	SinkMemory = "memory"
	SinkDir    = "dir"
	SinkS3     = "s3"
	SinkLog    = "log"
)

// Codecs for persisted payloads.
const (
	CodecNone = "none"
	CodecZstd = "zstd"
	CodecLZ4  = "lz4"
)

type Config struct {
	Mode       string `env:"SNAPATTACH_MODE" envDefault:"queued"`
	Sink       string `env:"SNAPATTACH_SINK" envDefault:"dir"`
	Dir        string `env:"SNAPATTACH_DIR" envDefault:"."`
	Codec      string `env:"SNAPATTACH_CODEC" envDefault:"none"`
	Workers    int    `env:"SNAPATTACH_WORKERS" envDefault:"4"`
	QueueDepth int    `env:"SNAPATTACH_QUEUE_DEPTH" envDefault:"64"`

	// LogAttachments also logs every delivered attachment, like a runner's
	// "Attached" line.
	LogAttachments bool `env:"SNAPATTACH_LOG_ATTACHMENTS" envDefault:"false"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	S3 S3Config `envPrefix:"SNAPATTACH_S3_"`
}

type S3Config struct {
	Endpoint  string `env:"ENDPOINT"`
	Region    string `env:"REGION" envDefault:"us-east-1"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET" envDefault:"snapattach"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"true"`
	// DedupeSize bounds the cache of recently uploaded payload digests.
	DedupeSize int `env:"DEDUPE_SIZE" envDefault:"1024"`
	MaxRetries int `env:"MAX_RETRIES" envDefault:"3"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration Load would produce from an empty environment.
func Default() *Config {
	cfg := &Config{}
	_ = env.Parse(cfg, env.Options{Environment: map[string]string{}})
	cfg.normalize()
	return cfg
}

func (c *Config) normalize() {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	c.Sink = strings.ToLower(strings.TrimSpace(c.Sink))
	c.Codec = strings.ToLower(strings.TrimSpace(c.Codec))
	c.Dir = strings.TrimSpace(c.Dir)
	c.S3.Endpoint = strings.TrimSpace(c.S3.Endpoint)
	c.S3.Bucket = strings.TrimSpace(c.S3.Bucket)
}

// Validate rejects unknown enums and impossible sizes.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeQueued, ModeBlocking, ModeDisabled:
	default:
		return fmt.Errorf("invalid SNAPATTACH_MODE %q (want queued, blocking or disabled)", c.Mode)
	}
	switch c.Sink {
	case SinkMemory, SinkLog:
	case SinkDir:
		if c.Dir == "" {
			return fmt.Errorf("SNAPATTACH_DIR is required for the dir sink")
		}
	case SinkS3:
		if c.S3.Endpoint == "" {
			return fmt.Errorf("SNAPATTACH_S3_ENDPOINT is required for the s3 sink")
		}
		if c.S3.AccessKey == "" || c.S3.SecretKey == "" {
			return fmt.Errorf("SNAPATTACH_S3_ACCESS_KEY and SNAPATTACH_S3_SECRET_KEY are required for the s3 sink")
		}
		if c.S3.Bucket == "" {
			return fmt.Errorf("SNAPATTACH_S3_BUCKET is required for the s3 sink")
		}
	default:
		return fmt.Errorf("invalid SNAPATTACH_SINK %q (want memory, dir, s3 or log)", c.Sink)
	}
	switch c.Codec {
	case CodecNone, CodecZstd, CodecLZ4:
	default:
		return fmt.Errorf("invalid SNAPATTACH_CODEC %q (want none, zstd or lz4)", c.Codec)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("SNAPATTACH_WORKERS must be > 0")
	}
	if c.QueueDepth < 0 {
		return fmt.Errorf("SNAPATTACH_QUEUE_DEPTH must be >= 0")
	}
	return nil
}
