// Package storage provides append-only object sinks for operational
// archives such as debug log snapshots.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/infrastructure/config"
)

var (
	ErrEmptyKey      = errors.New("storage: object key is required")
	ErrObjectExists  = errors.New("storage: object already exists")
	ErrNotConfigured = errors.New("storage: archive sink is not configured")
	ErrMissingBucket = errors.New("storage: bucket is required")
)

// Sink stores immutable objects. Keys are never overwritten.
type Sink interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// ArchiveKey builds a time-ordered object key under prefix,
// e.g. debug-logs/2026/10/19/20261019T120000.000Z-debug.json
func ArchiveKey(prefix, name string, at time.Time) string {
	at = at.UTC()
	return path.Join(
		strings.TrimSuffix(prefix, "/"),
		at.Format("2006/01/02"),
		at.Format("20060102T150405.000Z")+"-"+name,
	)
}

// putObjectAPI is the subset of *s3.Client used by S3Sink
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink writes objects to an S3 (or S3-compatible) bucket
type S3Sink struct {
	client putObjectAPI
	bucket string
	logger *zap.Logger
}

// NewS3Sink creates an S3Sink from configuration. Static credentials are
// used when both keys are configured; otherwise the default AWS chain.
func NewS3Sink(ctx context.Context, cfg *config.StorageConfig, logger *zap.Logger) (*S3Sink, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, ErrMissingBucket
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newS3SinkWithClient(client, cfg.Bucket, logger), nil
}

func newS3SinkWithClient(client putObjectAPI, bucket string, logger *zap.Logger) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, logger: logger.Named("storage")}
}

// Put uploads body under key. If-None-Match keeps the sink append-only on
// stores that support conditional writes.
func (s *S3Sink) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if key == "" {
		return ErrEmptyKey
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	s.logger.Info("archived object",
		zap.String("bucket", s.bucket),
		zap.String("key", key),
		zap.Int("bytes", len(body)),
	)
	return nil
}

// Bucket returns the target bucket
func (s *S3Sink) Bucket() string {
	return s.bucket
}

// MemorySink keeps objects in memory. Used when S3 is disabled and in tests.
type MemorySink struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemorySink creates an empty MemorySink
func NewMemorySink() *MemorySink {
	return &MemorySink{objects: make(map[string][]byte)}
}

// Put stores a copy of body; existing keys are rejected
func (m *MemorySink) Put(_ context.Context, key string, body []byte, _ string) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; ok {
		return fmt.Errorf("%w: %s", ErrObjectExists, key)
	}
	m.objects[key] = append([]byte(nil), body...)
	return nil
}

// Get returns a stored object
func (m *MemorySink) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	return b, ok
}

// Keys returns stored keys in sorted order
func (m *MemorySink) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var (
	_ Sink = (*S3Sink)(nil)
	_ Sink = (*MemorySink)(nil)
)
