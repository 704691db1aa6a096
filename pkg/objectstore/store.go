// Package objectstore is the typed wrapper over the distributed object
// store (C2) that the Persistent Group State Store builds on: paged
// reads, single-writer compare-and-set writes, an exclusive lease, and
// watch/notify callbacks. It is grounded on the teacher's S3 block store
// wrapper, extended with the CAS, lease and notify primitives a mutable
// control-plane record needs that a content-addressed block store does
// not.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/nvmeof-gateway/internal/logger"
	"github.com/marmos91/nvmeof-gateway/pkg/gwerrors"
)

// Config holds configuration for the S3-backed object store client.
type Config struct {
	// Bucket is the S3 bucket name.
	Bucket string

	// Region is the AWS region (optional, uses SDK default if empty).
	Region string

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible
	// services such as the Localstack container used in integration
	// tests).
	Endpoint string

	// KeyPrefix is prepended to every object name, e.g. "nvmeof/".
	KeyPrefix string

	// ForcePathStyle forces path-style addressing (required for
	// Localstack/MinIO).
	ForcePathStyle bool

	// WatchPollInterval is the belt-and-braces poll interval for Watch,
	// the only change-detection path. Default 5s per §4.4.4.
	WatchPollInterval time.Duration
}

// DefaultConfig returns the spec's default poll interval.
func DefaultConfig() Config {
	return Config{WatchPollInterval: 5 * time.Second}
}

// Object is an opaque versioned blob identity: an object name plus the
// ETag observed on the last read, used as the CAS precondition on the
// next write.
type Object struct {
	Name string
	ETag string
}

// Store is an S3-backed object-store client implementing the C2
// contract: get_all, write_cas, remove_cas, lease_acquire/release,
// watch/notify.
type Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	mu        sync.RWMutex
	metrics   Metrics
}

// New creates a Store with an existing S3 client.
func New(client *s3.Client, cfg Config) *Store {
	return &Store{client: client, bucket: cfg.Bucket, keyPrefix: cfg.KeyPrefix}
}

// NewFromConfig builds the S3 client from cfg and returns a Store.
func NewFromConfig(ctx context.Context, cfg Config) (*Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(cfg.Endpoint) })
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return New(client, cfg), nil
}

func (s *Store) fullKey(name string) string {
	return s.keyPrefix + name
}

// document is the on-the-wire JSON body of a PGS object: the flat
// key/value map plus the reserved version counter key, held together so
// a single S3 GetObject/PutObject carries the whole record.
type document struct {
	Version uint64            `json:"omap_version"`
	Keys    map[string]string `json:"keys"`
}

// GetAll downloads and decodes the named object's full key/value map
// and its current version. Because the object is a single small S3
// blob (unlike RADOS OMAP's page-at-a-time read), there is no pagination
// loop here — the whole body is fetched in one GetObject call.
func (s *Store) GetAll(ctx context.Context, name string) (keys map[string]string, version uint64, etag string, err error) {
	start := time.Now()
	defer func() { s.observeOperation("GetObject", start, err) }()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(name)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, 0, "", fmt.Errorf("%w: object %s", gwerrors.ErrNotFound, name)
		}
		return nil, 0, "", fmt.Errorf("%w: get object: %w", gwerrors.ErrTransport, err)
	}
	defer out.Body.Close()

	var doc document
	if err := json.NewDecoder(out.Body).Decode(&doc); err != nil {
		return nil, 0, "", fmt.Errorf("%w: decode object %s: %w", gwerrors.ErrTransport, name, err)
	}
	etagVal := ""
	if out.ETag != nil {
		etagVal = strings.Trim(*out.ETag, `"`)
	}
	return doc.Keys, doc.Version, etagVal, nil
}

// CreateIfMissing creates the object with version 1 and an empty key
// set, tolerating a pre-existing object (mirrors OmapObject.create's
// LIBRADOS_CREATE_EXCLUSIVE tolerating rados.ObjectExists).
func (s *Store) CreateIfMissing(ctx context.Context, name string) error {
	_, _, _, err := s.GetAll(ctx, name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, gwerrors.ErrNotFound) {
		return err
	}

	doc := document{Version: 1, Keys: map[string]string{}}
	body, marshalErr := json.Marshal(doc)
	if marshalErr != nil {
		return fmt.Errorf("%w: marshal initial object: %w", gwerrors.ErrValidation, marshalErr)
	}

	_, putErr := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.fullKey(name)),
		Body:        bytes.NewReader(body),
		IfNoneMatch: aws.String("*"),
	})
	if putErr != nil && !isPreconditionFailed(putErr) {
		return fmt.Errorf("%w: create object %s: %w", gwerrors.ErrTransport, name, putErr)
	}
	logger.Info("objectstore: created group state object", "name", name)
	return nil
}

// WriteCAS applies a single key write (or, if value is nil, a key
// delete) conditioned on the stored version matching expectedVersion,
// then bumps the version. Per §4.4.2, writes are single-key: callers
// must not batch logical changes into one call.
func (s *Store) WriteCAS(ctx context.Context, name string, expectedVersion uint64, etag string, key string, value *string) (newVersion uint64, newETag string, err error) {
	op := "WriteCAS"
	if value == nil {
		op = "RemoveCAS"
	}
	defer func() { s.observeCASAttempt(op, false, err) }()

	keys, version, _, err := s.GetAll(ctx, name)
	if err != nil {
		return 0, "", err
	}
	if version != expectedVersion {
		err = fmt.Errorf("%w: object %s version %d != expected %d", gwerrors.ErrStale, name, version, expectedVersion)
		return 0, "", err
	}

	next := make(map[string]string, len(keys)+1)
	for k, v := range keys {
		next[k] = v
	}
	if value == nil {
		delete(next, key)
	} else {
		next[key] = *value
	}

	newVersion = version + 1
	doc := document{Version: newVersion, Keys: next}
	body, marshalErr := json.Marshal(doc)
	if marshalErr != nil {
		return 0, "", fmt.Errorf("%w: marshal object %s: %w", gwerrors.ErrValidation, name, marshalErr)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(name)),
		Body:   bytes.NewReader(body),
	}
	if etag != "" {
		input.IfMatch = aws.String(etag)
	}

	out, putErr := s.client.PutObject(ctx, input)
	if putErr != nil {
		if isPreconditionFailed(putErr) {
			return 0, "", fmt.Errorf("%w: object %s concurrently modified", gwerrors.ErrStale, name)
		}
		return 0, "", fmt.Errorf("%w: put object %s: %w", gwerrors.ErrTransport, name, putErr)
	}

	s.notifyBestEffort(name)

	if out.ETag != nil {
		newETag = strings.Trim(*out.ETag, `"`)
	}
	return newVersion, newETag, nil
}

// RemoveCAS deletes key conditioned on the stored version matching
// expectedVersion, identical to WriteCAS with a nil value. Kept as a
// distinct method because the C2 contract names it separately.
func (s *Store) RemoveCAS(ctx context.Context, name string, expectedVersion uint64, etag string, key string) (newVersion uint64, newETag string, err error) {
	return s.WriteCAS(ctx, name, expectedVersion, etag, key, nil)
}

// notifyBestEffort marks a completed write. S3 has no native
// watch/notify primitive and this writes nothing: it only logs at debug
// level, and peers learn of the change when their Watch poll sees the
// new ETag left by the write itself.
func (s *Store) notifyBestEffort(name string) {
	logger.Debug("objectstore: notify", "name", name)
}

// Watch polls the named object's ETag every interval and invokes cb
// whenever it changes, until ctx is cancelled. This is the only
// change-detection mechanism available on S3: there is no server-side
// push, and a local write triggers no extra poll, so peers see it on
// their next regular poll.
func (s *Store) Watch(ctx context.Context, name string, interval time.Duration, cb func()) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastETag string
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _, etag, err := s.GetAll(ctx, name)
			if err != nil {
				logger.Debug("objectstore: watch poll failed", "name", name, "error", err)
				continue
			}
			if lastETag != "" && etag != lastETag {
				cb()
			}
			lastETag = etag
		}
	}
}

func isNotFound(err error) bool {
	var nf *types.NoSuchKey
	if errors.As(err, &nf) {
		return true
	}
	return strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "NotFound")
}

func isPreconditionFailed(err error) bool {
	s := err.Error()
	return strings.Contains(s, "PreconditionFailed") || strings.Contains(s, "412")
}
