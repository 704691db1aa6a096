// Package pgs is the Persistent Group State Store (C4): a versioned
// key/value record held in the object store, with single-writer
// compare-and-set semantics, an exclusive change lease, and a
// change-notification channel. It is grounded on the reference
// implementation's OmapGatewayState and OmapObject
// (original_source/control/{state,omap}.py), reimplemented over the
// teacher's S3 client instead of RADOS.
package pgs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/nvmeof-gateway/internal/logger"
	"github.com/marmos91/nvmeof-gateway/pkg/gwerrors"
	"github.com/marmos91/nvmeof-gateway/pkg/objectstore"
)

// ObjectName returns the group's state object name: "nvmeof.<group>.state"
// or "nvmeof.state" if group is empty, per §4.4.1.
func ObjectName(group string) string {
	if group == "" {
		return "nvmeof.state"
	}
	return "nvmeof." + group + ".state"
}

// Store is the PGS client for one group's state object. It owns the
// last-observed version and ETag so a writer can retry a CAS after a
// local reconcile without re-fetching twice.
type Store struct {
	object *objectstore.Store
	name   string

	mu          sync.Mutex
	localVer    uint64
	localETag   string
	metrics     Metrics
}

// Open creates the group state object if it does not already exist and
// returns a Store bound to it. It also enforces the legacy-format
// rejection of §4.4.5.
func Open(ctx context.Context, object *objectstore.Store, group string) (*Store, error) {
	name := ObjectName(group)
	if err := object.CreateIfMissing(ctx, name); err != nil {
		return nil, fmt.Errorf("pgs: create state object: %w", err)
	}

	keys, version, etag, err := object.GetAll(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("pgs: initial read: %w", err)
	}
	if err := rejectLegacyFormat(keys); err != nil {
		return nil, err
	}

	return &Store{object: object, name: name, localVer: version, localETag: etag}, nil
}

// rejectLegacyFormat returns ErrFatal if any key carries the obsolete
// "bdev" prefix, matching check_for_old_format_omap_files.
func rejectLegacyFormat(keys map[string]string) error {
	for k := range keys {
		if strings.HasPrefix(k, LegacyPrefix) {
			return fmt.Errorf("%w: legacy omap key %q present, refusing to start", gwerrors.ErrFatal, k)
		}
	}
	return nil
}

// GetState returns the full current key/value map and its version,
// always fetched fresh from the object store (not from any cached
// copy) so callers always see the authoritative remote state.
func (s *Store) GetState(ctx context.Context) (keys map[string]string, version uint64, err error) {
	keys, version, etag, err := s.object.GetAll(ctx, s.name)
	if err != nil {
		return nil, 0, err
	}
	if err := rejectLegacyFormat(keys); err != nil {
		return nil, 0, err
	}
	s.mu.Lock()
	s.localETag = etag
	s.mu.Unlock()
	return keys, version, nil
}

// LocalVersion returns the version this Store last wrote, was opened
// at, or was given through SetLocalVersion; GetState updates only the
// cached ETag, not this value.
func (s *Store) LocalVersion() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localVer
}

// SetLocalVersion records the version the caller (the Reconciler) has
// now fully applied locally.
func (s *Store) SetLocalVersion(v uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localVer = v
}

// AddKey performs the §4.4.2 write protocol for a single-key add or
// update: assert the stored version equals expectedVersion, write the
// key, bump the version, and notify. On success it advances the
// Store's local version; on CAS mismatch it returns gwerrors.ErrStale
// and the caller must reconcile and retry.
func (s *Store) AddKey(ctx context.Context, expectedVersion uint64, key, value string) (newVersion uint64, err error) {
	start := time.Now()
	defer func() { s.observeWrite("AddKey", start, err) }()

	s.mu.Lock()
	etag := s.localETag
	s.mu.Unlock()

	v := value
	newVersion, newETag, err := s.object.WriteCAS(ctx, s.name, expectedVersion, etag, key, &v)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.localVer = newVersion
	s.localETag = newETag
	s.mu.Unlock()

	logger.Debug("pgs: key added", "object", s.name, logger.PGSKey(key), logger.PGSVersion(newVersion))
	return newVersion, nil
}

// RemoveKey performs the §4.4.2 write protocol for a single-key delete.
func (s *Store) RemoveKey(ctx context.Context, expectedVersion uint64, key string) (newVersion uint64, err error) {
	start := time.Now()
	defer func() { s.observeWrite("RemoveKey", start, err) }()

	s.mu.Lock()
	etag := s.localETag
	s.mu.Unlock()

	newVersion, newETag, err := s.object.RemoveCAS(ctx, s.name, expectedVersion, etag, key)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.localVer = newVersion
	s.localETag = newETag
	s.mu.Unlock()

	logger.Debug("pgs: key removed", "object", s.name, logger.PGSKey(key), logger.PGSVersion(newVersion))
	return newVersion, nil
}

// RegisterWatch starts the belt-and-braces poller described in §4.4.4:
// it fires cb whenever the object's ETag changes, in addition to any
// caller-driven refresh immediately after a local write. Blocks until
// ctx is cancelled; callers should run it in its own goroutine.
func (s *Store) RegisterWatch(ctx context.Context, interval time.Duration, cb func()) {
	s.object.Watch(ctx, s.name, interval, cb)
}

// Name returns the underlying object name, e.g. for logging.
func (s *Store) Name() string {
	return s.name
}
