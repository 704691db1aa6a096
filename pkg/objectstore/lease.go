package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/nvmeof-gateway/internal/logger"
	"github.com/marmos91/nvmeof-gateway/pkg/gwerrors"
)

// leaseDocument is the body of the small lock object written alongside
// the group state object, mirroring RADOS's exclusive-lock object at
// the interface level.
type leaseDocument struct {
	Holder    string    `json:"holder"`
	Cookie    string    `json:"cookie"`
	ExpiresAt time.Time `json:"expires_at"`
}

func lockObjectName(stateObject string) string {
	return stateObject + ".lock"
}

// LeaseAcquire attempts to create or take over the exclusive lease on
// name's lock object, retrying up to attempts times with sleep between
// attempts. A lease held by a holder whose expires_at has passed is
// reclaimed by the next acquirer, mirroring §9's "lease release is
// best-effort" design note: a crashed holder's lease is simply
// overwritten once its duration elapses.
func (s *Store) LeaseAcquire(ctx context.Context, stateObject, holder, cookie string, duration time.Duration, attempts int, sleep time.Duration) error {
	lockName := lockObjectName(stateObject)

	for attempt := 0; attempt < attempts; attempt++ {
		held, err := s.readLease(ctx, lockName)
		if err == nil && held != nil && time.Now().Before(held.ExpiresAt) && held.Cookie != cookie {
			logger.Debug("objectstore: lease held by another cookie, waiting", "object", stateObject, "holder", held.Holder)
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", gwerrors.ErrBusy, ctx.Err())
			case <-time.After(sleep):
			}
			continue
		}

		doc := leaseDocument{Holder: holder, Cookie: cookie, ExpiresAt: time.Now().Add(duration)}
		body, marshalErr := json.Marshal(doc)
		if marshalErr != nil {
			return fmt.Errorf("%w: marshal lease: %w", gwerrors.ErrValidation, marshalErr)
		}
		_, putErr := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.fullKey(lockName)),
			Body:   bytes.NewReader(body),
		})
		if putErr != nil {
			logger.Debug("objectstore: lease acquire attempt failed", "object", stateObject, "attempt", attempt, "error", putErr)
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", gwerrors.ErrBusy, ctx.Err())
			case <-time.After(sleep):
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("%w: could not acquire lease on %s after %d attempts", gwerrors.ErrBusy, stateObject, attempts)
}

// LeaseRelease removes the lock object, best-effort: a missing object
// is not an error (another peer may have already reclaimed it).
func (s *Store) LeaseRelease(ctx context.Context, stateObject, cookie string) error {
	lockName := lockObjectName(stateObject)

	held, err := s.readLease(ctx, lockName)
	if err != nil {
		if errors.Is(err, gwerrors.ErrNotFound) {
			return nil
		}
		return err
	}
	if held.Cookie != cookie {
		// Someone else's lease already replaced ours (our lease expired
		// and was reclaimed); nothing to release.
		return nil
	}

	_, delErr := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(lockName)),
	})
	if delErr != nil && !isNotFound(delErr) {
		return fmt.Errorf("%w: release lease on %s: %w", gwerrors.ErrTransport, stateObject, delErr)
	}
	return nil
}

func (s *Store) readLease(ctx context.Context, lockName string) (*leaseDocument, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(lockName)),
	})
	if err != nil {
		if isNotFound(err) || strings.Contains(err.Error(), "NoSuchKey") {
			return nil, fmt.Errorf("%w: lease %s", gwerrors.ErrNotFound, lockName)
		}
		return nil, fmt.Errorf("%w: get lease %s: %w", gwerrors.ErrTransport, lockName, err)
	}
	defer out.Body.Close()

	var doc leaseDocument
	if err := json.NewDecoder(out.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode lease %s: %w", gwerrors.ErrTransport, lockName, err)
	}
	return &doc, nil
}
