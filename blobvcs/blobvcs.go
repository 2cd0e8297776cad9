/*
Package blobvcs implements the [splode.VCS] interface on top of a
portable-blob bucket (gocloud.dev/blob), so containers can persist to any
blob store the Go CDK supports - local directories during development,
cloud buckets on the farm.

Blob stores have no native rename primitive, so Rename is implemented as a
server-side copy followed by a delete of the source key. History-preserving
renames remain the responsibility of version-control-backed implementations;
this package targets content distribution, not history.
*/
package blobvcs

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	splode "github.com/go-splode/go-splode"
)

// Store adapts a blob bucket to the [splode.VCS] interface. Container paths
// map directly to bucket keys.
type Store struct {
	bucket *blob.Bucket
}

var _ splode.VCS = (*Store)(nil)

// New returns a Store over the given bucket. The caller retains ownership of
// the bucket and closes it when done.
func New(bucket *blob.Bucket) *Store {
	return &Store{bucket: bucket}
}

// Write persists the container content under the given key, overwriting any
// previous content.
func (s *Store) Write(ctx context.Context, path string, data []byte) error {
	if err := s.bucket.WriteAll(ctx, path, data, nil); err != nil {
		return fmt.Errorf("write blob %q: %w", path, err)
	}
	return nil
}

// Read returns the container content stored under the given key.
func (s *Store) Read(ctx context.Context, path string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read blob %q: %w", path, err)
	}
	return data, nil
}

// Rename moves the content from oldPath to newPath via copy-and-delete.
// Renaming a missing key fails; renaming onto an existing key overwrites it,
// matching the overwrite semantics of Write.
func (s *Store) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := s.bucket.Copy(ctx, newPath, oldPath, nil); err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return fmt.Errorf("rename blob: source %q not found: %w", oldPath, err)
		}
		return fmt.Errorf("copy blob %q to %q: %w", oldPath, newPath, err)
	}
	if err := s.bucket.Delete(ctx, oldPath); err != nil {
		return fmt.Errorf("delete blob %q after copy: %w", oldPath, err)
	}
	return nil
}

// Exists reports whether a container is stored under the given key.
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	ok, err := s.bucket.Exists(ctx, path)
	if err != nil {
		return false, fmt.Errorf("stat blob %q: %w", path, err)
	}
	return ok, nil
}
