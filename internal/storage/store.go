package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"
)

// ErrArtifactMissing is returned when no finished file can be located.
var ErrArtifactMissing = errors.New("artifact not found")

// Artifact is a finished download inside the store.
type Artifact struct {
	Key  string
	Size int64
}

// Name is the file name without the task prefix.
func (a Artifact) Name() string {
	return path.Base(a.Key)
}

// Ext is the extension without the leading dot.
func (a Artifact) Ext() string {
	return strings.TrimPrefix(path.Ext(a.Key), ".")
}

// Store reads finished downloads through a blob bucket rooted at the
// download directory.
type Store struct {
	layout Layout
	bucket *blob.Bucket
}

// OpenStore creates the root directory when needed and opens a file bucket on it.
func OpenStore(layout Layout) (*Store, error) {
	if err := os.MkdirAll(layout.Root(), 0755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	bucket, err := fileblob.OpenBucket(layout.Root(), nil)
	if err != nil {
		return nil, fmt.Errorf("open artifact bucket: %w", err)
	}
	return &Store{layout: layout, bucket: bucket}, nil
}

func (s *Store) Layout() Layout {
	return s.layout
}

// FindArtifact returns the first file (by name) in the task's directory with
// the given extension.
func (s *Store) FindArtifact(ctx context.Context, taskID, ext string) (Artifact, error) {
	suffix := "." + strings.TrimPrefix(ext, ".")
	iter := s.bucket.List(&blob.ListOptions{Prefix: Key(taskID, "")})

	var found []Artifact
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return Artifact{}, fmt.Errorf("list task files: %w", err)
		}
		if obj.IsDir || !strings.HasSuffix(obj.Key, suffix) {
			continue
		}
		found = append(found, Artifact{Key: obj.Key, Size: obj.Size})
	}
	if len(found) == 0 {
		return Artifact{}, fmt.Errorf("%w: no *%s file for task %s", ErrArtifactMissing, suffix, taskID)
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Key < found[j].Key })
	return found[0], nil
}

// Open streams an artifact. The caller closes the reader.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrArtifactMissing, key)
		}
		return nil, err
	}
	return r, nil
}

// ReadAll loads the whole artifact into memory.
func (s *Store) ReadAll(ctx context.Context, key string) ([]byte, error) {
	r, err := s.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// LocalPath resolves a key to its path on disk.
func (s *Store) LocalPath(key string) string {
	return filepath.Join(s.layout.Root(), filepath.FromSlash(key))
}

func (s *Store) Close() error {
	return s.bucket.Close()
}
