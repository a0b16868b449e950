package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is a flat, bucket-scoped blob store addressed by slash paths.
type ObjectStore interface {
	Bucket() string
	// Put writes data at path, replacing any existing object.
	Put(ctx context.Context, path string, data []byte, contentType string) error
	Get(ctx context.Context, path string) ([]byte, string, error)
	// Delete removes the object. Missing objects are not an error.
	Delete(ctx context.Context, path string) error
}

// DiskStore keeps objects under <root>/<bucket>/<path>.
type DiskStore struct {
	dir    string
	bucket string
}

func NewDiskStore(root, bucket string) (*DiskStore, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) {
		return nil, fmt.Errorf("invalid bucket name %q", bucket)
	}
	dir := filepath.Join(root, bucket)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create bucket dir: %w", err)
	}
	return &DiskStore{dir: dir, bucket: bucket}, nil
}

func (s *DiskStore) Bucket() string { return s.bucket }

// CleanObjectPath normalizes an object path and rejects paths that would leave
// the bucket.
func CleanObjectPath(p string) (string, error) {
	if strings.Contains(p, `\`) || strings.ContainsRune(p, 0) {
		return "", fmt.Errorf("invalid object path %q", p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("invalid object path %q", p)
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+p), "/")
	if cleaned == "" {
		return "", fmt.Errorf("invalid object path %q", p)
	}
	return cleaned, nil
}

func (s *DiskStore) resolve(p string) (string, error) {
	cleaned, err := CleanObjectPath(p)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filepath.FromSlash(cleaned)), nil
}

func (s *DiskStore) Put(ctx context.Context, p string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp object: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return fmt.Errorf("commit object: %w", err)
	}
	return nil
}

func (s *DiskStore) Get(ctx context.Context, p string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	full, err := s.resolve(p)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", ErrObjectNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("read object: %w", err)
	}
	return data, contentTypeFor(p), nil
}

var knownContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".csv":  "text/csv; charset=utf-8",
}

// contentTypeFor derives the type from the extension. DiskStore does not keep
// the type given to Put.
func contentTypeFor(p string) string {
	ext := strings.ToLower(path.Ext(p))
	if ct, ok := knownContentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (s *DiskStore) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}
