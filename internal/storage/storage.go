// Package storage provides object storage for remote datasets and exports.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrInvalidURI     = errors.New("invalid object URI")
)

// ObjectStorage abstracts object storage operations.
// Implementations include S3 and the local filesystem for testing.
type ObjectStorage interface {
	// Upload uploads a file to object storage.
	// localPath is the path to the local file to upload.
	// objectPath is the destination path in object storage.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download downloads a file from object storage.
	// objectPath is the source path in object storage.
	// localPath is the destination path on the local filesystem.
	Download(ctx context.Context, objectPath, localPath string) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)
}

// Opener returns the storage serving a bucket.
type Opener func(ctx context.Context, bucket string) (ObjectStorage, error)

// Location is a parsed dataset or export path.
type Location struct {
	// Scheme is "s3" for remote objects and "" for local files.
	Scheme string
	Bucket string
	// Key is the object key, or the file path for local locations.
	Key string
}

// IsRemote reports whether the location lives in object storage.
func (l Location) IsRemote() bool {
	return l.Scheme != ""
}

func (l Location) String() string {
	if !l.IsRemote() {
		return l.Key
	}
	return fmt.Sprintf("%s://%s/%s", l.Scheme, l.Bucket, l.Key)
}

// ParseURI splits s3://bucket/key URIs. Anything without a scheme is a
// local path.
func ParseURI(uri string) (Location, error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		if uri == "" {
			return Location{}, fmt.Errorf("%w: empty path", ErrInvalidURI)
		}
		return Location{Key: uri}, nil
	}
	if scheme != "s3" {
		return Location{}, fmt.Errorf("%w: unsupported scheme %q in %s", ErrInvalidURI, scheme, uri)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return Location{}, fmt.Errorf("%w: %s (want s3://bucket/key)", ErrInvalidURI, uri)
	}
	return Location{Scheme: scheme, Bucket: bucket, Key: key}, nil
}
