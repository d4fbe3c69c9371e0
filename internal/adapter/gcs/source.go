package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/simaogato/bucketbook-backend/internal/domain"
)

const scheme = "gs://"

// ErrInvalidURI is returned for a location that is not gs://bucket/object.
// Such a location names no statement, so it matches domain.ErrNotFound.
var ErrInvalidURI = fmt.Errorf("invalid gs:// uri: %w", domain.ErrNotFound)

// Source opens statements stored in Cloud Storage
type Source struct {
	client *storage.Client
}

// NewSource creates a Source using Application Default Credentials
func NewSource(ctx context.Context) (*Source, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Source{client: client}, nil
}

// Close releases the storage client
func (s *Source) Close() error {
	return s.client.Close()
}

// ParseURI splits gs://bucket/path/to/object into its bucket and object
func ParseURI(uri string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), scheme)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	return bucket, object, nil
}

// Open returns a reader over the object. A missing object or bucket is
// reported as domain.ErrNotFound.
func (s *Source) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	r, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, fmt.Errorf("statement %s %w", uri, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("open GCS object reader: %w", err)
	}
	return r, nil
}
