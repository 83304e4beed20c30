// Package gcs stores analysis photos in a Google Cloud Storage bucket,
// authenticated with the Firebase service account.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/vbonduro/nutrilens/internal/credential"
	"github.com/vbonduro/nutrilens/internal/photostore"
)

// bucket is the slice of the Cloud Storage API the store uses.
type bucket interface {
	NewWriter(ctx context.Context, key, contentType string) io.WriteCloser
	NewReader(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
}

type GCSPhotoStore struct {
	bucket bucket
	client *storage.Client
}

// New opens a client for bucketName using cred's token source.
func New(ctx context.Context, cred *credential.Credential, bucketName string) (*GCSPhotoStore, error) {
	if cred == nil {
		return nil, errors.New("gcs: credential is required")
	}
	if bucketName == "" {
		return nil, errors.New("gcs: bucket name is required")
	}

	ts, err := cred.TokenSource(ctx, storage.ScopeReadWrite)
	if err != nil {
		return nil, fmt.Errorf("failed to build token source: %w", err)
	}

	client, err := storage.NewClient(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &GCSPhotoStore{
		bucket: &handleBucket{h: client.Bucket(bucketName)},
		client: client,
	}, nil
}

func (s *GCSPhotoStore) Save(ctx context.Context, prefix, mimeType string, r io.Reader) (string, error) {
	key := photostore.NewKey(prefix, mimeType)

	w := s.bucket.NewWriter(ctx, key, photostore.MimeTypeForKey(key))
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to upload photo: %w", err)
	}
	// The object is only committed once Close succeeds.
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize photo upload: %w", err)
	}
	return key, nil
}

func (s *GCSPhotoStore) Get(ctx context.Context, storageKey string) (io.ReadCloser, string, error) {
	rc, contentType, err := s.bucket.NewReader(ctx, storageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, "", photostore.ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to read photo: %w", err)
	}
	if contentType == "" {
		contentType = photostore.MimeTypeForKey(storageKey)
	}
	return rc, contentType, nil
}

func (s *GCSPhotoStore) Delete(ctx context.Context, storageKey string) error {
	if err := s.bucket.Delete(ctx, storageKey); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return photostore.ErrNotFound
		}
		return fmt.Errorf("failed to delete photo: %w", err)
	}
	return nil
}

// Close releases the underlying storage client.
func (s *GCSPhotoStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

type handleBucket struct {
	h *storage.BucketHandle
}

func (b *handleBucket) NewWriter(ctx context.Context, key, contentType string) io.WriteCloser {
	w := b.h.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	return w
}

func (b *handleBucket) NewReader(ctx context.Context, key string) (io.ReadCloser, string, error) {
	r, err := b.h.Object(key).NewReader(ctx)
	if err != nil {
		return nil, "", err
	}
	return r, r.Attrs.ContentType, nil
}

func (b *handleBucket) Delete(ctx context.Context, key string) error {
	return b.h.Object(key).Delete(ctx)
}
