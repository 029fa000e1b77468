package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

type GCSStore struct {
	client *gcs.Client
	bucket string
	ttl    time.Duration
}

// credentials: đường dẫn file hoặc nội dung JSON; rỗng thì dùng ADC
func NewGCSStore(ctx context.Context, bucket, credentials string, ttl time.Duration) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("missing GCS_BUCKET")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	opts := []option.ClientOption{option.WithScopes(gcs.ScopeReadWrite)}
	switch {
	case strings.HasPrefix(strings.TrimSpace(credentials), "{"):
		opts = append(opts, option.WithCredentialsJSON([]byte(credentials)))
	case credentials != "":
		opts = append(opts, option.WithCredentialsFile(credentials))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, ttl: ttl}, nil
}

func (s *GCSStore) Provider() string { return "gcs" }

func (s *GCSStore) Upload(ctx context.Context, name string, r io.Reader, contentType string) (Object, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	if w.ContentType == "" {
		w.ContentType = ContentTypeFor(name)
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return Object{}, fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return Object{}, fmt.Errorf("failed to close GCS writer: %w", err)
	}
	url, err := s.SignedURL(ctx, name)
	if err != nil {
		return Object{}, err
	}
	return Object{Name: name, URL: url}, nil
}

func (s *GCSStore) SignedURL(ctx context.Context, name string) (string, error) {
	url, err := s.client.Bucket(s.bucket).SignedURL(name, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(s.ttl),
	})
	if err != nil {
		return "", fmt.Errorf("gcs signed url %s: %w", name, err)
	}
	if url == "" {
		return "", ErrEmptyURL
	}
	return url, nil
}

func (s *GCSStore) Delete(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.client.Bucket(s.bucket).Object(name).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", name, s.bucket, err)
	}
	return nil
}
