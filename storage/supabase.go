package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	storage_go "github.com/supabase-community/storage-go"
)

// SupabaseStore upload lên Supabase Storage, đọc qua signed URL
type SupabaseStore struct {
	client *storage_go.Client
	bucket string
	ttl    time.Duration
}

func NewSupabaseStore(supabaseURL, key, bucket string, ttl time.Duration) (*SupabaseStore, error) {
	if supabaseURL == "" || key == "" {
		return nil, errors.New("SUPABASE_URL hoặc SUPABASE_KEY chưa cấu hình")
	}
	if bucket == "" {
		bucket = "uploads"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	client := storage_go.NewClient(strings.TrimRight(supabaseURL, "/")+"/storage/v1", key, nil)
	return &SupabaseStore{client: client, bucket: bucket, ttl: ttl}, nil
}

func (s *SupabaseStore) Provider() string { return "supabase" }

func (s *SupabaseStore) Upload(ctx context.Context, name string, r io.Reader, contentType string) (Object, error) {
	if contentType == "" {
		contentType = ContentTypeFor(name)
	}
	upsert := true
	_, err := s.client.UploadFile(s.bucket, name, r, storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return Object{}, fmt.Errorf("supabase upload %s: %w", name, err)
	}
	url, err := s.SignedURL(ctx, name)
	if err != nil {
		return Object{}, err
	}
	return Object{Name: name, URL: url}, nil
}

func (s *SupabaseStore) SignedURL(ctx context.Context, name string) (string, error) {
	resp, err := s.client.CreateSignedUrl(s.bucket, name, int(s.ttl.Seconds()))
	if err != nil {
		return "", fmt.Errorf("supabase signed url %s: %w", name, err)
	}
	if resp.SignedURL == "" {
		return "", ErrEmptyURL
	}
	return resp.SignedURL, nil
}

func (s *SupabaseStore) Delete(ctx context.Context, name string) error {
	if _, err := s.client.RemoveFile(s.bucket, []string{name}); err != nil {
		return fmt.Errorf("supabase delete %s: %w", name, err)
	}
	return nil
}
