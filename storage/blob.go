package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

var ErrEmptyURL = errors.New("blob store returned empty url")

// Object là blob đã upload: tên trong bucket + URL đọc được (signed)
type Object struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type BlobStore interface {
	Upload(ctx context.Context, name string, r io.Reader, contentType string) (Object, error)
	SignedURL(ctx context.Context, name string) (string, error)
	Delete(ctx context.Context, name string) error
	Provider() string
}

// ContentTypeFor đoán content type theo đuôi file
func ContentTypeFor(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	switch {
	case strings.HasSuffix(s, ".mp4"), strings.HasSuffix(s, ".m4v"):
		return "video/mp4"
	case strings.HasSuffix(s, ".webm"):
		return "video/webm"
	case strings.HasSuffix(s, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
