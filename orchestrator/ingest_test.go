package orchestrator

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnkhanh/edu-reels-backend/storage"
)

// echoStore trả lại đúng URL được cấu hình, dùng để giả lập store hỏng
type echoStore struct {
	url string
	err error
}

func (s echoStore) Upload(_ context.Context, name string, r io.Reader, _ string) (storage.Object, error) {
	_, _ = io.Copy(io.Discard, r)
	return storage.Object{Name: name, URL: s.url}, s.err
}
func (s echoStore) SignedURL(context.Context, string) (string, error) { return s.url, nil }
func (s echoStore) Delete(context.Context, string) error              { return nil }
func (s echoStore) Provider() string                                  { return "echo" }

func TestIngestUploadsUnderTaskName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("video"))
	}))
	defer srv.Close()

	store := storage.NewMemoryStore("")
	obj, err := NewIngestor(store, srv.Client(), nil).Ingest(context.Background(), "abc", srv.URL+"/v.mp4")
	require.NoError(t, err)
	assert.Equal(t, "video-abc.mp4", obj.Name)
	assert.Equal(t, "memory://blobs/video-abc.mp4?sig=test", obj.URL)

	data, ctype, ok := store.Get("video-abc.mp4")
	require.True(t, ok)
	assert.Equal(t, "video", string(data))
	assert.Equal(t, "video/mp4", ctype)
}

func TestIngestRejectsMissingInputs(t *testing.T) {
	ing := NewIngestor(storage.NewMemoryStore(""), nil, nil)
	_, err := ing.Ingest(context.Background(), "", "https://x")
	assert.ErrorIs(t, err, ErrIngest)
	_, err = ing.Ingest(context.Background(), "t", " ")
	assert.ErrorIs(t, err, ErrIngest)
}

func TestIngestDownloadFailureKeepsBodyPrefix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "expired link", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewIngestor(storage.NewMemoryStore(""), srv.Client(), nil).Ingest(context.Background(), "t", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Download failed: 403 expired link")
}

func TestIngestNeverFallsBackToRemoteURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("video"))
	}))
	defer srv.Close()
	remote := srv.URL + "/v.mp4"

	for name, store := range map[string]storage.BlobStore{
		"empty url":      echoStore{url: ""},
		"same as remote": echoStore{url: remote},
		"upload error":   echoStore{err: errors.New("quota")},
	} {
		t.Run(name, func(t *testing.T) {
			obj, err := NewIngestor(store, srv.Client(), nil).Ingest(context.Background(), "t", remote)
			assert.ErrorIs(t, err, ErrIngest)
			assert.Empty(t, obj.URL)
		})
	}
}
