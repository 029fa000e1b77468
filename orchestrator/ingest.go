package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vnkhanh/edu-reels-backend/logger"
	"github.com/vnkhanh/edu-reels-backend/metrics"
	"github.com/vnkhanh/edu-reels-backend/storage"
)

var ErrIngest = errors.New("ingest failed")

// Ingestor tải video từ provider về blob store của mình
type Ingestor struct {
	store storage.BlobStore
	http  *http.Client
	log   *logger.Logger
}

func NewIngestor(store storage.BlobStore, httpClient *http.Client, log *logger.Logger) *Ingestor {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Ingestor{store: store, http: httpClient, log: log.With("service", "Ingestor")}
}

func BlobNameForTask(taskID string) string {
	return "video-" + taskID + ".mp4"
}

// Ingest không bao giờ trả về URL của provider
func (i *Ingestor) Ingest(ctx context.Context, taskID, remoteURL string) (storage.Object, error) {
	taskID = strings.TrimSpace(taskID)
	remoteURL = strings.TrimSpace(remoteURL)
	if taskID == "" || remoteURL == "" {
		return storage.Object{}, fmt.Errorf("%w: missing taskId or remoteUrl", ErrIngest)
	}
	start := time.Now()
	obj, err := i.ingest(ctx, taskID, remoteURL)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordIngest(status, time.Since(start).Seconds())
	return obj, err
}

func (i *Ingestor) ingest(ctx context.Context, taskID, remoteURL string) (storage.Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return storage.Object{}, fmt.Errorf("%w: %w", ErrIngest, err)
	}
	resp, err := i.http.Do(req)
	if err != nil {
		return storage.Object{}, fmt.Errorf("%w: download: %w", ErrIngest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return storage.Object{}, fmt.Errorf("%w: Download failed: %d %s", ErrIngest, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	name := BlobNameForTask(taskID)
	obj, err := i.store.Upload(ctx, name, resp.Body, "video/mp4")
	if err != nil {
		return storage.Object{}, fmt.Errorf("%w: upload: %w", ErrIngest, err)
	}
	if obj.URL == "" || obj.URL == remoteURL {
		return storage.Object{}, fmt.Errorf("%w: %w", ErrIngest, storage.ErrEmptyURL)
	}
	i.log.Info("video ingested", "task_id", taskID, "blob", obj.Name)
	return obj, nil
}
