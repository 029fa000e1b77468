package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vnkhanh/edu-reels-backend/logger"
	"github.com/vnkhanh/edu-reels-backend/metrics"
	"github.com/vnkhanh/edu-reels-backend/models"
	"github.com/vnkhanh/edu-reels-backend/services"
	"github.com/vnkhanh/edu-reels-backend/storage"
)

const DefaultNarrationConcurrency = 2

type assetWriter interface {
	InsertScriptAsset(ctx context.Context, asset *models.VideoScriptAsset) error
}

// Narration đọc script từng unit thành MP3 và lưu asset
type Narration struct {
	narrator services.Narrator
	store    storage.BlobStore
	assets   assetWriter
	limit    int
	log      *logger.Logger
}

func NewNarration(narrator services.Narrator, store storage.BlobStore, assets assetWriter, limit int, log *logger.Logger) *Narration {
	if limit <= 0 {
		limit = DefaultNarrationConcurrency
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Narration{narrator: narrator, store: store, assets: assets, limit: limit, log: log.With("service", "Narration")}
}

func narrationBlobName(threadID uuid.UUID, unitIndex int, requestID string) string {
	return fmt.Sprintf("thread-%s-unit-%d-%s.mp3", threadID, unitIndex, requestID)
}

// NarrateUnits trả về số unit thất bại. Lỗi của một unit không hủy các unit khác.
func (n *Narration) NarrateUnits(ctx context.Context, threadID uuid.UUID, videos []models.Video) int {
	if n == nil || n.narrator == nil {
		return 0
	}
	requestID := uuid.NewString()
	var failures atomic.Int32

	g := new(errgroup.Group)
	g.SetLimit(n.limit)
	for _, v := range videos {
		v := v
		g.Go(func() error {
			if err := n.narrateUnit(ctx, threadID, v, requestID); err != nil {
				failures.Add(1)
				metrics.NarrationFailures.Inc()
				n.log.Warn("narration failed", "thread_id", threadID, "unit", v.Index, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(failures.Load())
}

func (n *Narration) narrateUnit(ctx context.Context, threadID uuid.UUID, v models.Video, requestID string) error {
	text := strings.TrimSpace(v.ScriptText)
	if text == "" {
		return services.ErrEmptyText
	}
	audio, err := n.narrator.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	obj, err := n.store.Upload(ctx, narrationBlobName(threadID, v.Index, requestID), bytes.NewReader(audio), "audio/mpeg")
	if err != nil {
		return fmt.Errorf("upload audio: %w", err)
	}
	if obj.URL == "" {
		return storage.ErrEmptyURL
	}
	return n.assets.InsertScriptAsset(ctx, &models.VideoScriptAsset{
		VideoID:         v.ID,
		ScriptText:      text,
		AudioBlobName:   obj.Name,
		AudioBlobURL:    obj.URL,
		AudioDurationMs: services.AudioDurationOrDefault(audio),
		Provider:        n.narrator.Name(),
		LanguageCode:    n.narrator.LanguageCode(),
	})
}
