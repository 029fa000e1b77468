package utils

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vnkhanh/edu-reels-backend/logger"
	"github.com/vnkhanh/edu-reels-backend/models"
)

const (
	resumeBatch       = 100
	resumeConcurrency = 4
)

type PendingSource interface {
	PendingIngestions(ctx context.Context, limit int) ([]models.Video, error)
}

type Resumer interface {
	InFlight(videoID uuid.UUID) bool
	Resume(ctx context.Context, video models.Video) error
}

// RunResumePass tìm unit đã có task nhưng chưa có blob và poll + ingest lại.
// Trả về số unit đã chạy lại.
func RunResumePass(ctx context.Context, repo PendingSource, orch Resumer, log *logger.Logger) int {
	videos, err := repo.PendingIngestions(ctx, resumeBatch)
	if err != nil {
		log.Error("load pending ingestions failed", "error", err)
		return 0
	}

	resumed := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resumeConcurrency)
	for _, v := range videos {
		v := v
		if orch.InFlight(v.ID) {
			continue
		}
		resumed++
		g.Go(func() error {
			if err := orch.Resume(gctx, v); err != nil {
				log.Warn("resume unit failed", "video_id", v.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if resumed > 0 {
		log.Info("resume pass finished", "resumed", resumed)
	}
	return resumed
}

// StartResumeJob chạy ngay một lần khi khởi động rồi lặp lại mỗi interval tới khi ctx hủy
func StartResumeJob(ctx context.Context, interval time.Duration, repo PendingSource, orch Resumer, log *logger.Logger) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	go func() {
		log.Info("resume job started", "interval", interval.String())
		RunResumePass(ctx, repo, orch, log)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Debug("resume job triggered")
				RunResumePass(ctx, repo, orch, log)
			}
		}
	}()
}
