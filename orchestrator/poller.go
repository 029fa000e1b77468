package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/facebookgo/clock"

	"github.com/vnkhanh/edu-reels-backend/metrics"
	"github.com/vnkhanh/edu-reels-backend/services"
)

const (
	DefaultPollInterval    = 3 * time.Second
	DefaultPollMaxAttempts = 120
)

var (
	ErrTimedOut = errors.New("timed out waiting for video")
	ErrStatus   = errors.New("task status error")
)

// Poller hỏi trạng thái task theo chu kỳ cố định cho tới khi xong hoặc hết lượt
type Poller struct {
	Provider    services.VideoProvider
	Clock       clock.Clock
	Interval    time.Duration
	MaxAttempts int
}

func NewPoller(provider services.VideoProvider, clk clock.Clock, interval time.Duration, maxAttempts int) *Poller {
	if clk == nil {
		clk = clock.New()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultPollMaxAttempts
	}
	return &Poller{Provider: provider, Clock: clk, Interval: interval, MaxAttempts: maxAttempts}
}

// Poll trả về status success/fail đầu tiên. Trạng thái trung gian đưa qua onProgress.
func (p *Poller) Poll(ctx context.Context, taskID string, onProgress func(state string)) (*services.TaskStatus, error) {
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		t := p.Clock.Timer(p.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}

		st, err := p.Provider.TaskStatus(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			metrics.RecordPoll("error")
			return nil, fmt.Errorf("%w: %w", ErrStatus, err)
		}
		metrics.RecordPoll(st.State)

		switch st.State {
		case services.TaskStateSuccess, services.TaskStateFail:
			return st, nil
		}
		if onProgress != nil {
			onProgress(st.State)
		}
	}
	return nil, ErrTimedOut
}
