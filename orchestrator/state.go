package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vnkhanh/edu-reels-backend/services"
)

type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateQueued     State = "queued"
	StateGenerating State = "generating"
	StateUploading  State = "uploading"
	StateReady      State = "ready"
	StateFail       State = "fail"
)

func (s State) Terminal() bool {
	return s == StateReady || s == StateFail
}

type FailReason string

const (
	ReasonInvalidInput     FailReason = "invalid_input"
	ReasonScriptRejected   FailReason = "script_rejected"
	ReasonConflict         FailReason = "conflict"
	ReasonPersistFailed    FailReason = "persist_failed"
	ReasonTaskRejected     FailReason = "task_rejected"
	ReasonProviderFailed   FailReason = "provider_failed"
	ReasonStatusError      FailReason = "status_error"
	ReasonMissingResultURL FailReason = "missing_result_url"
	ReasonTimedOut         FailReason = "timed_out"
	ReasonIngestFailed     FailReason = "ingest_failed"
	ReasonCanceled         FailReason = "canceled"
)

var ErrIllegalTransition = errors.New("illegal transition")

// FeedItem là tiến trình sinh video của một unit
type FeedItem struct {
	ID            uuid.UUID  `json:"id"`
	ThreadID      uuid.UUID  `json:"thread_id"`
	VideoID       uuid.UUID  `json:"video_id"`
	UnitIndex     int        `json:"unit_index"`
	Title         string     `json:"title,omitempty"`
	TaskID        string     `json:"task_id,omitempty"`
	Src           string     `json:"src,omitempty"`
	State         State      `json:"state"`
	ProviderState string     `json:"provider_state,omitempty"`
	FailReason    FailReason `json:"fail_reason,omitempty"`
	FailMsg       string     `json:"fail_msg,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`

	// URL phía provider, ghi lại khi vào uploading; không bao giờ dùng làm Src
	providerURL string
}

type Event interface {
	eventName() string
}

type Submit struct{}

type TaskCreated struct {
	TaskID string
}

// ProviderProgress mang trạng thái trung gian của provider (waiting, queuing, generating)
type ProviderProgress struct {
	State string
}

type ProviderSucceeded struct {
	RemoteURL string
}

type Ingested struct {
	URL string
}

type Failed struct {
	Reason  FailReason
	Message string
}

func (Submit) eventName() string            { return "submit" }
func (TaskCreated) eventName() string       { return "task_created" }
func (ProviderProgress) eventName() string  { return "provider_progress" }
func (ProviderSucceeded) eventName() string { return "provider_succeeded" }
func (Ingested) eventName() string          { return "ingested" }
func (Failed) eventName() string            { return "failed" }

// Apply là reducer thuần: trả về item mới, hoặc ErrIllegalTransition và item giữ nguyên
func Apply(item FeedItem, ev Event) (FeedItem, error) {
	if item.State.Terminal() {
		return item, illegal(item, ev)
	}
	next := item

	switch e := ev.(type) {
	case Submit:
		if item.State != StateIdle {
			return item, illegal(item, ev)
		}
		next.State = StateSubmitting

	case TaskCreated:
		if item.State != StateSubmitting {
			return item, illegal(item, ev)
		}
		if e.TaskID == "" {
			return fail(next, ReasonTaskRejected, "no taskId returned"), nil
		}
		next.TaskID = e.TaskID
		next.State = StateQueued

	case ProviderProgress:
		if item.State != StateQueued && item.State != StateGenerating {
			return item, illegal(item, ev)
		}
		switch e.State {
		case services.TaskStateSuccess, services.TaskStateFail:
			return item, illegal(item, ev)
		case services.TaskStateGenerating:
			next.State = StateGenerating
		}
		// waiting/queuing: giữ nguyên, không lùi từ generating về queued
		next.ProviderState = e.State

	case ProviderSucceeded:
		if item.State != StateQueued && item.State != StateGenerating {
			return item, illegal(item, ev)
		}
		next.ProviderState = services.TaskStateSuccess
		if e.RemoteURL == "" {
			return fail(next, ReasonMissingResultURL, "provider returned no result url"), nil
		}
		next.providerURL = e.RemoteURL
		next.State = StateUploading

	case Ingested:
		if item.State != StateUploading {
			return item, illegal(item, ev)
		}
		if e.URL == "" || e.URL == item.providerURL {
			return fail(next, ReasonIngestFailed, "ingestion did not produce a durable url"), nil
		}
		next.Src = e.URL
		next.State = StateReady

	case Failed:
		reason := e.Reason
		if reason == "" {
			reason = ReasonStatusError
		}
		return fail(next, reason, e.Message), nil

	default:
		return item, illegal(item, ev)
	}
	return next, nil
}

func fail(item FeedItem, reason FailReason, msg string) FeedItem {
	item.State = StateFail
	item.FailReason = reason
	item.FailMsg = msg
	return item
}

func illegal(item FeedItem, ev Event) error {
	name := "<nil>"
	if ev != nil {
		name = ev.eventName()
	}
	return fmt.Errorf("%w: %s in state %s", ErrIllegalTransition, name, item.State)
}
