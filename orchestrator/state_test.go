package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustApply(t *testing.T, item FeedItem, evs ...Event) FeedItem {
	t.Helper()
	for _, ev := range evs {
		var err error
		item, err = Apply(item, ev)
		require.NoError(t, err)
	}
	return item
}

func TestApplyHappyPath(t *testing.T) {
	item := mustApply(t, FeedItem{State: StateIdle},
		Submit{},
		TaskCreated{TaskID: "task-1"},
		ProviderProgress{State: "waiting"},
	)
	assert.Equal(t, StateQueued, item.State)
	assert.Equal(t, "task-1", item.TaskID)
	assert.Equal(t, "waiting", item.ProviderState)

	item = mustApply(t, item,
		ProviderProgress{State: "generating"},
		ProviderProgress{State: "queuing"},
	)
	assert.Equal(t, StateGenerating, item.State, "không lùi về queued")
	assert.Equal(t, "queuing", item.ProviderState)

	item = mustApply(t, item, ProviderSucceeded{RemoteURL: "https://kie/v.mp4"})
	assert.Equal(t, StateUploading, item.State)
	assert.Empty(t, item.Src)

	item = mustApply(t, item, Ingested{URL: "https://blob/video-task-1.mp4?sig"})
	assert.Equal(t, StateReady, item.State)
	assert.Equal(t, "https://blob/video-task-1.mp4?sig", item.Src)
}

func TestApplyIngestedRejectsProviderURL(t *testing.T) {
	item := mustApply(t, FeedItem{State: StateIdle},
		Submit{}, TaskCreated{TaskID: "t"}, ProviderSucceeded{RemoteURL: "https://kie/v.mp4"},
	)

	got := mustApply(t, item, Ingested{URL: "https://kie/v.mp4"})
	assert.Equal(t, StateFail, got.State)
	assert.Equal(t, ReasonIngestFailed, got.FailReason)
	assert.Empty(t, got.Src)

	got = mustApply(t, item, Ingested{URL: ""})
	assert.Equal(t, StateFail, got.State)
	assert.Empty(t, got.Src)
}

func TestApplyMissingResultURL(t *testing.T) {
	item := mustApply(t, FeedItem{State: StateIdle}, Submit{}, TaskCreated{TaskID: "t"}, ProviderSucceeded{})
	assert.Equal(t, StateFail, item.State)
	assert.Equal(t, ReasonMissingResultURL, item.FailReason)
}

func TestApplyEmptyTaskID(t *testing.T) {
	item := mustApply(t, FeedItem{State: StateIdle}, Submit{}, TaskCreated{})
	assert.Equal(t, StateFail, item.State)
	assert.Equal(t, ReasonTaskRejected, item.FailReason)
}

func TestApplyIllegalTransitionsLeaveItemUnchanged(t *testing.T) {
	cases := []struct {
		name string
		item FeedItem
		ev   Event
	}{
		{"ready from queued", FeedItem{State: StateQueued}, Ingested{URL: "x"}},
		{"skip submitting", FeedItem{State: StateIdle}, TaskCreated{TaskID: "t"}},
		{"submit twice", FeedItem{State: StateSubmitting}, Submit{}},
		{"progress before task", FeedItem{State: StateSubmitting}, ProviderProgress{State: "waiting"}},
		{"terminal success via progress", FeedItem{State: StateQueued}, ProviderProgress{State: "success"}},
		{"after ready", FeedItem{State: StateReady, Src: "s"}, Failed{Reason: ReasonCanceled}},
		{"after fail", FeedItem{State: StateFail, FailReason: ReasonTimedOut}, Submit{}},
		{"uploading twice", FeedItem{State: StateUploading}, ProviderSucceeded{RemoteURL: "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Apply(tc.item, tc.ev)
			assert.ErrorIs(t, err, ErrIllegalTransition)
			assert.Equal(t, tc.item, got)
		})
	}
}

func TestApplyFailedFromAnyActiveState(t *testing.T) {
	for _, s := range []State{StateIdle, StateSubmitting, StateQueued, StateGenerating, StateUploading} {
		got, err := Apply(FeedItem{State: s}, Failed{Reason: ReasonTimedOut, Message: "Timed out waiting for video"})
		require.NoError(t, err)
		assert.Equal(t, StateFail, got.State)
		assert.Equal(t, ReasonTimedOut, got.FailReason)
		assert.Equal(t, "Timed out waiting for video", got.FailMsg)
	}
}
