package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnkhanh/edu-reels-backend/config"
	"github.com/vnkhanh/edu-reels-backend/events"
	"github.com/vnkhanh/edu-reels-backend/logger"
	"github.com/vnkhanh/edu-reels-backend/models"
	"github.com/vnkhanh/edu-reels-backend/repository"
	"github.com/vnkhanh/edu-reels-backend/services"
	"github.com/vnkhanh/edu-reels-backend/storage"
)

type fakeScripts struct {
	mu      sync.Mutex
	calls   int
	err     error
	started chan struct{}
}

func (f *fakeScripts) GenerateScript(ctx context.Context, req services.ScriptRequest) (*services.ThreadScript, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	script := &services.ThreadScript{Topic: req.Topic, Difficulty: req.Difficulty, Sources: req.Sources}
	for i := 1; i <= models.UnitsPerThread; i++ {
		script.Units = append(script.Units, services.ScriptUnit{
			Index:  i,
			Title:  fmt.Sprintf("Part %d", i),
			Script: fmt.Sprintf("Narration for part %d", i),
			Quiz: services.ScriptQuiz{
				Question:     fmt.Sprintf("Question %d?", i),
				Options:      []string{"A", "B", "C", "D"},
				CorrectIndex: 1,
				Explanation:  "B is right",
			},
		})
	}
	return script, nil
}

type fakeNarrator struct {
	failOn string
}

func (f *fakeNarrator) Name() string         { return "fake" }
func (f *fakeNarrator) LanguageCode() string { return "en" }
func (f *fakeNarrator) Synthesize(_ context.Context, text string) ([]byte, error) {
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, errors.New("tts down")
	}
	return []byte("not really mp3"), nil
}

type harness struct {
	orch     *Orchestrator
	repo     *repository.ThreadRepository
	store    *storage.MemoryStore
	provider *scriptedProvider
	scripts  *fakeScripts
	narrator *fakeNarrator
	video    *httptest.Server
	bus      *events.LocalBus

	mu   sync.Mutex
	seen []events.Event
}

func newHarness(t *testing.T, statuses []services.TaskStatus, interval time.Duration) *harness {
	t.Helper()
	db, err := config.OpenSQLite(":memory:")
	require.NoError(t, err)

	h := &harness{
		repo:     repository.NewThreadRepository(db),
		store:    storage.NewMemoryStore(""),
		provider: &scriptedProvider{statuses: statuses},
		scripts:  &fakeScripts{},
		narrator: &fakeNarrator{},
		bus:      events.NewLocalBus(),
	}
	h.video = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "broken") {
			http.Error(w, "gone", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("mp4-bytes"))
	}))
	t.Cleanup(h.video.Close)

	require.NoError(t, h.bus.StartForwarder(context.Background(), func(ev events.Event) {
		h.mu.Lock()
		h.seen = append(h.seen, ev)
		h.mu.Unlock()
	}))

	log := logger.Nop()
	h.orch = New(Deps{
		Store:     h.repo,
		Scripts:   h.scripts,
		Videos:    h.provider,
		Poller:    NewPoller(h.provider, clock.New(), interval, 5),
		Ingestor:  NewIngestor(h.store, h.video.Client(), log),
		Narration: NewNarration(h.narrator, h.store, h.repo, 2, log),
		Bus:       h.bus,
		Log:       log,
	}, Config{PromptTemplate: services.PromptTemplateTopic})
	return h
}

func (h *harness) eventsOfType(typ string) []events.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []events.Event
	for _, ev := range h.seen {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func successStatuses(url string) []services.TaskStatus {
	return []services.TaskStatus{
		{State: services.TaskStateGenerating},
		{State: services.TaskStateSuccess, ResultURL: url},
	}
}

func newThread(t *testing.T, repo *repository.ThreadRepository) *models.Thread {
	t.Helper()
	th, err := repo.CreateThread(context.Background(), "Photosynthesis")
	require.NoError(t, err)
	return th
}

func TestGenerateHappyPath(t *testing.T) {
	h := newHarness(t, nil, time.Millisecond)
	remote := h.video.URL + "/result.mp4"
	h.provider.statuses = successStatuses(remote)
	th := newThread(t, h.repo)

	res, err := h.orch.Generate(context.Background(), GenerateRequest{ThreadID: th.ID, Topic: "  Photosynthesis ", Difficulty: "HARD"})
	require.NoError(t, err)

	require.Len(t, res.Items, 5)
	assert.Len(t, res.TaskIDs, 5)
	assert.Equal(t, 0, res.NarrationFailures)
	for i, it := range res.Items {
		assert.Equal(t, StateReady, it.State, "item %d", i)
		assert.Equal(t, i+1, it.UnitIndex)
		assert.NotEqual(t, uuid.Nil, it.VideoID)
		assert.NotEmpty(t, it.TaskID)
		assert.True(t, strings.HasPrefix(it.Src, "memory://blobs/video-"))
		assert.NotEqual(t, remote, it.Src)
	}

	got, err := h.repo.GetThread(context.Background(), th.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ThreadStatusReady, got.Status)

	feed, err := h.repo.LoadFeed(context.Background(), th.ID)
	require.NoError(t, err)
	require.Len(t, feed, 5)
	for _, v := range feed {
		require.NotNil(t, v.ScriptAsset)
		assert.Equal(t, "fake", v.ScriptAsset.Provider)
		assert.Equal(t, services.DefaultAudioDurationMs, v.ScriptAsset.AudioDurationMs)
		require.NotNil(t, v.Quiz)
		assert.Len(t, v.Quiz.Options, 4)
	}

	// 5 video + 5 mp3
	assert.Equal(t, 10, h.store.Len())
	for _, task := range h.provider.created {
		assert.Equal(t, "Photosynthesis", task.Prompt)
		assert.Equal(t, "portrait", task.AspectRatio)
		assert.Equal(t, "10", task.NFrames)
	}
	assert.NotEmpty(t, h.eventsOfType(events.TypeThreadReady))
	assert.NotEmpty(t, h.eventsOfType(events.TypeItem))
}

func TestGenerateEmptyTopicMakesNoCalls(t *testing.T) {
	h := newHarness(t, successStatuses("x"), time.Millisecond)
	th := newThread(t, h.repo)

	res, err := h.orch.Generate(context.Background(), GenerateRequest{ThreadID: th.ID, Topic: "   "})
	require.Error(t, err)
	require.Len(t, res.Items, 5)
	for _, it := range res.Items {
		assert.Equal(t, StateFail, it.State)
		assert.Equal(t, ReasonInvalidInput, it.FailReason)
		assert.Equal(t, "Missing required field: topic", it.FailMsg)
	}
	assert.Equal(t, 0, h.scripts.calls)
	assert.Empty(t, h.provider.created)
}

func TestGenerateScriptRejected(t *testing.T) {
	h := newHarness(t, successStatuses("x"), time.Millisecond)
	h.scripts.err = &services.ScriptValidationError{Issues: []string{"Unit 3: quiz.correctIndex must be 0..3"}}
	th := newThread(t, h.repo)

	res, err := h.orch.Generate(context.Background(), GenerateRequest{ThreadID: th.ID, Topic: "Gravity"})
	require.Error(t, err)
	for _, it := range res.Items {
		assert.Equal(t, ReasonScriptRejected, it.FailReason)
		assert.Contains(t, it.FailMsg, "Unit 3: quiz.correctIndex must be 0..3")
	}
	units, err := h.repo.Units(context.Background(), th.ID)
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestGenerateConflictOnThreadWithContent(t *testing.T) {
	h := newHarness(t, successStatuses("x"), time.Millisecond)
	th := newThread(t, h.repo)
	_, err := h.repo.AppendUnit(context.Background(), th.ID, repository.UnitInput{Title: "Existing", Script: "s"})
	require.NoError(t, err)

	res, err := h.orch.Generate(context.Background(), GenerateRequest{ThreadID: th.ID, Topic: "Gravity"})
	require.ErrorIs(t, err, repository.ErrThreadHasContent)
	for _, it := range res.Items {
		assert.Equal(t, ReasonConflict, it.FailReason)
	}
	assert.Empty(t, h.provider.created)
}

func TestGenerateIngestFailureNeverUsesProviderURL(t *testing.T) {
	h := newHarness(t, nil, time.Millisecond)
	remote := h.video.URL + "/broken.mp4"
	h.provider.statuses = successStatuses(remote)
	th := newThread(t, h.repo)

	res, err := h.orch.Generate(context.Background(), GenerateRequest{ThreadID: th.ID, Topic: "Gravity"})
	require.NoError(t, err)
	for _, it := range res.Items {
		assert.Equal(t, StateFail, it.State)
		assert.Equal(t, ReasonIngestFailed, it.FailReason)
		assert.Contains(t, it.FailMsg, "Download failed: 500")
		assert.Empty(t, it.Src)
		assert.NotEqual(t, remote, it.Src)
	}

	got, err := h.repo.GetThread(context.Background(), th.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ThreadStatusGenerating, got.Status)
	feed, err := h.repo.LoadFeed(context.Background(), th.ID)
	require.NoError(t, err)
	assert.Empty(t, feed)
}

func TestGenerateProviderFailure(t *testing.T) {
	h := newHarness(t, []services.TaskStatus{
		{State: services.TaskStateFail, FailCode: "400", FailMsg: "prompt rejected"},
	}, time.Millisecond)
	th := newThread(t, h.repo)

	res, err := h.orch.Generate(context.Background(), GenerateRequest{ThreadID: th.ID, Topic: "Gravity"})
	require.NoError(t, err)
	for _, it := range res.Items {
		assert.Equal(t, ReasonProviderFailed, it.FailReason)
		assert.Equal(t, "(400) prompt rejected", it.FailMsg)
	}
}

func TestGenerateTaskRejected(t *testing.T) {
	h := newHarness(t, successStatuses("x"), time.Millisecond)
	h.provider.createFn = func(services.VideoTask) (string, error) {
		return "", services.ErrTaskRejected
	}
	th := newThread(t, h.repo)

	res, err := h.orch.Generate(context.Background(), GenerateRequest{ThreadID: th.ID, Topic: "Gravity"})
	require.NoError(t, err)
	assert.Empty(t, res.TaskIDs)
	for _, it := range res.Items {
		assert.Equal(t, ReasonTaskRejected, it.FailReason)
	}
	assert.Equal(t, 0, h.provider.Calls())
}

func TestGenerateTimesOut(t *testing.T) {
	h := newHarness(t, []services.TaskStatus{{State: services.TaskStateQueuing}}, time.Millisecond)
	th := newThread(t, h.repo)

	res, err := h.orch.Generate(context.Background(), GenerateRequest{ThreadID: th.ID, Topic: "Gravity"})
	require.NoError(t, err)
	for _, it := range res.Items {
		assert.Equal(t, ReasonTimedOut, it.FailReason)
		assert.Equal(t, "Timed out waiting for video", it.FailMsg)
	}
}

func TestNarrationFailureIsCountedNotFatal(t *testing.T) {
	h := newHarness(t, nil, time.Millisecond)
	h.provider.statuses = successStatuses(h.video.URL + "/ok.mp4")
	h.narrator.failOn = "part 2"
	th := newThread(t, h.repo)

	res, err := h.orch.Generate(context.Background(), GenerateRequest{ThreadID: th.ID, Topic: "Gravity"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.NarrationFailures)
	for _, it := range res.Items {
		assert.Equal(t, StateReady, it.State)
	}
}

func TestStartCancel(t *testing.T) {
	h := newHarness(t, []services.TaskStatus{{State: services.TaskStateGenerating}}, time.Hour)
	th := newThread(t, h.repo)

	items, err := h.orch.Start(context.Background(), GenerateRequest{ThreadID: th.ID, Topic: "Gravity"})
	require.NoError(t, err)
	require.Len(t, items, 5)
	for _, it := range items {
		assert.Equal(t, StateSubmitting, it.State)
	}

	_, err = h.orch.Start(context.Background(), GenerateRequest{ThreadID: th.ID, Topic: "Gravity"})
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	assert.True(t, h.orch.Cancel(th.ID))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.orch.Shutdown(ctx))

	for _, it := range h.orch.Items(th.ID) {
		assert.Equal(t, StateFail, it.State)
		assert.Equal(t, ReasonCanceled, it.FailReason)
	}
	assert.False(t, h.orch.Running(th.ID))
	assert.False(t, h.orch.Cancel(th.ID))
}

func TestStartRejectsEmptyTopic(t *testing.T) {
	h := newHarness(t, successStatuses("x"), time.Millisecond)
	_, err := h.orch.Start(context.Background(), GenerateRequest{ThreadID: uuid.New(), Topic: ""})
	require.Error(t, err)
	assert.Equal(t, 0, h.scripts.calls)
}

func TestResumeIngestsPendingUnit(t *testing.T) {
	h := newHarness(t, nil, time.Millisecond)
	h.provider.statuses = successStatuses(h.video.URL + "/late.mp4")
	th := newThread(t, h.repo)
	v, err := h.repo.AppendUnit(context.Background(), th.ID, repository.UnitInput{Title: "Only", Script: "s"})
	require.NoError(t, err)
	require.NoError(t, h.repo.AttachTask(context.Background(), v.ID, "task-old"))

	pending, err := h.repo.PendingIngestions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, h.orch.Resume(context.Background(), pending[0]))
	assert.False(t, h.orch.InFlight(v.ID))

	items := h.orch.Items(th.ID)
	require.Len(t, items, 1)
	assert.Equal(t, StateReady, items[0].State)
	assert.Equal(t, "task-old", items[0].TaskID)

	pending, err = h.repo.PendingIngestions(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	_, _, ok := h.store.Get(BlobNameForTask("task-old"))
	assert.True(t, ok)
}

func TestResumeRequiresTaskID(t *testing.T) {
	h := newHarness(t, successStatuses("x"), time.Millisecond)
	err := h.orch.Resume(context.Background(), models.Video{ID: uuid.New()})
	assert.ErrorIs(t, err, services.ErrTaskRejected)
}

func TestStartUnitIngestsAppendedUnit(t *testing.T) {
	h := newHarness(t, nil, time.Millisecond)
	h.provider.statuses = successStatuses(h.video.URL + "/extra.mp4")
	th := newThread(t, h.repo)
	v, err := h.repo.AppendUnit(context.Background(), th.ID, repository.UnitInput{Title: "Extra", Script: "extra narration"})
	require.NoError(t, err)

	it, err := h.orch.StartUnit(context.Background(), th.Prompt, *v)
	require.NoError(t, err)
	assert.Equal(t, StateSubmitting, it.State)
	assert.Equal(t, v.ID, it.VideoID)

	require.Eventually(t, func() bool { return !h.orch.Running(th.ID) }, 5*time.Second, 10*time.Millisecond)

	items := h.orch.Items(th.ID)
	require.Len(t, items, 1)
	assert.Equal(t, StateReady, items[0].State)

	got, err := h.repo.GetThread(context.Background(), th.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ThreadStatusReady, got.Status)

	feed, err := h.repo.LoadFeed(context.Background(), th.ID)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.NotNil(t, feed[0].ScriptAsset)
}

type attachRecorder struct {
	*repository.ThreadRepository
	orch *Orchestrator

	mu       sync.Mutex
	inFlight map[uuid.UUID]bool
}

func (r *attachRecorder) AttachTask(ctx context.Context, videoID uuid.UUID, taskID string) error {
	r.mu.Lock()
	r.inFlight[videoID] = r.orch.InFlight(videoID)
	r.mu.Unlock()
	return r.ThreadRepository.AttachTask(ctx, videoID, taskID)
}

func TestUnitIsClaimedBeforeTaskIsAttached(t *testing.T) {
	h := newHarness(t, nil, time.Millisecond)
	h.provider.statuses = successStatuses(h.video.URL + "/claimed.mp4")
	rec := &attachRecorder{ThreadRepository: h.repo, orch: h.orch, inFlight: map[uuid.UUID]bool{}}
	h.orch.store = rec
	th := newThread(t, h.repo)

	res, err := h.orch.Generate(context.Background(), GenerateRequest{ThreadID: th.ID, Topic: "Gravity"})
	require.NoError(t, err)
	require.Len(t, res.TaskIDs, 5)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.inFlight, 5)
	for id, claimed := range rec.inFlight {
		assert.True(t, claimed, "video %s attached before claim", id)
		assert.False(t, h.orch.InFlight(id))
	}
}

func TestGenerateIsRegisteredWhileRunning(t *testing.T) {
	h := newHarness(t, successStatuses("x"), time.Millisecond)
	h.scripts.started = make(chan struct{})
	th := newThread(t, h.repo)

	type outcome struct {
		res *GenerateResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := h.orch.Generate(context.Background(), GenerateRequest{ThreadID: th.ID, Topic: "Gravity"})
		done <- outcome{res, err}
	}()
	<-h.scripts.started

	assert.True(t, h.orch.Running(th.ID))
	_, err := h.orch.Start(context.Background(), GenerateRequest{ThreadID: th.ID, Topic: "Gravity"})
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	_, err = h.orch.Generate(context.Background(), GenerateRequest{ThreadID: th.ID, Topic: "Gravity"})
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	require.True(t, h.orch.Cancel(th.ID))
	out := <-done
	require.Error(t, out.err)
	for _, it := range out.res.Items {
		assert.Equal(t, StateFail, it.State)
		assert.Equal(t, ReasonCanceled, it.FailReason)
	}
	assert.False(t, h.orch.Running(th.ID))
}
