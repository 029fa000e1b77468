package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/facebookgo/clock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vnkhanh/edu-reels-backend/apierr"
	"github.com/vnkhanh/edu-reels-backend/events"
	"github.com/vnkhanh/edu-reels-backend/logger"
	"github.com/vnkhanh/edu-reels-backend/metrics"
	"github.com/vnkhanh/edu-reels-backend/models"
	"github.com/vnkhanh/edu-reels-backend/repository"
	"github.com/vnkhanh/edu-reels-backend/services"
)

const (
	videoAspectRatio = "portrait"
	videoFrames      = "10"
	videoDurationSec = 10
)

var ErrAlreadyRunning = apierr.Conflict("generation_running", "generation already running for this thread")

// Store là phần repository mà pipeline cần
type Store interface {
	PersistUnits(ctx context.Context, threadID uuid.UUID, units []repository.UnitInput) ([]models.Video, error)
	AttachTask(ctx context.Context, videoID uuid.UUID, taskID string) error
	MarkIngested(ctx context.Context, videoID uuid.UUID, blobName, blobURL string, durationSec int) (bool, error)
	InsertScriptAsset(ctx context.Context, asset *models.VideoScriptAsset) error
}

type Config struct {
	PromptTemplate string
}

type Deps struct {
	Store     Store
	Scripts   services.ScriptGenerator
	Videos    services.VideoProvider
	Poller    *Poller
	Ingestor  *Ingestor
	Narration *Narration
	Bus       events.Bus
	Log       *logger.Logger
	Clock     clock.Clock
}

type GenerateRequest struct {
	ThreadID   uuid.UUID
	Topic      string
	Difficulty string
	Sources    []string
}

type GenerateResult struct {
	ThreadID          uuid.UUID              `json:"thread_id"`
	Items             []FeedItem             `json:"items"`
	TaskIDs           []string               `json:"task_ids"`
	NarrationFailures int                    `json:"narration_failures"`
	Script            *services.ThreadScript `json:"script,omitempty"`
}

// Orchestrator điều phối: script -> lưu DB -> thuyết minh + tạo video -> poll -> ingest
type Orchestrator struct {
	store     Store
	scripts   services.ScriptGenerator
	videos    services.VideoProvider
	poller    *Poller
	ingestor  *Ingestor
	narration *Narration
	bus       events.Bus
	log       *logger.Logger
	clock     clock.Clock
	cfg       Config

	mu       sync.RWMutex
	items    map[uuid.UUID]*FeedItem
	byThread map[uuid.UUID][]uuid.UUID
	running  map[uuid.UUID]context.CancelFunc
	inFlight map[uuid.UUID]bool
	wg       sync.WaitGroup
}

func New(deps Deps, cfg Config) *Orchestrator {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Bus == nil {
		deps.Bus = events.NewLocalBus()
	}
	if deps.Poller == nil {
		deps.Poller = NewPoller(deps.Videos, deps.Clock, 0, 0)
	}
	return &Orchestrator{
		store:     deps.Store,
		scripts:   deps.Scripts,
		videos:    deps.Videos,
		poller:    deps.Poller,
		ingestor:  deps.Ingestor,
		narration: deps.Narration,
		bus:       deps.Bus,
		log:       deps.Log.With("service", "Orchestrator"),
		clock:     deps.Clock,
		cfg:       cfg,
		items:     map[uuid.UUID]*FeedItem{},
		byThread:  map[uuid.UUID][]uuid.UUID{},
		running:   map[uuid.UUID]context.CancelFunc{},
		inFlight:  map[uuid.UUID]bool{},
	}
}

// Generate chạy toàn bộ pipeline của một thread và chờ tới khi mọi item kết thúc.
// Lỗi trả về khi cả lô dừng sớm (topic rỗng, script hỏng, lưu DB lỗi); result vẫn có item.
// Lần chạy được đăng ký như Start nên Running, Cancel và Shutdown đều áp dụng.
func (o *Orchestrator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	if err := o.begin(req.ThreadID, cancel); err != nil {
		return nil, err
	}
	defer o.end(req.ThreadID)
	return o.run(runCtx, req, o.prepare(req.ThreadID))
}

// Start chạy Generate ở background với context tách khỏi request
func (o *Orchestrator) Start(ctx context.Context, req GenerateRequest) ([]FeedItem, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return nil, apierr.BadRequest(string(ReasonInvalidInput), "Missing required field: topic")
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := o.begin(req.ThreadID, cancel); err != nil {
		return nil, err
	}

	ids := o.prepare(req.ThreadID)
	go func() {
		defer o.end(req.ThreadID)
		if _, err := o.run(runCtx, req, ids); err != nil {
			o.log.Warn("generation stopped", "thread_id", req.ThreadID, "error", err)
		}
	}()
	return o.Items(req.ThreadID), nil
}

// begin đăng ký một lần chạy cho thread; mỗi thread chỉ có một lần chạy
func (o *Orchestrator) begin(threadID uuid.UUID, cancel context.CancelFunc) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.running[threadID]; ok {
		cancel()
		return ErrAlreadyRunning
	}
	o.running[threadID] = cancel
	o.wg.Add(1)
	return nil
}

func (o *Orchestrator) end(threadID uuid.UUID) {
	o.mu.Lock()
	cancel := o.running[threadID]
	delete(o.running, threadID)
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	o.wg.Done()
}

// StartUnit tạo video + thuyết minh cho một unit vừa được thêm vào thread
func (o *Orchestrator) StartUnit(ctx context.Context, topic string, video models.Video) (FeedItem, error) {
	if strings.TrimSpace(topic) == "" {
		return FeedItem{}, apierr.BadRequest(string(ReasonInvalidInput), "Missing required field: topic")
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := o.begin(video.ThreadID, cancel); err != nil {
		return FeedItem{}, err
	}

	id := o.register(video.ThreadID, video.Index, &video)
	o.apply(id, Submit{})
	go func() {
		defer o.end(video.ThreadID)
		g := new(errgroup.Group)
		g.Go(func() error {
			if n := o.narration.NarrateUnits(runCtx, video.ThreadID, []models.Video{video}); n > 0 {
				o.log.Warn("unit narration failed", "video_id", video.ID)
			}
			return nil
		})
		g.Go(func() error {
			o.runUnit(runCtx, id, video, strings.TrimSpace(topic))
			return nil
		})
		_ = g.Wait()
	}()
	it, _ := o.Item(id)
	return it, nil
}

// Cancel hủy generation đang chạy; item chưa kết thúc chuyển sang fail/canceled
func (o *Orchestrator) Cancel(threadID uuid.UUID) bool {
	o.mu.Lock()
	cancel, ok := o.running[threadID]
	ids := append([]uuid.UUID(nil), o.byThread[threadID]...)
	o.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	for _, id := range ids {
		o.apply(id, Failed{Reason: ReasonCanceled, Message: "generation canceled"})
	}
	return true
}

func (o *Orchestrator) Running(threadID uuid.UUID) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.running[threadID]
	return ok
}

func (o *Orchestrator) Items(threadID uuid.UUID) []FeedItem {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]FeedItem, 0, len(o.byThread[threadID]))
	for _, id := range o.byThread[threadID] {
		if it, ok := o.items[id]; ok {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitIndex < out[j].UnitIndex })
	return out
}

func (o *Orchestrator) Item(id uuid.UUID) (FeedItem, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	it, ok := o.items[id]
	if !ok {
		return FeedItem{}, false
	}
	return *it, true
}

func (o *Orchestrator) InFlight(videoID uuid.UUID) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.inFlight[videoID]
}

// Resume poll + ingest lại một unit đã có task nhưng chưa có blob (sau khi restart)
func (o *Orchestrator) Resume(ctx context.Context, video models.Video) error {
	if video.TaskID == nil || strings.TrimSpace(*video.TaskID) == "" {
		return fmt.Errorf("resume unit %d: %w", video.Index, services.ErrTaskRejected)
	}
	if video.Playable() {
		return nil
	}
	if !o.claim(video.ID) {
		return nil
	}
	defer o.release(video.ID)

	id := o.register(video.ThreadID, video.Index, &video)
	o.apply(id, Submit{})
	if it := o.apply(id, TaskCreated{TaskID: *video.TaskID}); it.State.Terminal() {
		return nil
	}
	o.log.Info("resuming unit", "thread_id", video.ThreadID, "unit", video.Index, "task_id", *video.TaskID)
	o.track(ctx, id, video.ID, *video.TaskID)
	return nil
}

// Shutdown hủy mọi generation và chờ goroutine thoát
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	for _, cancel := range o.running {
		cancel()
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) run(ctx context.Context, req GenerateRequest, ids []uuid.UUID) (*GenerateResult, error) {
	result := &GenerateResult{ThreadID: req.ThreadID}
	finish := func(outcome string) {
		result.Items = o.Items(req.ThreadID)
		metrics.GenerationsTotal.WithLabelValues(outcome).Inc()
		o.publish(events.TopicGlobal, events.TypeThread, payload{"thread_id": req.ThreadID, "outcome": outcome})
	}

	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		o.failAll(ids, ReasonInvalidInput, "Missing required field: topic")
		finish("invalid_input")
		return result, apierr.BadRequest(string(ReasonInvalidInput), "Missing required field: topic")
	}

	script, err := o.scripts.GenerateScript(ctx, services.ScriptRequest{
		Topic:      topic,
		Difficulty: services.NormalizeDifficulty(req.Difficulty),
		Sources:    req.Sources,
	})
	if err != nil {
		o.failAll(ids, o.reasonFor(ctx, ReasonScriptRejected), err.Error())
		finish("script_rejected")
		return result, fmt.Errorf("generate script: %w", err)
	}
	result.Script = script

	videos, err := o.store.PersistUnits(ctx, req.ThreadID, unitInputs(script))
	if err != nil {
		reason := ReasonPersistFailed
		switch {
		case errors.Is(err, repository.ErrThreadHasContent):
			reason = ReasonConflict
		case errors.Is(err, repository.ErrThreadNotFound):
			reason = ReasonInvalidInput
		}
		o.failAll(ids, o.reasonFor(ctx, reason), err.Error())
		finish(string(reason))
		return result, fmt.Errorf("persist units: %w", err)
	}
	o.bind(ids, videos)

	narrationDone := make(chan int, 1)
	go func() {
		narrationDone <- o.narration.NarrateUnits(ctx, req.ThreadID, videos)
	}()

	taskIDs := make([]string, len(videos))
	g := new(errgroup.Group)
	for i := range videos {
		i := i
		if i >= len(ids) {
			break
		}
		g.Go(func() error {
			taskIDs[i] = o.runUnit(ctx, ids[i], videos[i], topic)
			return nil
		})
	}
	_ = g.Wait()
	result.NarrationFailures = <-narrationDone

	for _, id := range taskIDs {
		if id != "" {
			result.TaskIDs = append(result.TaskIDs, id)
		}
	}
	outcome := "ready"
	for _, it := range o.Items(req.ThreadID) {
		if it.State != StateReady {
			outcome = "partial"
			break
		}
	}
	finish(outcome)
	return result, nil
}

// runUnit: chuỗi tuần tự createTask -> poll -> ingest cho một unit
func (o *Orchestrator) runUnit(ctx context.Context, id uuid.UUID, video models.Video, topic string) string {
	prompt := services.BuildVideoPrompt(o.cfg.PromptTemplate, topic, video.Title)
	taskID, err := o.videos.CreateTask(ctx, services.VideoTask{
		Prompt:      prompt,
		AspectRatio: videoAspectRatio,
		NFrames:     videoFrames,
	})
	if err != nil {
		o.apply(id, Failed{Reason: o.reasonFor(ctx, ReasonTaskRejected), Message: err.Error()})
		return ""
	}
	if it := o.apply(id, TaskCreated{TaskID: taskID}); it.State.Terminal() {
		return ""
	}
	// claim trước AttachTask: resume pass bỏ qua unit đang InFlight
	if !o.claim(video.ID) {
		return taskID
	}
	defer o.release(video.ID)
	if err := o.store.AttachTask(ctx, video.ID, taskID); err != nil {
		o.log.Warn("attach task failed", "video_id", video.ID, "task_id", taskID, "error", err)
	}
	o.track(ctx, id, video.ID, taskID)
	return taskID
}

func (o *Orchestrator) track(ctx context.Context, id, videoID uuid.UUID, taskID string) {
	st, err := o.poller.Poll(ctx, taskID, func(state string) {
		o.apply(id, ProviderProgress{State: state})
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrTimedOut):
			o.apply(id, Failed{Reason: ReasonTimedOut, Message: "Timed out waiting for video"})
		case ctx.Err() != nil:
			o.apply(id, Failed{Reason: ReasonCanceled, Message: ctx.Err().Error()})
		default:
			o.apply(id, Failed{Reason: ReasonStatusError, Message: err.Error()})
		}
		return
	}
	if st.State == services.TaskStateFail {
		o.apply(id, Failed{Reason: ReasonProviderFailed, Message: fmt.Sprintf("(%s) %s", st.FailCode, st.FailMsg)})
		return
	}

	if it := o.apply(id, ProviderSucceeded{RemoteURL: st.ResultURL}); it.State != StateUploading {
		return
	}
	obj, err := o.ingestor.Ingest(ctx, taskID, st.ResultURL)
	if err != nil {
		o.apply(id, Failed{Reason: o.reasonFor(ctx, ReasonIngestFailed), Message: err.Error()})
		return
	}
	ready, err := o.store.MarkIngested(ctx, videoID, obj.Name, obj.URL, videoDurationSec)
	if err != nil && !errors.Is(err, repository.ErrAlreadyIngested) {
		o.apply(id, Failed{Reason: ReasonIngestFailed, Message: err.Error()})
		return
	}
	it := o.apply(id, Ingested{URL: obj.URL})
	if ready {
		o.log.Info("thread ready", "thread_id", it.ThreadID)
		data := payload{"thread_id": it.ThreadID}
		o.publish(events.FeedTopic(it.ThreadID.String()), events.TypeThreadReady, data)
		o.publish(events.TopicGlobal, events.TypeThreadReady, data)
	}
}

// apply chạy reducer dưới lock; chuyển trạng thái sai chỉ được log lại
func (o *Orchestrator) apply(id uuid.UUID, ev Event) FeedItem {
	o.mu.Lock()
	cur, ok := o.items[id]
	if !ok {
		o.mu.Unlock()
		return FeedItem{}
	}
	next, err := Apply(*cur, ev)
	if err != nil {
		o.mu.Unlock()
		o.log.Debug("ignored transition", "item_id", id, "error", err)
		return next
	}
	changed := next.State != cur.State || next.ProviderState != cur.ProviderState
	next.UpdatedAt = o.clock.Now()
	*cur = next
	o.mu.Unlock()

	if changed {
		metrics.RecordTransition(string(next.State), string(next.FailReason))
		o.publish(events.FeedTopic(next.ThreadID.String()), events.TypeItem, next)
	}
	return next
}

func (o *Orchestrator) publish(topic, typ string, v interface{}) {
	ev, err := events.New(topic, typ, v)
	if err != nil {
		o.log.Warn("build event failed", "type", typ, "error", err)
		return
	}
	if err := o.bus.Publish(context.Background(), ev); err != nil {
		o.log.Warn("publish event failed", "topic", topic, "error", err)
	}
}

// prepare tạo 5 item mới cho thread (thay thế item cũ) và chuyển sang submitting
func (o *Orchestrator) prepare(threadID uuid.UUID) []uuid.UUID {
	o.mu.Lock()
	for _, id := range o.byThread[threadID] {
		delete(o.items, id)
	}
	delete(o.byThread, threadID)
	o.mu.Unlock()

	ids := make([]uuid.UUID, models.UnitsPerThread)
	for i := range ids {
		ids[i] = o.register(threadID, i+1, nil)
		o.apply(ids[i], Submit{})
	}
	return ids
}

// register thêm item idle; item cũ cùng video (nếu có) bị thay
func (o *Orchestrator) register(threadID uuid.UUID, unitIndex int, video *models.Video) uuid.UUID {
	item := &FeedItem{
		ID:        uuid.New(),
		ThreadID:  threadID,
		UnitIndex: unitIndex,
		State:     StateIdle,
		UpdatedAt: o.clock.Now(),
	}
	if video != nil {
		item.VideoID = video.ID
		item.Title = video.Title
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	ids := o.byThread[threadID][:0:0]
	for _, id := range o.byThread[threadID] {
		old := o.items[id]
		if old != nil && old.UnitIndex == unitIndex {
			delete(o.items, id)
			continue
		}
		ids = append(ids, id)
	}
	o.items[item.ID] = item
	o.byThread[threadID] = append(ids, item.ID)
	return item.ID
}

func (o *Orchestrator) bind(ids []uuid.UUID, videos []models.Video) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, v := range videos {
		if i >= len(ids) {
			break
		}
		if it, ok := o.items[ids[i]]; ok {
			it.VideoID = v.ID
			it.UnitIndex = v.Index
			it.Title = v.Title
		}
	}
}

func (o *Orchestrator) failAll(ids []uuid.UUID, reason FailReason, msg string) {
	for _, id := range ids {
		o.apply(id, Failed{Reason: reason, Message: msg})
	}
}

func (o *Orchestrator) reasonFor(ctx context.Context, fallback FailReason) FailReason {
	if ctx.Err() != nil {
		return ReasonCanceled
	}
	return fallback
}

func (o *Orchestrator) claim(videoID uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight[videoID] {
		return false
	}
	o.inFlight[videoID] = true
	return true
}

func (o *Orchestrator) release(videoID uuid.UUID) {
	o.mu.Lock()
	delete(o.inFlight, videoID)
	o.mu.Unlock()
}

func unitInputs(script *services.ThreadScript) []repository.UnitInput {
	units := make([]repository.UnitInput, len(script.Units))
	for i, u := range script.Units {
		units[i] = repository.UnitInput{
			Index:  u.Index,
			Title:  u.Title,
			Script: u.Script,
			Quiz: repository.QuizInput{
				Question:     u.Quiz.Question,
				Options:      u.Quiz.Options,
				CorrectIndex: u.Quiz.CorrectIndex,
				Explanation:  u.Quiz.Explanation,
			},
		}
	}
	return units
}

type payload map[string]interface{}
