package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vnkhanh/edu-reels-backend/events"
	"github.com/vnkhanh/edu-reels-backend/logger"
	"github.com/vnkhanh/edu-reels-backend/models"
	"github.com/vnkhanh/edu-reels-backend/orchestrator"
	"github.com/vnkhanh/edu-reels-backend/repository"
)

type FeedController struct {
	Repo   *repository.ThreadRepository
	Orch   *orchestrator.Orchestrator
	Loader *FeedLoader
	Bus    events.Bus
	Log    *logger.Logger
}

type feedSummary struct {
	ID        uuid.UUID `json:"id"`
	Label     string    `json:"label"`
	Slug      string    `json:"slug"`
	Status    string    `json:"status"`
	Running   bool      `json:"running"`
	CreatedAt time.Time `json:"created_at"`
}

func (fc *FeedController) summary(t models.Thread) feedSummary {
	return feedSummary{
		ID:        t.ID,
		Label:     t.Prompt,
		Slug:      t.Slug,
		Status:    t.Status,
		Running:   fc.Orch != nil && fc.Orch.Running(t.ID),
		CreatedAt: t.CreatedAt,
	}
}

// ListFeeds: 50 thread mới nhất
func (fc *FeedController) ListFeeds(c *gin.Context) {
	threads, err := fc.Repo.ListThreads(c.Request.Context(), 50)
	if err != nil {
		respondError(c, err)
		return
	}
	feeds := make([]feedSummary, 0, len(threads))
	for _, t := range threads {
		feeds = append(feeds, fc.summary(t))
	}
	c.JSON(http.StatusOK, gin.H{"feeds": feeds})
}

type promptRequest struct {
	Prompt *string `json:"prompt"`
	Label  *string `json:"label"`
}

func (r promptRequest) value() string {
	switch {
	case r.Prompt != nil:
		return strings.TrimSpace(*r.Prompt)
	case r.Label != nil:
		return strings.TrimSpace(*r.Label)
	}
	return ""
}

// CreateFeed tạo thread rỗng; không có prompt thì dùng "New feed"
func (fc *FeedController) CreateFeed(c *gin.Context) {
	var req promptRequest
	_ = c.ShouldBindJSON(&req)

	thread, err := fc.Repo.CreateThread(c.Request.Context(), req.value())
	if err != nil {
		respondError(c, err)
		return
	}
	fc.announce(c.Request.Context(), thread.ID, "created")
	c.JSON(http.StatusCreated, gin.H{"thread_id": thread.ID, "feed": fc.summary(*thread)})
}

func (fc *FeedController) RenameFeed(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.value() == "" {
		badRequest(c, "Missing prompt or label")
		return
	}
	thread, err := fc.Repo.RenameThread(c.Request.Context(), id, req.value())
	if err != nil {
		respondError(c, err)
		return
	}
	thread.Prompt = req.value()
	fc.announce(c.Request.Context(), id, "renamed")
	c.JSON(http.StatusOK, gin.H{"ok": true, "feed": fc.summary(*thread)})
}

// GetFeed trả về feed đã ingest (signed URL) kèm quiz thật
func (fc *FeedController) GetFeed(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	feed, err := fc.Loader.Load(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

// GetItems: tiến trình sinh video trong bộ nhớ
func (fc *FeedController) GetItems(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if _, err := fc.Repo.GetThread(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"thread_id": id,
		"running":   fc.Orch.Running(id),
		"items":     fc.Orch.Items(id),
	})
}

func (fc *FeedController) CancelGeneration(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if !fc.Orch.Cancel(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No generation running for this feed", "code": "not_running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"canceled": true, "items": fc.Orch.Items(id)})
}

type appendUnitRequest struct {
	Title  string `json:"title"`
	Script string `json:"script"`
	Quiz   struct {
		Question     string   `json:"question"`
		Options      []string `json:"options"`
		CorrectIndex *int     `json:"correct_index"`
		Explanation  string   `json:"explanation"`
	} `json:"quiz"`
	// Generate mặc định true: tạo video + thuyết minh cho unit mới
	Generate *bool `json:"generate"`
}

func (r appendUnitRequest) validate() string {
	switch {
	case strings.TrimSpace(r.Title) == "":
		return "Missing required field: title"
	case strings.TrimSpace(r.Script) == "":
		return "Missing required field: script"
	case strings.TrimSpace(r.Quiz.Question) == "":
		return "Missing required field: quiz.question"
	case len(r.Quiz.Options) != models.OptionsPerQuiz:
		return "quiz.options must be an array of 4 strings"
	case r.Quiz.CorrectIndex == nil || *r.Quiz.CorrectIndex < 0 || *r.Quiz.CorrectIndex >= models.OptionsPerQuiz:
		return "quiz.correct_index must be 0..3"
	}
	for _, o := range r.Quiz.Options {
		if strings.TrimSpace(o) == "" {
			return "quiz.options must be an array of 4 strings"
		}
	}
	return ""
}

// AppendUnit thêm một unit viết sẵn vào cuối thread
func (fc *FeedController) AppendUnit(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req appendUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		badRequest(c, msg)
		return
	}
	ctx := c.Request.Context()
	thread, err := fc.Repo.GetThread(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	generate := req.Generate == nil || *req.Generate
	if generate && fc.Orch.Running(id) {
		respondError(c, orchestrator.ErrAlreadyRunning)
		return
	}

	video, err := fc.Repo.AppendUnit(ctx, id, repository.UnitInput{
		Title:  req.Title,
		Script: req.Script,
		Quiz: repository.QuizInput{
			Question:     req.Quiz.Question,
			Options:      req.Quiz.Options,
			CorrectIndex: *req.Quiz.CorrectIndex,
			Explanation:  req.Quiz.Explanation,
		},
	})
	if err != nil {
		respondError(c, err)
		return
	}
	body := gin.H{"video": video}
	if generate {
		item, err := fc.Orch.StartUnit(ctx, thread.Prompt, *video)
		if err != nil {
			fc.Log.Warn("start unit failed", "video_id", video.ID, "error", err)
			body["generation_error"] = err.Error()
		} else {
			body["item"] = item
		}
	}
	c.JSON(http.StatusCreated, body)
}

// announce báo cho /ws/status rằng danh sách feed đổi
func (fc *FeedController) announce(ctx context.Context, threadID uuid.UUID, action string) {
	if fc.Bus == nil {
		return
	}
	ev, err := events.New(events.TopicGlobal, events.TypeThread, gin.H{"thread_id": threadID, "action": action})
	if err != nil {
		return
	}
	if err := fc.Bus.Publish(ctx, ev); err != nil {
		fc.Log.Warn("publish feed change failed", "thread_id", threadID, "error", err)
	}
}
