package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vnkhanh/edu-reels-backend/orchestrator"
	"github.com/vnkhanh/edu-reels-backend/repository"
	"github.com/vnkhanh/edu-reels-backend/services"
)

type GenerationController struct {
	Repo  *repository.ThreadRepository
	Orch  *orchestrator.Orchestrator
	Feeds *FeedController
}

type generateRequest struct {
	Topic      string      `json:"topic"`
	Difficulty string      `json:"difficulty"`
	Sources    interface{} `json:"sources"`
}

func (r generateRequest) toOrchestrator() orchestrator.GenerateRequest {
	return orchestrator.GenerateRequest{
		Topic:      strings.TrimSpace(r.Topic),
		Difficulty: services.NormalizeDifficulty(r.Difficulty),
		Sources:    services.NormalizeSources(r.Sources),
	}
}

// Generate tạo thread mới rồi chạy pipeline ở background (202)
func (gc *GenerationController) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		badRequest(c, "Missing required field: topic")
		return
	}
	ctx := c.Request.Context()
	thread, err := gc.Repo.CreateThread(ctx, req.Topic)
	if err != nil {
		respondError(c, err)
		return
	}
	gr := req.toOrchestrator()
	gr.ThreadID = thread.ID
	items, err := gc.Orch.Start(ctx, gr)
	if err != nil {
		respondError(c, err)
		return
	}
	if gc.Feeds != nil {
		gc.Feeds.announce(ctx, thread.ID, "created")
	}
	c.JSON(http.StatusAccepted, gin.H{"thread_id": thread.ID, "items": items})
}

// GenerateForFeed chạy pipeline cho thread rỗng đã có; thiếu topic thì dùng prompt của thread
func (gc *GenerationController) GenerateForFeed(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req generateRequest
	_ = c.ShouldBindJSON(&req)

	ctx := c.Request.Context()
	thread, err := gc.Repo.GetThread(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if strings.TrimSpace(req.Topic) == "" && thread.Prompt != repository.DefaultThreadPrompt {
		req.Topic = thread.Prompt
	}
	if strings.TrimSpace(req.Topic) == "" {
		badRequest(c, "Missing required field: topic")
		return
	}
	units, err := gc.Repo.Units(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if len(units) > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Thread already has videos. Create a new thread.", "code": "conflict"})
		return
	}

	gr := req.toOrchestrator()
	gr.ThreadID = id
	items, err := gc.Orch.Start(ctx, gr)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"thread_id": id, "items": items})
}
