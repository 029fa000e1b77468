package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vnkhanh/edu-reels-backend/services"
)

// ScriptController chỉ sinh + kiểm tra script, không lưu DB
type ScriptController struct {
	Scripts services.ScriptGenerator
}

func (sc *ScriptController) GenerateScript(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		badRequest(c, "Missing required field: topic")
		return
	}
	script, err := sc.Scripts.GenerateScript(c.Request.Context(), services.ScriptRequest{
		Topic:      strings.TrimSpace(req.Topic),
		Difficulty: services.NormalizeDifficulty(req.Difficulty),
		Sources:    services.NormalizeSources(req.Sources),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, script)
}
