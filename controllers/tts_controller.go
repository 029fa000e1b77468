package controllers

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vnkhanh/edu-reels-backend/services"
)

type TTSController struct {
	Narrator services.Narrator
}

type TTSRequest struct {
	Text string `json:"text" binding:"required"`
}

// TextToSpeech: nghe thử thuyết minh, audio trả về dạng base64
func (tc *TTSController) TextToSpeech(c *gin.Context) {
	var req TTSRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		badRequest(c, "Missing required field: text")
		return
	}
	if tc.Narrator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Text-to-speech is not configured", "code": "tts_disabled"})
		return
	}
	audioContent, err := tc.Narrator.Synthesize(c.Request.Context(), req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"provider":      tc.Narrator.Name(),
		"duration_ms":   services.AudioDurationOrDefault(audioContent),
		"audio_content": base64.StdEncoding.EncodeToString(audioContent),
		"message":       "Text converted to speech successfully",
	})
}
