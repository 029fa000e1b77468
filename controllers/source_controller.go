package controllers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vnkhanh/edu-reels-backend/services"
	"github.com/vnkhanh/edu-reels-backend/utils"
)

// SourceController trích text từ tài liệu (pdf/docx/txt) làm nguồn cho script
type SourceController struct {
	// Cleaner có thể nil: khi đó chỉ làm sạch bằng regex
	Cleaner services.TextGenerator
}

func (sc *SourceController) Extract(c *gin.Context) {
	input, ok := sourceInput(c)
	if !ok {
		return
	}
	raw, err := services.NormalizeInput(input)
	if errors.Is(err, services.ErrSourceTooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large", "code": "too_large"})
		return
	}
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Could not read document: " + err.Error(), "code": "extract_failed"})
		return
	}
	lines, err := services.CleanSourceText(c.Request.Context(), sc.Cleaner, raw)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": lines, "count": len(lines)})
}

// sourceInput nhận multipart "file" hoặc field "text"
func sourceInput(c *gin.Context) (services.InputSource, bool) {
	if c.Request.ContentLength > services.MaxSourceBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large", "code": "too_large"})
		return services.InputSource{}, false
	}
	if fh, err := c.FormFile("file"); err == nil {
		inputType, err := utils.GetInputTypeFromExt(strings.ToLower(filepath.Ext(fh.Filename)))
		if err != nil {
			badRequest(c, err.Error())
			return services.InputSource{}, false
		}
		return services.InputSource{Type: inputType, FileHeader: fh}, true
	}
	text := strings.TrimSpace(c.PostForm("text"))
	if text == "" {
		var body struct {
			Text string `json:"text"`
		}
		if err := c.ShouldBindJSON(&body); err == nil {
			text = strings.TrimSpace(body.Text)
		}
	}
	if text == "" {
		badRequest(c, "Provide a file (pdf, docx, txt) or text")
		return services.InputSource{}, false
	}
	return services.InputSource{Type: services.InputText, Text: text}, true
}
