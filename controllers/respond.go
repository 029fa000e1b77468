package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vnkhanh/edu-reels-backend/apierr"
	"github.com/vnkhanh/edu-reels-backend/repository"
	"github.com/vnkhanh/edu-reels-backend/services"
)

// toAPIError ánh xạ lỗi tầng dưới sang HTTP status + code
func toAPIError(err error) *apierr.Error {
	switch {
	case errors.Is(err, repository.ErrThreadNotFound):
		return apierr.New(http.StatusNotFound, "thread_not_found", errors.New("Thread not found"))
	case errors.Is(err, repository.ErrVideoNotFound):
		return apierr.New(http.StatusNotFound, "video_not_found", errors.New("Video not found"))
	case errors.Is(err, repository.ErrThreadHasContent):
		return apierr.New(http.StatusConflict, "conflict", err)
	case errors.Is(err, repository.ErrThreadFull):
		return apierr.New(http.StatusConflict, "thread_full", err)
	case errors.Is(err, repository.ErrInvalidUnits):
		return apierr.New(http.StatusBadRequest, "invalid_input", err)
	}
	if pe, ok := services.IsProviderError(err); ok {
		return apierr.New(http.StatusBadGateway, "provider_error", pe)
	}
	return apierr.As(err)
}

func respondError(c *gin.Context, err error) {
	var verr *services.ScriptValidationError
	if errors.As(err, &verr) {
		body := gin.H{"error": "Model did not return valid JSON. See raw output.", "code": "script_rejected", "raw": verr.Raw}
		if len(verr.Issues) > 0 {
			body["error"] = "Model returned JSON, but it did not match the expected schema."
			body["issues"] = verr.Issues
		}
		c.JSON(http.StatusBadGateway, body)
		return
	}

	ae := toAPIError(err)
	body := gin.H{"error": ae.Error(), "code": ae.Code}
	if pe, ok := services.IsProviderError(err); ok {
		body["provider"] = pe.Provider
		if pe.Code != "" {
			body["provider_code"] = pe.Code
		}
		if pe.Status != 0 {
			body["provider_status"] = pe.Status
		}
	}
	if ae.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(ae.Status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": "invalid_input"})
}

// parseID đọc :param kiểu uuid; sai định dạng thì trả 400
func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		badRequest(c, "Invalid feed id")
		return uuid.Nil, false
	}
	return id, true
}
