package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vnkhanh/edu-reels-backend/player"
	"github.com/vnkhanh/edu-reels-backend/ws"
)

type HealthController struct {
	DB       *gorm.DB
	Hub      *ws.Hub
	Sessions *player.SessionStore
}

func (hc *HealthController) HealthCheck(c *gin.Context) {
	response := gin.H{
		"status":    "ok",
		"message":   "Service is healthy",
		"timestamp": time.Now().Unix(),
		"db":        "ok",
		"websocket": gin.H{
			"enabled": hc.Hub != nil,
		},
	}
	if hc.Hub != nil {
		response["websocket"] = gin.H{"enabled": true, "stats": hc.Hub.GetStats()}
	}
	if hc.Sessions != nil {
		response["sessions"] = hc.Sessions.Len()
	}

	// Thử ping database
	sqlDB, err := hc.DB.DB()
	if err != nil {
		response["db"] = "error: cannot get DB instance"
		response["status"] = "degraded"
		c.JSON(http.StatusInternalServerError, response)
		return
	}
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		response["db"] = "error: cannot connect to DB"
		response["status"] = "degraded"
		c.JSON(http.StatusInternalServerError, response)
		return
	}
	c.JSON(http.StatusOK, response)
}
