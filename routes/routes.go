package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vnkhanh/edu-reels-backend/controllers"
	"github.com/vnkhanh/edu-reels-backend/middleware"
	"github.com/vnkhanh/edu-reels-backend/ws"
)

// Handlers gom các controller đã được khởi tạo trong main
type Handlers struct {
	Feeds      *controllers.FeedController
	Generation *controllers.GenerationController
	Sessions   *controllers.SessionController
	Scripts    *controllers.ScriptController
	Sources    *controllers.SourceController
	TTS        *controllers.TTSController
	Health     *controllers.HealthController
	Hub        *ws.Hub

	JWTSecret    string
	GenerateRate int
}

func SetupRouter(r *gin.Engine, h Handlers) *gin.Engine {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/health", h.Health.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := middleware.AuthMiddleware(h.JWTSecret)
	limiter := middleware.NewRateLimiter(h.GenerateRate)

	api := r.Group("/api")

	feeds := api.Group("/feeds")
	{
		feeds.GET("", h.Feeds.ListFeeds)
		feeds.POST("", auth, h.Feeds.CreateFeed)
		feeds.PATCH("/:id", auth, h.Feeds.RenameFeed)
		feeds.GET("/:id/feed", h.Feeds.GetFeed)
		feeds.GET("/:id/items", h.Feeds.GetItems)
		feeds.POST("/:id/generate", auth, limiter.Middleware(), h.Generation.GenerateForFeed)
		feeds.DELETE("/:id/generation", auth, h.Feeds.CancelGeneration)
		feeds.POST("/:id/units", auth, limiter.Middleware(), h.Feeds.AppendUnit)
		feeds.POST("/:id/sessions", h.Sessions.CreateSession)
	}

	api.POST("/generate", auth, limiter.Middleware(), h.Generation.Generate)
	api.POST("/script", auth, limiter.Middleware(), h.Scripts.GenerateScript)
	api.POST("/tts", auth, h.TTS.TextToSpeech)
	api.POST("/sources/extract", auth, h.Sources.Extract)

	sessions := api.Group("/sessions")
	{
		sessions.GET("/:sid", h.Sessions.GetSession)
		sessions.POST("/:sid/navigate", h.Sessions.Navigate)
		sessions.POST("/:sid/scroll", h.Sessions.Scroll)
		sessions.POST("/:sid/answer", h.Sessions.Answer)
		sessions.POST("/:sid/cancel-advance", h.Sessions.CancelAutoAdvance)
		sessions.POST("/:sid/mute", h.Sessions.Mute)
		sessions.DELETE("/:sid", h.Sessions.DeleteSession)
	}

	r.GET("/ws/feeds/:id", ws.FeedSocket(h.Hub, h.JWTSecret))
	r.GET("/ws/sessions/:sid", ws.SessionSocket(h.Hub, h.JWTSecret, h.Sessions.Exists))
	r.GET("/ws/status", ws.StatusSocket(h.Hub, h.JWTSecret))

	return r
}
