package app

import (
	"context"
	"fmt"
	"time"

	"github.com/facebookgo/clock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vnkhanh/edu-reels-backend/config"
	"github.com/vnkhanh/edu-reels-backend/controllers"
	"github.com/vnkhanh/edu-reels-backend/events"
	"github.com/vnkhanh/edu-reels-backend/logger"
	"github.com/vnkhanh/edu-reels-backend/middleware"
	"github.com/vnkhanh/edu-reels-backend/orchestrator"
	"github.com/vnkhanh/edu-reels-backend/player"
	"github.com/vnkhanh/edu-reels-backend/repository"
	"github.com/vnkhanh/edu-reels-backend/routes"
	"github.com/vnkhanh/edu-reels-backend/utils"
	"github.com/vnkhanh/edu-reels-backend/ws"
)

type App struct {
	Cfg      config.Settings
	Log      *logger.Logger
	DB       *gorm.DB
	Repo     *repository.ThreadRepository
	Clients  Clients
	Hub      *ws.Hub
	Orch     *orchestrator.Orchestrator
	Sessions *player.SessionStore
	Router   *gin.Engine

	cancel context.CancelFunc
}

// New kết nối DB, khởi tạo client bên ngoài và dựng router
func New(ctx context.Context, cfg config.Settings, log *logger.Logger) (*App, error) {
	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}
	clients, err := wireClients(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return Build(cfg, log, db, clients, clock.New()), nil
}

// Build lắp các thành phần từ DB + client có sẵn (test dùng sqlite và fake)
func Build(cfg config.Settings, log *logger.Logger, db *gorm.DB, clients Clients, clk clock.Clock) *App {
	if clients.Bus == nil {
		clients.Bus = events.NewLocalBus()
	}
	repo := repository.NewThreadRepository(db)
	hub := ws.NewHub(log)

	orch := orchestrator.New(orchestrator.Deps{
		Store:     repo,
		Scripts:   clients.Scripts,
		Videos:    clients.Videos,
		Poller:    orchestrator.NewPoller(clients.Videos, clk, cfg.PollInterval, cfg.PollMaxAttempts),
		Ingestor:  orchestrator.NewIngestor(clients.Blobs, clients.HTTP, log),
		Narration: orchestrator.NewNarration(clients.Narrator, clients.Blobs, repo, cfg.NarrationConcurrency, log),
		Bus:       clients.Bus,
		Log:       log,
		Clock:     clk,
	}, orchestrator.Config{PromptTemplate: cfg.VideoPromptTemplate})

	bus := clients.Bus
	sessions := player.NewSessionStore(cfg.SessionCacheSize, cfg.SessionTTL, clk, player.Options{
		AutoAdvanceDelay:    cfg.AutoAdvanceDelay,
		Cooldown:            cfg.QuizCooldown,
		SettleDelay:         cfg.PlaySettleDelay,
		CooldownDisablesAll: true,
	}, func(sid string, ev player.Event) {
		e, err := events.New(events.SessionTopic(sid), events.TypePlayer, ev)
		if err != nil {
			return
		}
		if err := bus.Publish(context.Background(), e); err != nil {
			log.Warn("publish player event failed", "session_id", sid, "error", err)
		}
	})

	loader := &controllers.FeedLoader{Repo: repo, Blobs: clients.Blobs, Running: orch.Running, Log: log}
	feeds := &controllers.FeedController{Repo: repo, Orch: orch, Loader: loader, Bus: bus, Log: log}
	handlers := routes.Handlers{
		Feeds:        feeds,
		Generation:   &controllers.GenerationController{Repo: repo, Orch: orch, Feeds: feeds},
		Sessions:     &controllers.SessionController{Sessions: sessions, Loader: loader},
		Scripts:      &controllers.ScriptController{Scripts: clients.Scripts},
		Sources:      &controllers.SourceController{Cleaner: clients.Cleaner},
		TTS:          &controllers.TTSController{Narrator: clients.Narrator},
		Health:       &controllers.HealthController{DB: db, Hub: hub, Sessions: sessions},
		Hub:          hub,
		JWTSecret:    cfg.JWTSecret,
		GenerateRate: cfg.GenerateRate,
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Auth-Token", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	routes.SetupRouter(r, handlers)

	return &App{
		Cfg:      cfg,
		Log:      log,
		DB:       db,
		Repo:     repo,
		Clients:  clients,
		Hub:      hub,
		Orch:     orch,
		Sessions: sessions,
		Router:   r,
	}
}

// Start nối bus với ws hub và bật resume job
func (a *App) Start(ctx context.Context) error {
	if a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.Clients.Bus.StartForwarder(ctx, a.Hub.Deliver); err != nil {
		cancel()
		a.cancel = nil
		return fmt.Errorf("start event forwarder: %w", err)
	}
	utils.StartResumeJob(ctx, a.Cfg.ResumeInterval, a.Repo, a.Orch, a.Log)
	return nil
}

// Shutdown dừng generation, đóng session và bus
func (a *App) Shutdown(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	err := a.Orch.Shutdown(ctx)
	a.Sessions.Close()
	if cerr := a.Clients.Bus.Close(); cerr != nil && err == nil {
		err = cerr
	}
	a.Log.Sync()
	return err
}
