package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vnkhanh/edu-reels-backend/config"
	"github.com/vnkhanh/edu-reels-backend/events"
	"github.com/vnkhanh/edu-reels-backend/logger"
	"github.com/vnkhanh/edu-reels-backend/services"
	"github.com/vnkhanh/edu-reels-backend/storage"
)

// Clients là các dịch vụ bên ngoài; test thay bằng fake
type Clients struct {
	Scripts  services.ScriptGenerator
	Cleaner  services.TextGenerator
	Videos   services.VideoProvider
	Narrator services.Narrator
	Blobs    storage.BlobStore
	Bus      events.Bus
	// HTTP dùng để tải video từ provider khi ingest
	HTTP *http.Client
}

func wireClients(ctx context.Context, cfg config.Settings, log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...", "llm", cfg.LLMProvider, "tts", cfg.TTSProvider, "blob", cfg.BlobProvider)
	var out Clients

	// LLM
	switch cfg.LLMProvider {
	case "gemini":
		g, err := services.NewGeminiScriptGenerator(cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return Clients{}, fmt.Errorf("init gemini: %w", err)
		}
		out.Scripts, out.Cleaner = g, g
	default:
		g, err := services.NewGroqScriptGenerator(cfg.GroqAPIKey, cfg.GroqBaseURL, cfg.GroqModel)
		if err != nil {
			return Clients{}, fmt.Errorf("init groq: %w", err)
		}
		out.Scripts, out.Cleaner = g, g
	}

	// Kie (Sora 2)
	kie, err := services.NewKieClient(cfg.KieBaseURL, cfg.KieAPIKey, &http.Client{Timeout: 30 * time.Second})
	if err != nil {
		return Clients{}, fmt.Errorf("init kie: %w", err)
	}
	out.Videos = kie

	// TTS: thiếu key thì tắt thuyết minh, không chặn khởi động
	switch cfg.TTSProvider {
	case "google":
		n, err := services.NewGoogleNarrator(cfg.GoogleCredentialsJSON, cfg.GoogleVoice, 1.0)
		if err != nil {
			log.Warn("narration disabled", "provider", "google", "error", err)
		} else {
			out.Narrator = n
		}
	default:
		n, err := services.NewElevenLabsNarrator(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoiceID, cfg.ElevenLabsModel, nil)
		if err != nil {
			log.Warn("narration disabled", "provider", "elevenlabs", "error", err)
		} else {
			out.Narrator = n
		}
	}

	// Blob
	switch cfg.BlobProvider {
	case "gcs":
		s, err := storage.NewGCSStore(ctx, cfg.GCSBucket, cfg.GoogleCredentialsJSON, cfg.SignedURLTTL)
		if err != nil {
			return Clients{}, fmt.Errorf("init gcs: %w", err)
		}
		out.Blobs = s
	case "memory":
		log.Warn("using in-memory blob store; media is lost on restart")
		out.Blobs = storage.NewMemoryStore("")
	default:
		s, err := storage.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket, cfg.SignedURLTTL)
		if err != nil {
			return Clients{}, fmt.Errorf("init supabase storage: %w", err)
		}
		out.Blobs = s
	}

	// Redis chỉ để chia sẻ tiến trình giữa các replica
	if cfg.RedisAddr != "" {
		b, err := events.NewRedisBus(ctx, log, cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis event bus: %w", err)
		}
		out.Bus = b
	} else {
		out.Bus = events.NewLocalBus()
	}
	return out, nil
}
