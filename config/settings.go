package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings gom toàn bộ cấu hình đọc từ biến môi trường
type Settings struct {
	Port        string
	LogMode     string
	CORSOrigins []string
	JWTSecret   string
	// Số lần generate cho phép mỗi phút trên một IP
	GenerateRate int

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	LLMProvider  string // groq | gemini
	GroqAPIKey   string
	GroqModel    string
	GroqBaseURL  string
	GeminiAPIKey string
	GeminiModel  string

	KieAPIKey  string
	KieBaseURL string

	TTSProvider           string // elevenlabs | google
	ElevenLabsAPIKey      string
	ElevenLabsVoiceID     string
	ElevenLabsModel       string
	GoogleCredentialsJSON string
	GoogleVoice           string

	BlobProvider   string // supabase | gcs
	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string
	GCSBucket      string
	SignedURLTTL   time.Duration

	PollInterval         time.Duration
	PollMaxAttempts      int
	NarrationConcurrency int
	VideoPromptTemplate  string // topic | lecture
	ResumeInterval       time.Duration

	AutoAdvanceDelay time.Duration
	QuizCooldown     time.Duration
	PlaySettleDelay  time.Duration
	SessionTTL       time.Duration
	SessionCacheSize int

	RedisAddr    string
	RedisChannel string
}

func Load() Settings {
	return Settings{
		Port:         getEnv("PORT", "8080"),
		LogMode:      getEnv("LOG_MODE", "dev"),
		CORSOrigins:  getList("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		JWTSecret:    os.Getenv("API_JWT_SECRET"),
		GenerateRate: getInt("GENERATE_RATE", 6),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		LLMProvider:  strings.ToLower(getEnv("LLM_PROVIDER", "groq")),
		GroqAPIKey:   os.Getenv("GROQ_API_KEY"),
		GroqModel:    getEnv("GROQ_MODEL", "llama-3.1-8b-instant"),
		GroqBaseURL:  getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),

		KieAPIKey:  os.Getenv("KIE_API_KEY"),
		KieBaseURL: getEnv("KIE_BASE_URL", "https://api.kie.ai"),

		TTSProvider:           strings.ToLower(getEnv("TTS_PROVIDER", "elevenlabs")),
		ElevenLabsAPIKey:      os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID:     getEnv("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		ElevenLabsModel:       getEnv("ELEVENLABS_MODEL", "eleven_turbo_v2_5"),
		GoogleCredentialsJSON: os.Getenv("GOOGLE_CREDENTIALS_JSON"),
		GoogleVoice:           getEnv("GOOGLE_TTS_VOICE", "en-US-Chirp3-HD-Puck"),

		BlobProvider:   strings.ToLower(getEnv("BLOB_PROVIDER", "supabase")),
		SupabaseURL:    os.Getenv("SUPABASE_URL"),
		SupabaseKey:    os.Getenv("SUPABASE_KEY"),
		SupabaseBucket: getEnv("SUPABASE_BUCKET", "uploads"),
		GCSBucket:      os.Getenv("GCS_BUCKET"),
		SignedURLTTL:   getDuration("SIGNED_URL_TTL", 24*time.Hour),

		PollInterval:         getDuration("POLL_INTERVAL", 3*time.Second),
		PollMaxAttempts:      getInt("POLL_MAX_ATTEMPTS", 120),
		NarrationConcurrency: getInt("NARRATION_CONCURRENCY", 2),
		VideoPromptTemplate:  strings.ToLower(getEnv("VIDEO_PROMPT_TEMPLATE", "topic")),
		ResumeInterval:       getDuration("RESUME_INTERVAL", 10*time.Minute),

		AutoAdvanceDelay: getDuration("AUTO_ADVANCE_DELAY", time.Second),
		QuizCooldown:     getDuration("QUIZ_COOLDOWN", 5*time.Second),
		PlaySettleDelay:  getDuration("PLAY_SETTLE_DELAY", 150*time.Millisecond),
		SessionTTL:       getDuration("SESSION_TTL", 2*time.Hour),
		SessionCacheSize: getInt("SESSION_CACHE_SIZE", 1024),

		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RedisChannel: getEnv("REDIS_CHANNEL", "reels-progress"),
	}
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// getDuration nhận "3s", "10m" hoặc số giây trơn
func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}

func getList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
