package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	Port      string
	LogMode   string
	Database  string
	UploadDir string

	CohereKey      string
	CohereEndpoint string

	HuggingFaceKey      string
	HuggingFaceEndpoint string

	OpenAIKey             string
	OpenAIEndpoint        string
	OpenAIModel           string
	OpenAITranscribeModel string

	ZAIKey     string
	ZAIBaseURL string
	ZAIModel   string

	RedisAddr string
	CacheTTL  time.Duration

	JWTSecret string

	PaystackSecretKey   string
	PaystackBaseURL     string
	PaystackCallbackURL string
	MonthlyAmount       int64
	YearlyAmount        int64

	CORSOrigins []string
}

// Load reads configuration from the environment, providing sensible defaults.
func Load() Config {
	// Load .env file if it exists (useful for development)
	_ = godotenv.Load()
	cfg := Config{
		Port:      getEnv("PORT", "8080"),
		LogMode:   getEnv("LOG_MODE", "dev"),
		Database:  getEnv("DATABASE_PATH", "./data/flashcards.db"),
		UploadDir: getEnv("UPLOAD_DIR", "./static/uploads"),

		CohereKey:      os.Getenv("COHERE_API_KEY"),
		CohereEndpoint: getEnv("COHERE_ENDPOINT", "https://api.cohere.com"),

		HuggingFaceKey:      os.Getenv("HUGGING_FACE_API_KEY"),
		HuggingFaceEndpoint: getEnv("HUGGING_FACE_ENDPOINT", "https://api-inference.huggingface.co/models/"),

		OpenAIKey:             os.Getenv("OPENAI_API_KEY"),
		OpenAIEndpoint:        getEnv("OPENAI_API_ENDPOINT", "https://api.openai.com/v1"),
		OpenAIModel:           getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAITranscribeModel: getEnv("OPENAI_TRANSCRIBE_MODEL", "whisper-1"),

		ZAIKey:     os.Getenv("Z_AI_API_KEY"),
		ZAIBaseURL: getEnv("Z_AI_BASE_URL", "https://open.bigmodel.cn/api/paas/v4/"),
		ZAIModel:   getEnv("Z_AI_VISION_MODEL", "glm-4.5v"),

		RedisAddr: os.Getenv("REDIS_ADDR"),
		CacheTTL:  getDuration("CACHE_TTL", 5*time.Minute),

		JWTSecret: os.Getenv("JWT_SECRET"),

		PaystackSecretKey:   os.Getenv("PAYSTACK_SECRET_KEY"),
		PaystackBaseURL:     getEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
		PaystackCallbackURL: getEnv("PAYSTACK_CALLBACK_URL", "http://localhost:8080/?payment=verify"),
		MonthlyAmount:       getInt("PREMIUM_MONTHLY_AMOUNT", 2000),
		YearlyAmount:        getInt("PREMIUM_YEARLY_AMOUNT", 20000),

		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatalf("failed to ensure upload dir %s: %v", cfg.UploadDir, err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o755); err != nil {
		log.Fatalf("failed to ensure database dir %s: %v", cfg.Database, err)
	}

	return cfg
}

// IsConfiguredKey reports whether a credential is present and is not a
// template placeholder such as YOUR_COHERE_API_KEY_HERE.
func IsConfiguredKey(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	upper := strings.ToUpper(key)
	if strings.HasPrefix(upper, "YOUR_") && strings.HasSuffix(upper, "_HERE") {
		return false
	}
	return upper != "CHANGEME" && upper != "TODO"
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int64) int64 {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		log.Printf("ignoring invalid %s=%q", key, raw)
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Printf("ignoring invalid %s=%q", key, raw)
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
