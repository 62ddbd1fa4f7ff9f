package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	GeminiBaseURL      string
	ImageModel         string
	VideoModel         string
	DefaultAspectRatio string
	DefaultResolution  string

	SupabaseURL        string
	SupabaseServiceKey string
	StorageBucket      string
	StoragePath        string
	StorageBaseURL     string

	DatabaseURL string

	AdminUser  string
	AdminPass  string
	AdminToken string

	PollInterval  time.Duration
	PollTimeout   time.Duration
	RetryAttempts int
	RetryDelay    time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	AllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. Admin credentials are required: the service refuses
// to start with missing secrets rather than falling back to baked-in values.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv: getEnv("APP_ENV", "development"),
		Port:   getEnv("PORT", "7002"),

		GeminiBaseURL:      getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		ImageModel:         getEnv("IMAGE_MODEL", "imagen-4.0-generate-001"),
		VideoModel:         getEnv("VIDEO_MODEL", "veo-3.0-generate-001"),
		DefaultAspectRatio: getEnv("DEFAULT_ASPECT_RATIO", "16:9"),
		DefaultResolution:  getEnv("DEFAULT_RESOLUTION", "1K"),

		SupabaseURL:        os.Getenv("SUPABASE_URL"),
		SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		StorageBucket:      getEnv("STORAGE_BUCKET", "generated-files"),
		StoragePath:        getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:     "",

		DatabaseURL: os.Getenv("DATABASE_URL"),

		AdminUser:  os.Getenv("ADMIN_USER"),
		AdminPass:  os.Getenv("ADMIN_PASS"),
		AdminToken: os.Getenv("ADMIN_TOKEN"),

		PollInterval:  getEnvDuration("POLL_INTERVAL", 8*time.Second),
		PollTimeout:   getEnvDuration("POLL_TIMEOUT", 10*time.Minute),
		RetryAttempts: getEnvInt("RETRY_ATTEMPTS", 3),
		RetryDelay:    getEnvDuration("RETRY_DELAY", 3*time.Second),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 30)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),

		AllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}
	cfg.StorageBaseURL = getEnv("STORAGE_BASE_URL", "http://localhost:"+cfg.Port+"/static")

	if cfg.AdminUser == "" {
		return nil, fmt.Errorf("ADMIN_USER is required")
	}
	if cfg.AdminPass == "" {
		return nil, fmt.Errorf("ADMIN_PASS is required")
	}
	if cfg.AdminToken == "" {
		return nil, fmt.Errorf("ADMIN_TOKEN is required")
	}
	if (cfg.SupabaseURL == "") != (cfg.SupabaseServiceKey == "") {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY must be set together")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if cfg.PollTimeout <= 0 {
		return nil, fmt.Errorf("POLL_TIMEOUT must be positive")
	}

	return cfg, nil
}

// UseSupabase reports whether the object-storage backend is configured.
func (c *Config) UseSupabase() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceKey != ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
