package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port       string
	GinMode    string
	Env        string
	StaticRoot string

	Database DatabaseConfig
	Backend  BackendConfig
	Gemini   GeminiConfig
	Pipeline PipelineConfig
	Log      LogConfig
	Redis    RedisConfig
	SMTP     SMTPConfig
	Alert    AlertConfig
	HTTP     HTTPConfig
}

type DatabaseConfig struct {
	Enabled bool
	URL     string
}

// BackendConfig points at the REST backend that serves ECG/EEG samples, chat,
// health analysis and document scanning. An empty URL switches the vitals
// sources to the built-in synthetic feed.
type BackendConfig struct {
	URL     string
	Timeout time.Duration
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

type PipelineConfig struct {
	PollInterval    time.Duration
	BufferCapacity  int
	RefreshInterval time.Duration
	RecommendDelay  time.Duration
}

type LogConfig struct {
	FilePath string
	Level    string
}

type RedisConfig struct {
	URL     string
	Channel string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
}

type AlertConfig struct {
	EmergencyContact string
	PatientName      string
	SOSPerMinute     int
}

type HTTPConfig struct {
	CORSOrigin   string
	ChatCacheTTL time.Duration
	ChatPerSec   int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:       getEnv("PORT", "8080"),
		GinMode:    getEnv("GIN_MODE", "release"),
		Env:        getEnv("APP_ENV", "development"),
		StaticRoot: os.Getenv("STATIC_ROOT"),
		Database: DatabaseConfig{
			Enabled: getEnvBool("ENABLE_DB", false),
			URL:     os.Getenv("DATABASE_URL"),
		},
		Backend: BackendConfig{
			URL:     strings.TrimRight(os.Getenv("BACKEND_URL"), "/"),
			Timeout: getEnvDuration("BACKEND_TIMEOUT", 10*time.Second),
		},
		Gemini: GeminiConfig{
			APIKey:  os.Getenv("GEMINI_API_KEY"),
			Model:   getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
			BaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			Timeout: getEnvDuration("GEMINI_TIMEOUT", 30*time.Second),
		},
		Pipeline: PipelineConfig{
			PollInterval:    getEnvDuration("POLL_INTERVAL", time.Second),
			BufferCapacity:  getEnvInt("BUFFER_CAPACITY", 100),
			RefreshInterval: getEnvDuration("REFRESH_INTERVAL", 30*time.Second),
			RecommendDelay:  getEnvDuration("RECOMMEND_DELAY", 2*time.Second),
		},
		Log: LogConfig{
			FilePath: getEnv("LOG_FILE_PATH", "logs/vitalwatch.log"),
			Level:    getEnv("LOG_LEVEL", "info"),
		},
		Redis: RedisConfig{
			URL:     os.Getenv("REDIS_URL"),
			Channel: getEnv("REDIS_CHANNEL", "vitalwatch:dashboard"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			Sender:   getEnv("SMTP_SENDER", "alerts@vitalwatch.local"),
		},
		Alert: AlertConfig{
			EmergencyContact: os.Getenv("EMERGENCY_CONTACT"),
			PatientName:      getEnv("PATIENT_NAME", "The patient"),
			SOSPerMinute:     getEnvInt("SOS_RATE_PER_MINUTE", 2),
		},
		HTTP: HTTPConfig{
			CORSOrigin:   getEnv("CORS_ORIGIN", "http://localhost:5173"),
			ChatCacheTTL: getEnvDuration("CHAT_CACHE_TTL", 10*time.Minute),
			ChatPerSec:   getEnvInt("CHAT_RATE_PER_SECOND", 5),
		},
	}

	if cfg.Database.Enabled && cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when ENABLE_DB=true")
	}
	if cfg.Pipeline.BufferCapacity <= 0 {
		return nil, fmt.Errorf("BUFFER_CAPACITY must be positive, got %d", cfg.Pipeline.BufferCapacity)
	}
	if cfg.Pipeline.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL must be positive, got %s", cfg.Pipeline.PollInterval)
	}

	return cfg, nil
}

// SyntheticFeed reports whether vitals come from the in-process generator
// rather than the remote backend.
func (c *Config) SyntheticFeed() bool {
	return c.Backend.URL == ""
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("1500ms") or bare milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(val); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
