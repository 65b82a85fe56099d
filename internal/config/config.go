// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as the Telegram and Mistral credentials, storage paths, the ops HTTP
// server, logging, and observability.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// TelegramConfig defines the bot transport settings.
type TelegramConfig struct {
	Token          string        // BOT_TOKEN (required)
	AdminUserID    int64         // ADMIN_USER_ID (0 = no admin commands)
	PollTimeout    time.Duration // long-poll timeout per getUpdates call
	UpdateWorkers  int           // concurrent update handlers
	DownloadLimit  int           // max photo download size, bytes
	DebugAPILog    bool          // verbose Bot API logging
}

// MistralConfig defines the LLM client settings.
type MistralConfig struct {
	APIKey      string  // MISTRAL_API_KEY (required)
	BaseURL     string  // MISTRAL_BASE_URL
	TextModel   string  // MISTRAL_TEXT_MODEL
	VisionModel string  // MISTRAL_VISION_MODEL
	RPS         float64 // MISTRAL_RPS (0 = unlimited)
}

// CalendarConfig defines the Google Calendar integration settings.
type CalendarConfig struct {
	Enabled    bool   // CALENDAR_ENABLED
	CalendarID string // CALENDAR_ID
	Timezone   string // TIMEZONE (IANA name)
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Ops HTTP server (healthz, metrics)
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	GinMode           string        // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Storage. All paths default to files under DataDir.
	DataDir   string // DATA_DIR
	DBPath    string // DB_PATH
	StatePath string // STATE_PATH (conversation state snapshot)
	TokenPath string // GOOGLE_TOKEN_PATH (calendar OAuth token)

	// Conversation state
	StateDebounce time.Duration // STATE_DEBOUNCE

	Telegram TelegramConfig
	Mistral  MistralConfig
	Calendar CalendarConfig
	OTEL     OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	dataDir := getenv("DATA_DIR", "data")

	cfg := Config{
		// Ops HTTP server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// Storage
		DataDir:   dataDir,
		DBPath:    getenv("DB_PATH", filepath.Join(dataDir, "homework.db")),
		StatePath: getenv("STATE_PATH", filepath.Join(dataDir, "fsm.json")),
		TokenPath: getenv("GOOGLE_TOKEN_PATH", filepath.Join(dataDir, "token.json")),

		StateDebounce: getdur("STATE_DEBOUNCE", 300*time.Millisecond),

		Telegram: TelegramConfig{
			Token:         getenv("BOT_TOKEN", ""),
			AdminUserID:   getint64("ADMIN_USER_ID", 0),
			PollTimeout:   getdur("POLL_TIMEOUT", 30*time.Second),
			UpdateWorkers: getint("UPDATE_WORKERS", 4),
			DownloadLimit: getint("DOWNLOAD_LIMIT", 10<<20),
			DebugAPILog:   getbool("BOT_DEBUG", false),
		},

		Mistral: MistralConfig{
			APIKey:      getenv("MISTRAL_API_KEY", ""),
			BaseURL:     getenv("MISTRAL_BASE_URL", ""),
			TextModel:   getenv("MISTRAL_TEXT_MODEL", ""),
			VisionModel: getenv("MISTRAL_VISION_MODEL", ""),
			RPS:         getfloat("MISTRAL_RPS", 1.0),
		},

		Calendar: CalendarConfig{
			Enabled:    getbool("CALENDAR_ENABLED", true),
			CalendarID: getenv("CALENDAR_ID", "primary"),
			Timezone:   getenv("TIMEZONE", "Europe/Moscow"),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-homework-bot"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return cfg, errors.New("BOT_TOKEN must not be empty")
	}
	if strings.TrimSpace(cfg.Mistral.APIKey) == "" {
		return cfg, errors.New("MISTRAL_API_KEY must not be empty")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.StatePath) == "" {
		return cfg, errors.New("STATE_PATH must not be empty")
	}
	if cfg.StateDebounce < 0 {
		return cfg, errors.New("STATE_DEBOUNCE must be >= 0")
	}
	if cfg.Telegram.PollTimeout <= 0 {
		return cfg, errors.New("POLL_TIMEOUT must be > 0")
	}
	if cfg.Telegram.UpdateWorkers < 1 {
		return cfg, errors.New("UPDATE_WORKERS must be >= 1")
	}
	if cfg.Telegram.DownloadLimit <= 0 {
		return cfg, errors.New("DOWNLOAD_LIMIT must be > 0")
	}
	if cfg.Mistral.RPS < 0 {
		return cfg, errors.New("MISTRAL_RPS must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
