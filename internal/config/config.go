// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes the bot credential,
// privileged user ids, conversion limits, storage path, the periodic stats
// display targets, the optional ops HTTP server, logging and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings for the stats API.
type CORSConfig struct {
	AllowedOrigins []string
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-gif-bot")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// ConvertConfig bounds the image pipeline.
type ConvertConfig struct {
	Quality            int           // GIF_QUALITY, 1..100
	MaxFrames          int           // GIF_MAX_FRAMES, >= 1
	AttachmentMaxBytes int64         // ATTACHMENT_MAX_BYTES
	DownloadMaxBytes   int64         // DOWNLOAD_MAX_BYTES
	ProbeTimeout       time.Duration // PROBE_TIMEOUT
	DownloadTimeout    time.Duration // DOWNLOAD_TIMEOUT
	RateRPS            float64       // CONVERT_RATE_RPS, 0 disables limiting
	RateBurst          int           // CONVERT_RATE_BURST
}

// StatsDisplayConfig names the Discord surfaces refreshed by the periodic
// stats job. Empty ids are skipped.
type StatsDisplayConfig struct {
	Interval         time.Duration // STATS_INTERVAL
	UsersChannelID   string        // STATS_USERS_CHANNEL_ID
	UsageChannelID   string        // STATS_USAGE_CHANNEL_ID
	MessageChannelID string        // STATS_MESSAGE_CHANNEL_ID
	MessageID        string        // STATS_MESSAGE_ID
}

// Enabled reports whether at least one display target is configured.
func (s StatsDisplayConfig) Enabled() bool {
	return s.UsersChannelID != "" || s.UsageChannelID != "" ||
		(s.MessageChannelID != "" && s.MessageID != "")
}

// OpsConfig configures the optional ops HTTP server.
type OpsConfig struct {
	Addr      string  // OPS_ADDR, empty disables the server
	APIKey    string  // OPS_API_KEY, when set /api/v1 requires X-API-Key
	GinMode   string  // GIN_MODE debug|release|test
	RateRPS   float64 // OPS_RATE_RPS
	RateBurst int     // OPS_RATE_BURST
	CORS      CORSConfig
}

// Config holds all configuration values for the application.
type Config struct {
	// Discord
	Token         string  // DISCORD_BOT_TOKEN
	DevIDs        []int64 // DEV_ID
	CommandPrefix string  // COMMAND_PREFIX

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Storage
	DBPath string // SQLite path

	Convert ConvertConfig
	Stats   StatsDisplayConfig
	Ops     OpsConfig

	// Observability
	OTEL OTELConfig
}

// IsDev reports whether id is in the privileged developer allow-list.
func (c Config) IsDev(id int64) bool {
	for _, d := range c.DevIDs {
		if d == id {
			return true
		}
	}
	return false
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
	cfg := Config{
		Token:         strings.TrimSpace(getenv("DISCORD_BOT_TOKEN", "")),
		CommandPrefix: getenvRaw("COMMAND_PREFIX", ".dev "),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		DBPath: getenv("DB_PATH", "data/gif_bot.db"),

		Convert: ConvertConfig{
			Quality:            getint("GIF_QUALITY", 80),
			MaxFrames:          getint("GIF_MAX_FRAMES", 30),
			AttachmentMaxBytes: getint64("ATTACHMENT_MAX_BYTES", 8<<20),
			DownloadMaxBytes:   getint64("DOWNLOAD_MAX_BYTES", 25<<20),
			ProbeTimeout:       getdur("PROBE_TIMEOUT", 5*time.Second),
			DownloadTimeout:    getdur("DOWNLOAD_TIMEOUT", 30*time.Second),
			RateRPS:            getfloat("CONVERT_RATE_RPS", 0.5),
			RateBurst:          getint("CONVERT_RATE_BURST", 3),
		},

		Stats: StatsDisplayConfig{
			Interval:         getdur("STATS_INTERVAL", 30*time.Second),
			UsersChannelID:   getenv("STATS_USERS_CHANNEL_ID", ""),
			UsageChannelID:   getenv("STATS_USAGE_CHANNEL_ID", ""),
			MessageChannelID: getenv("STATS_MESSAGE_CHANNEL_ID", ""),
			MessageID:        getenv("STATS_MESSAGE_ID", ""),
		},

		Ops: OpsConfig{
			Addr:      getenv("OPS_ADDR", ""),
			APIKey:    getenv("OPS_API_KEY", ""),
			GinMode:   strings.ToLower(getenv("GIN_MODE", "release")),
			RateRPS:   getfloat("OPS_RATE_RPS", 5.0),
			RateBurst: getint("OPS_RATE_BURST", 10),
			CORS: CORSConfig{
				AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
			},
		},

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-gif-bot"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	devIDs, err := parseIDs(getenv("DEV_ID", ""))
	if err != nil {
		return cfg, err
	}
	cfg.DevIDs = devIDs

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.Ops.GinMode {
	case "debug", "release", "test":
	default:
		cfg.Ops.GinMode = "release"
	}

	// --- validation ---
	if cfg.Token == "" {
		return cfg, errors.New("DISCORD_BOT_TOKEN must be set")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.CommandPrefix) == "" {
		return cfg, errors.New("COMMAND_PREFIX must not be empty")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.Convert.Quality < 1 || cfg.Convert.Quality > 100 {
		return cfg, errors.New("GIF_QUALITY must be between 1 and 100")
	}
	if cfg.Convert.MaxFrames < 1 {
		return cfg, errors.New("GIF_MAX_FRAMES must be >= 1")
	}
	if cfg.Convert.AttachmentMaxBytes <= 0 || cfg.Convert.DownloadMaxBytes <= 0 {
		return cfg, errors.New("ATTACHMENT_MAX_BYTES and DOWNLOAD_MAX_BYTES must be > 0")
	}
	if cfg.Convert.ProbeTimeout <= 0 || cfg.Convert.DownloadTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.Convert.RateRPS < 0 || cfg.Ops.RateRPS < 0 {
		return cfg, errors.New("rate limits must be >= 0")
	}
	if cfg.Convert.RateBurst < 1 || cfg.Ops.RateBurst < 1 {
		return cfg, errors.New("rate bursts must be >= 1")
	}
	if cfg.Stats.Interval <= 0 {
		return cfg, errors.New("STATS_INTERVAL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

// getenvRaw is getenv without trimming; the command prefix keeps its
// trailing space.
func getenvRaw(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
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
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// parseIDs parses a comma-separated list of Discord snowflakes.
func parseIDs(s string) ([]int64, error) {
	parts := splitCSV(s)
	if len(parts) == 0 {
		return nil, nil
	}
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("DEV_ID: invalid user id %q", p)
		}
		out = append(out, id)
	}
	return out, nil
}
