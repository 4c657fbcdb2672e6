package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ProbeConfig holds all configuration for a single probe run.
type ProbeConfig struct {
	// Output settings
	OutputDir  string
	HistoryDir string

	// Browser settings
	CDPURL       string
	ExecPath     string
	Headless     bool
	WindowWidth  int
	WindowHeight int

	// Timing bounds
	NavTimeout      time.Duration
	IdleQuiet       time.Duration
	IdleMax         time.Duration
	IdleMaxInflight int
	SettleDelay     time.Duration
	ElementTimeout  time.Duration

	// Capture behavior
	ConsoleCap   int
	ErrorStatus  int
	BodyMaxBytes int
	A11y         bool
	Markdown     bool
	FullPage     bool

	NotifyURL string
	LogLevel  string
	LogFile   string
}

// LoadProbe reads probe configuration from environment variables and optional .env file.
func LoadProbe() (*ProbeConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	width, height := parseWindowSize(getEnvOrDefault("PROBE_WINDOW_SIZE", "1366,900"))

	cfg := &ProbeConfig{
		OutputDir:       getEnvOrDefault("PROBE_OUTPUT_DIR", "./probe_output"),
		HistoryDir:      getEnvOrDefault("PROBE_HISTORY_DIR", ""),
		CDPURL:          getEnvOrDefault("PROBE_CDP_URL", ""),
		ExecPath:        getEnvOrDefault("PROBE_CHROME_PATH", ""),
		Headless:        getEnvBoolOrDefault("PROBE_HEADLESS", true),
		WindowWidth:     width,
		WindowHeight:    height,
		NavTimeout:      getEnvMillisOrDefault("PROBE_NAV_TIMEOUT_MS", 30000),
		IdleQuiet:       getEnvMillisOrDefault("PROBE_IDLE_QUIET_MS", 500),
		IdleMax:         getEnvMillisOrDefault("PROBE_IDLE_MAX_MS", 10000),
		IdleMaxInflight: getEnvIntOrDefault("PROBE_IDLE_MAX_INFLIGHT", 2),
		SettleDelay:     getEnvMillisOrDefault("PROBE_SETTLE_MS", 800),
		ElementTimeout:  getEnvMillisOrDefault("PROBE_ELEMENT_TIMEOUT_MS", 3000),
		ConsoleCap:      getEnvIntOrDefault("PROBE_CONSOLE_CAP", 50),
		ErrorStatus:     getEnvIntOrDefault("PROBE_ERROR_STATUS", 400),
		BodyMaxBytes:    getEnvIntOrDefault("PROBE_BODY_MAX_BYTES", 2048),
		A11y:            getEnvBoolOrDefault("PROBE_A11Y", false),
		Markdown:        getEnvBoolOrDefault("PROBE_MARKDOWN", false),
		FullPage:        getEnvBoolOrDefault("PROBE_FULL_PAGE", true),
		NotifyURL:       getEnvOrDefault("PROBE_NOTIFY_URL", ""),
		LogLevel:        strings.ToLower(getEnvOrDefault("PROBE_LOG_LEVEL", "info")),
		LogFile:         getEnvOrDefault("PROBE_LOG_FILE", "logs/probe.log"),
	}
	cfg.clamp()

	return cfg, nil
}

func (c *ProbeConfig) clamp() {
	if c.NavTimeout < time.Second {
		c.NavTimeout = time.Second
	}
	if c.ConsoleCap < 0 {
		c.ConsoleCap = 0
	}
	if c.ErrorStatus < 100 {
		c.ErrorStatus = 400
	}
	if c.IdleMaxInflight < 0 {
		c.IdleMaxInflight = 0
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
}

// parseWindowSize parses "W,H"; malformed values fall back to 1366x900.
func parseWindowSize(raw string) (int, int) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return 1366, 900
	}
	w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 1366, 900
	}
	return w, h
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvMillisOrDefault(key string, defaultMS int) time.Duration {
	return time.Duration(getEnvIntOrDefault(key, defaultMS)) * time.Millisecond
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
