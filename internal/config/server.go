package config

import (
	"strings"
	"time"
)

// ServerConfig holds configuration for the probe control API.
type ServerConfig struct {
	Probe *ProbeConfig

	BindAddr         string
	PortAutoFallback bool
	PortCandidates   []string
	DataDir          string
	PlanPath         string
	RunTimeout       time.Duration
	LogLevel         string
	LogFile          string
}

// LoadServer reads server configuration from environment variables.
// It delegates probe settings to LoadProbe so both binaries share them.
func LoadServer() (*ServerConfig, error) {
	probeCfg, err := LoadProbe()
	if err != nil {
		return nil, err
	}

	cfg := &ServerConfig{
		Probe:            probeCfg,
		BindAddr:         getEnvOrDefault("PROBE_SERVER_BIND_ADDR", "127.0.0.1:8190"),
		PortAutoFallback: getEnvBoolOrDefault("PROBE_SERVER_PORT_FALLBACK", true),
		PortCandidates:   getEnvListOrDefault("PROBE_SERVER_PORT_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192"}),
		DataDir:          getEnvOrDefault("PROBE_SERVER_DATA_DIR", "./probe_runs"),
		PlanPath:         getEnvOrDefault("PROBE_SERVER_PLAN", ""),
		RunTimeout:       getEnvMillisOrDefault("PROBE_SERVER_RUN_TIMEOUT_MS", 120000),
		LogLevel:         strings.ToLower(getEnvOrDefault("PROBE_SERVER_LOG_LEVEL", probeCfg.LogLevel)),
		LogFile:          getEnvOrDefault("PROBE_SERVER_LOG_FILE", "logs/probe_server.log"),
	}
	if cfg.Probe.HistoryDir == "" {
		cfg.Probe.HistoryDir = cfg.DataDir + "/history"
	}
	return cfg, nil
}
