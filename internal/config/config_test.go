package config

import (
	"testing"
	"time"
)

func TestLoadProbeDefaults(t *testing.T) {
	cfg, err := LoadProbe()
	if err != nil {
		t.Fatalf("LoadProbe() error = %v", err)
	}
	if cfg.OutputDir != "./probe_output" {
		t.Fatalf("OutputDir = %q, want %q", cfg.OutputDir, "./probe_output")
	}
	if cfg.ConsoleCap != 50 {
		t.Fatalf("ConsoleCap = %d, want 50", cfg.ConsoleCap)
	}
	if cfg.ErrorStatus != 400 {
		t.Fatalf("ErrorStatus = %d, want 400", cfg.ErrorStatus)
	}
	if cfg.NavTimeout != 30*time.Second {
		t.Fatalf("NavTimeout = %v, want 30s", cfg.NavTimeout)
	}
	if cfg.WindowWidth != 1366 || cfg.WindowHeight != 900 {
		t.Fatalf("window = %dx%d, want 1366x900", cfg.WindowWidth, cfg.WindowHeight)
	}
	if !cfg.Headless || !cfg.FullPage || cfg.A11y {
		t.Fatalf("unexpected bool defaults: headless=%v full_page=%v a11y=%v", cfg.Headless, cfg.FullPage, cfg.A11y)
	}
}

func TestLoadProbeOverrides(t *testing.T) {
	t.Setenv("PROBE_OUTPUT_DIR", "/tmp/out")
	t.Setenv("PROBE_CONSOLE_CAP", "10")
	t.Setenv("PROBE_SETTLE_MS", "250")
	t.Setenv("PROBE_A11Y", "true")
	t.Setenv("PROBE_WINDOW_SIZE", "800, 600")
	t.Setenv("PROBE_LOG_LEVEL", "DEBUG")

	cfg, err := LoadProbe()
	if err != nil {
		t.Fatalf("LoadProbe() error = %v", err)
	}
	if cfg.OutputDir != "/tmp/out" {
		t.Fatalf("OutputDir = %q", cfg.OutputDir)
	}
	if cfg.ConsoleCap != 10 {
		t.Fatalf("ConsoleCap = %d, want 10", cfg.ConsoleCap)
	}
	if cfg.SettleDelay != 250*time.Millisecond {
		t.Fatalf("SettleDelay = %v, want 250ms", cfg.SettleDelay)
	}
	if !cfg.A11y {
		t.Fatalf("A11y = false, want true")
	}
	if cfg.WindowWidth != 800 || cfg.WindowHeight != 600 {
		t.Fatalf("window = %dx%d, want 800x600", cfg.WindowWidth, cfg.WindowHeight)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadProbeClampsInvalidValues(t *testing.T) {
	t.Setenv("PROBE_NAV_TIMEOUT_MS", "10")
	t.Setenv("PROBE_CONSOLE_CAP", "-4")
	t.Setenv("PROBE_ERROR_STATUS", "7")
	t.Setenv("PROBE_WINDOW_SIZE", "wide")

	cfg, err := LoadProbe()
	if err != nil {
		t.Fatalf("LoadProbe() error = %v", err)
	}
	if cfg.NavTimeout != time.Second {
		t.Fatalf("NavTimeout = %v, want 1s", cfg.NavTimeout)
	}
	if cfg.ConsoleCap != 0 {
		t.Fatalf("ConsoleCap = %d, want 0", cfg.ConsoleCap)
	}
	if cfg.ErrorStatus != 400 {
		t.Fatalf("ErrorStatus = %d, want 400", cfg.ErrorStatus)
	}
	if cfg.WindowWidth != 1366 || cfg.WindowHeight != 900 {
		t.Fatalf("window = %dx%d, want fallback 1366x900", cfg.WindowWidth, cfg.WindowHeight)
	}
}

func TestLoadServerDefaults(t *testing.T) {
	t.Setenv("PROBE_SERVER_PORT_CANDIDATES", "127.0.0.1:9001, ,127.0.0.1:9002")

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer() error = %v", err)
	}
	if cfg.BindAddr != "127.0.0.1:8190" {
		t.Fatalf("BindAddr = %q", cfg.BindAddr)
	}
	if len(cfg.PortCandidates) != 2 || cfg.PortCandidates[1] != "127.0.0.1:9002" {
		t.Fatalf("PortCandidates = %v", cfg.PortCandidates)
	}
	if cfg.Probe.HistoryDir != "./probe_runs/history" {
		t.Fatalf("HistoryDir = %q, want ./probe_runs/history", cfg.Probe.HistoryDir)
	}
}

func TestLoadServerOverrides(t *testing.T) {
	t.Setenv("PROBE_HISTORY_DIR", "")
	t.Setenv("PROBE_SERVER_DATA_DIR", "/tmp/probe-data")
	t.Setenv("PROBE_SERVER_RUN_TIMEOUT_MS", "5000")
	t.Setenv("PROBE_SERVER_PORT_CANDIDATES", "127.0.0.1:9001, 127.0.0.1:9002")

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer() error = %v", err)
	}
	if cfg.Probe.HistoryDir != "/tmp/probe-data/history" {
		t.Fatalf("HistoryDir = %q; want /tmp/probe-data/history", cfg.Probe.HistoryDir)
	}
	if cfg.RunTimeout != 5*time.Second {
		t.Fatalf("RunTimeout = %v; want 5s", cfg.RunTimeout)
	}
	if len(cfg.PortCandidates) != 2 || cfg.PortCandidates[1] != "127.0.0.1:9002" {
		t.Fatalf("PortCandidates = %v", cfg.PortCandidates)
	}
}
