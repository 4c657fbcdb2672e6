package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/pageprobe/internal/api"
	"github.com/dgnsrekt/pageprobe/internal/config"
	"github.com/dgnsrekt/pageprobe/internal/netutil"
	"github.com/dgnsrekt/pageprobe/internal/probe"
	"github.com/dgnsrekt/pageprobe/internal/relay"
	"github.com/dgnsrekt/pageprobe/internal/runstore"
	"github.com/dgnsrekt/pageprobe/internal/service"
	"github.com/dgnsrekt/pageprobe/internal/storage"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		slog.Error("failed to load server config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("probe_server config loaded",
		"bind_addr", cfg.BindAddr,
		"port_auto_fallback", cfg.PortAutoFallback,
		"port_candidates", cfg.PortCandidates,
		"data_dir", cfg.DataDir,
		"history_dir", cfg.Probe.HistoryDir,
		"plan", cfg.PlanPath,
		"cdp_url", cfg.Probe.CDPURL,
		"run_timeout", cfg.RunTimeout,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	plan := config.DefaultPlan()
	if cfg.PlanPath != "" {
		if plan, err = config.LoadPlan(cfg.PlanPath); err != nil {
			slog.Error("failed to load probe plan", "path", cfg.PlanPath, "error", err)
			os.Exit(1)
		}
	}

	store, err := runstore.NewStore(filepath.Join(cfg.DataDir, "runs"))
	if err != nil {
		slog.Error("failed to create run store", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	journal := storage.NewWriterRegistry(cfg.Probe.HistoryDir, 256, 25)
	defer func() {
		if err := journal.Close(); err != nil {
			slog.Warn("journal close failed", "error", err)
		}
	}()

	broker := relay.NewBroker()
	svc := service.NewService(probe.NewProberFromConfig(cfg.Probe), store, journal, broker, service.Defaults{
		Plan:        plan,
		ConsoleCap:  cfg.Probe.ConsoleCap,
		FullPage:    cfg.Probe.FullPage,
		A11y:        cfg.Probe.A11y,
		Markdown:    cfg.Probe.Markdown,
		SettleDelay: cfg.Probe.SettleDelay,
		RunTimeout:  cfg.RunTimeout,
		NotifyURL:   cfg.Probe.NotifyURL,
	})

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to bind", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}
	addr := ln.Addr().String()

	srv := &http.Server{Handler: api.NewServer(svc, broker), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		slog.Info("probe_server listening", "addr", addr, "docs", "http://"+addr+"/docs")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("probe_server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("probe_server shutdown failed", "error", err)
	}
	slog.Info("probe_server stopped", "events_dropped", broker.Dropped())
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
