package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/pageprobe/internal/config"
	"github.com/dgnsrekt/pageprobe/internal/notify"
	"github.com/dgnsrekt/pageprobe/internal/probe"
	"github.com/dgnsrekt/pageprobe/internal/storage"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.LoadProbe()
	if err != nil {
		fmt.Fprintln(stderr, "failed to load probe config:", err)
		return exitFailure
	}

	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	planPath := fs.String("plan", "", "YAML probe plan with selectors and click interactions")
	a11y := fs.Bool("a11y", cfg.A11y, "run the accessibility audit")
	markdown := fs.Bool("markdown", cfg.Markdown, "also write page.md")
	fullPage := fs.Bool("full-page", cfg.FullPage, "capture the full scrollable page")
	consoleCap := fs.Int("console-cap", cfg.ConsoleCap, "keep only the last N console entries")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: probe [flags] <url> [output-dir]")
		fmt.Fprintln(stderr, "flags must come before the url")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fs.Usage()
		return exitUsage
	}
	for _, arg := range fs.Args() {
		if strings.HasPrefix(arg, "-") {
			fmt.Fprintf(stderr, "flag %q given after the url\n", arg)
			fs.Usage()
			return exitUsage
		}
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile, stderr); err != nil {
		fmt.Fprintln(stderr, "logger setup failed:", err)
		return exitFailure
	}

	plan := config.DefaultPlan()
	if *planPath != "" {
		if plan, err = config.LoadPlan(*planPath); err != nil {
			fmt.Fprintln(stderr, err)
			return exitUsage
		}
	}

	opts := probe.Options{
		URL:         fs.Arg(0),
		OutputDir:   cfg.OutputDir,
		Plan:        plan,
		ConsoleCap:  *consoleCap,
		FullPage:    *fullPage,
		A11y:        *a11y,
		Markdown:    *markdown,
		SettleDelay: cfg.SettleDelay,
	}
	if fs.NArg() == 2 {
		opts.OutputDir = fs.Arg(1)
	}

	slog.Debug("probe config loaded",
		"cdp_url", cfg.CDPURL,
		"headless", cfg.Headless,
		"nav_timeout", cfg.NavTimeout,
		"idle_max", cfg.IdleMax,
		"history_dir", cfg.HistoryDir,
	)

	started := time.Now()
	res, runErr := probe.NewProberFromConfig(cfg).Run(ctx, opts, nil)

	if cfg.HistoryDir != "" {
		journal := storage.NewWriterRegistry(cfg.HistoryDir, 16, 25)
		if err := journal.Append(opts.URL, "runs", probe.NewRunRecord(opts.URL, res, runErr, started)); err != nil {
			slog.Warn("journal append failed", "error", err)
		}
		if err := journal.Close(); err != nil {
			slog.Warn("journal close failed", "error", err)
		}
	}

	if cfg.NotifyURL != "" {
		msg := notify.FailureMessage(opts.URL, runErr)
		if runErr == nil {
			msg = notify.CompletionMessage(res.Report)
		}
		nctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := notify.Send(nctx, &http.Client{Timeout: 10 * time.Second}, cfg.NotifyURL, msg); err != nil {
			slog.Warn("notification failed", "endpoint", cfg.NotifyURL, "error", err)
		}
		cancel()
	}

	if runErr != nil {
		fmt.Fprintln(stderr, "probe:", runErr)
		if errors.Is(runErr, probe.ErrUsage) {
			return exitUsage
		}
		return exitFailure
	}

	fmt.Fprintln(stdout, res.ReportPath)
	return exitOK
}

// setupLogger sends logs to stderr, keeping stdout for the report path, and to
// a rotated file when filename is set.
func setupLogger(level, filename string, console io.Writer) error {
	out := console
	if filename != "" {
		if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
			return err
		}
		out = io.MultiWriter(console, &lumberjack.Logger{
			Filename:   filename,
			MaxSize:    25,
			MaxBackups: 10,
			MaxAge:     14,
			Compress:   true,
		})
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

	h := slog.NewTextHandler(out, &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
