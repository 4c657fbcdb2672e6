//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/pageprobe/internal/config"
	"github.com/dgnsrekt/pageprobe/internal/probe"
)

func TestProbeFixturePage(t *testing.T) {
	prober := newProber(t)
	srv := newFixtureServer(t, 60)
	out := filepath.Join(t.TempDir(), "out")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	plan := &config.Plan{
		Selectors:    []config.SelectorEntry{{Name: "heading", Selector: "#heading"}, {Name: "panel", Selector: "#panel"}},
		Interactions: []config.Interaction{{Name: "open_menu", Click: "#menu", Settle: 200 * time.Millisecond}},
	}
	res, err := prober.Run(ctx, probe.Options{URL: srv.URL + "/", OutputDir: out, Plan: plan, ConsoleCap: 50, A11y: true}, nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	for _, name := range []string{probe.ScreenshotFile, probe.DOMFile, probe.DOMMetaFile, probe.ReportFile, probe.StepScreenshotFile("open_menu")} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Fatalf("artifact %s: %v", name, err)
		}
	}

	data, err := os.ReadFile(res.ReportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var report struct {
		URL           string            `json:"url"`
		Title         string            `json:"title"`
		Console       []json.RawMessage `json:"console"`
		NetworkIssues []struct {
			URL    string `json:"url"`
			Status int    `json:"status"`
		} `json:"networkIssues"`
		Steps []struct {
			Clicked bool `json:"clicked"`
		} `json:"steps"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Title != "Probe Fixture" {
		t.Fatalf("title = %q", report.Title)
	}
	if len(report.Console) != 50 {
		t.Fatalf("console entries = %d; want 50", len(report.Console))
	}
	found := false
	for _, issue := range report.NetworkIssues {
		if strings.HasSuffix(issue.URL, "/missing.png") && issue.Status == 404 {
			found = true
		}
	}
	if !found {
		t.Fatalf("networkIssues = %+v; want the 404 image", report.NetworkIssues)
	}
	if len(report.Steps) != 1 || !report.Steps[0].Clicked {
		t.Fatalf("steps = %+v", report.Steps)
	}
}

func TestProbeUnreachableWritesNothing(t *testing.T) {
	prober := newProber(t)
	out := filepath.Join(t.TempDir(), "out")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	_, err := prober.Run(ctx, probe.Options{URL: "http://127.0.0.1:1/", OutputDir: out}, nil)
	if !errors.Is(err, probe.ErrNavigation) {
		t.Fatalf("Run() error = %v; want ErrNavigation", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("output dir exists after failed navigation: %v", err)
	}
}
