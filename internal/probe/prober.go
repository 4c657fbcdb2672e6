// Package probe runs a single page probe: navigate, interact, capture and
// commit the artifact set.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dgnsrekt/pageprobe/internal/a11y"
	"github.com/dgnsrekt/pageprobe/internal/browser"
	"github.com/dgnsrekt/pageprobe/internal/capture"
	"github.com/dgnsrekt/pageprobe/internal/config"
	"github.com/dgnsrekt/pageprobe/internal/dom"
	"github.com/dgnsrekt/pageprobe/internal/storage"
)

const defaultBodyWait = 5 * time.Second

// Page is the browser surface a probe needs. *browser.Session implements it.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Title(ctx context.Context) (string, error)
	Location(ctx context.Context) (string, error)
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	OuterHTML(ctx context.Context) (string, error)
	Click(ctx context.Context, selector string) error
	Snapshot(ctx context.Context, targets []dom.Target) ([]dom.ElementSnapshot, error)
	Document(ctx context.Context) (dom.DocumentInfo, error)
	AccessibilityTree(ctx context.Context) ([]a11y.Node, error)
	Close()
}

// Opener starts a page whose events are routed to rec.
type Opener func(ctx context.Context, rec *capture.Recorder) (Page, error)

// BrowserOpener opens a real browser session per run.
func BrowserOpener(opts browser.Options) Opener {
	return func(ctx context.Context, rec *capture.Recorder) (Page, error) {
		s, err := browser.Open(ctx, opts, rec)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// EventKind names a probe lifecycle event.
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventNavigated EventKind = "navigated"
	EventStep      EventKind = "step"
	EventFinished  EventKind = "finished"
	EventFailed    EventKind = "failed"
)

// Event is delivered to an Observer as the run progresses.
type Event struct {
	Kind    EventKind `json:"kind"`
	URL     string    `json:"url"`
	Step    string    `json:"step,omitempty"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// Observer receives lifecycle events. It is called synchronously and must not block.
type Observer func(Event)

// Prober runs probes. One Prober may be reused; each Run owns its own session.
type Prober struct {
	open     Opener
	recOpts  capture.RecorderOptions
	bodyWait time.Duration
	now      func() time.Time
}

func NewProber(open Opener, recOpts capture.RecorderOptions) *Prober {
	return &Prober{
		open:     open,
		recOpts:  recOpts,
		bodyWait: defaultBodyWait,
		now:      time.Now,
	}
}

// Run executes one probe. Invalid options return ErrUsage before any browser
// starts; a failed page load returns ErrNavigation and writes nothing. The
// page is closed on every path once opened.
func (p *Prober) Run(ctx context.Context, opts Options, observe Observer) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if observe == nil {
		observe = func(Event) {}
	}
	emit := func(kind EventKind, step, msg string) {
		observe(Event{Kind: kind, URL: opts.URL, Step: step, Message: msg, At: p.now().UTC()})
	}

	started := p.now()
	emit(EventStarted, "", "")
	slog.Info("probe started", "url", opts.URL, "output_dir", opts.OutputDir)

	rec := capture.NewRecorder(p.recOpts)
	defer rec.Close()

	page, err := p.open(ctx, rec)
	if err != nil {
		emit(EventFailed, "", err.Error())
		return nil, fmt.Errorf("%w: %w", ErrBrowser, err)
	}
	defer page.Close()

	if err := page.Navigate(ctx, opts.URL); err != nil {
		emit(EventFailed, "", err.Error())
		slog.Error("navigation failed", "url", opts.URL, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrNavigation, err)
	}
	emit(EventNavigated, "", "")

	c := &collector{page: page, opts: opts}
	targets := planTargets(opts.Plan)

	report := &Report{
		URL:       opts.URL,
		StartedAt: started.UTC(),
		Steps:     []Step{},
	}
	meta := DOMMetadata{}

	report.Screenshot = c.screenshot(ctx, ScreenshotFile)
	meta.Captures = append(meta.Captures, c.snapshot(ctx, "initial", targets))

	for _, in := range opts.Plan.Interactions {
		step, err := c.interact(ctx, in)
		if err != nil {
			emit(EventFailed, in.Name, err.Error())
			return nil, err
		}
		meta.Captures = append(meta.Captures, c.snapshot(ctx, in.Name, targets))
		report.Steps = append(report.Steps, step)
		emit(EventStep, in.Name, step.Error)
	}

	if title, err := page.Title(ctx); err == nil {
		report.Title = title
	} else {
		c.warn("title", err)
	}
	if loc, err := page.Location(ctx); err == nil {
		report.FinalURL = loc
	} else {
		c.warn("location", err)
	}

	doc, err := page.Document(ctx)
	if err != nil {
		c.warn("document info", err)
		meta.Document = Absent[dom.DocumentInfo](err.Error())
	} else {
		meta.Document = Some(doc)
		if report.Title == "" {
			report.Title = doc.Title
		}
	}

	html, err := page.OuterHTML(ctx)
	if err != nil {
		c.warn("dom dump", err)
		report.DOMSnapshot = Absent[string](err.Error())
	} else {
		c.add(DOMFile, []byte(html))
		report.DOMSnapshot = Some(DOMFile)
		report.DOMHash = dom.HashHTML(html)
	}

	if opts.Markdown {
		md := c.markdown(html, report.DOMSnapshot.OK(), firstNonEmpty(report.FinalURL, opts.URL))
		report.Markdown = &md
	}
	if opts.A11y {
		facts := a11y.Document{Title: doc.Title, Lang: doc.Lang}
		if !meta.Document.OK() {
			facts = a11y.Document{Title: report.Title, Unavailable: true}
		}
		audit := c.audit(ctx, facts)
		report.A11y = &audit
	}

	if err := ctx.Err(); err != nil {
		emit(EventFailed, "", err.Error())
		return nil, err
	}

	report.Console = rec.Console.Entries(opts.ConsoleCap)
	report.ConsoleTotal = rec.Console.Total()
	report.NetworkIssues = rec.Network.Issues(p.bodyWait)
	report.DOMMetadata = DOMMetaFile
	report.Warnings = c.warnings
	report.DurationMS = p.now().Sub(started).Milliseconds()

	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode dom metadata: %w", err)
	}
	c.add(DOMMetaFile, metaJSON)

	reportJSON, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	c.add(ReportFile, reportJSON)

	paths, err := storage.NewArtifactWriter(opts.OutputDir).WithOwned(ownedArtifact).Commit(c.files)
	if err != nil {
		emit(EventFailed, "", err.Error())
		return nil, fmt.Errorf("write artifacts: %w", err)
	}

	reportPath := filepath.Join(opts.OutputDir, ReportFile)
	if abs, err := filepath.Abs(reportPath); err == nil {
		reportPath = abs
	}

	emit(EventFinished, "", reportPath)
	slog.Info("probe finished",
		"url", opts.URL,
		"report", reportPath,
		"console", report.ConsoleTotal,
		"network_issues", len(report.NetworkIssues),
		"duration_ms", report.DurationMS)

	return &Result{
		Report:     report,
		OutputDir:  opts.OutputDir,
		ReportPath: reportPath,
		Artifacts:  paths,
	}, nil
}

// collector accumulates staged artifacts and non-fatal warnings for one run.
type collector struct {
	page     Page
	opts     Options
	files    []storage.File
	warnings []string
}

func (c *collector) add(name string, data []byte) {
	c.files = append(c.files, storage.File{Name: name, Data: data})
}

func (c *collector) warn(what string, err error) {
	slog.Warn("optional capture skipped", "what", what, "error", err)
	c.warnings = append(c.warnings, what+": "+err.Error())
}

func (c *collector) screenshot(ctx context.Context, name string) Maybe[string] {
	png, err := c.page.Screenshot(ctx, c.opts.FullPage)
	if err != nil {
		c.warn(name, err)
		return Absent[string](err.Error())
	}
	if len(png) == 0 {
		c.warn(name, errors.New("empty screenshot"))
		return Absent[string]("empty screenshot")
	}
	c.add(name, png)
	return Some(name)
}

func (c *collector) snapshot(ctx context.Context, step string, targets []dom.Target) CapturePoint {
	point := CapturePoint{Step: step, Elements: []dom.ElementSnapshot{}}
	if len(targets) == 0 {
		return point
	}
	elems, err := c.page.Snapshot(ctx, targets)
	if err != nil {
		c.warn("element snapshot "+step, err)
		point.Error = err.Error()
		return point
	}
	point.Elements = elems
	return point
}

// interact clicks, waits for the settle delay and screenshots. The wait and
// the screenshot happen whether or not the click landed; a missing element is
// recorded on the step and only cancellation is returned as an error.
func (c *collector) interact(ctx context.Context, in config.Interaction) (Step, error) {
	settle := in.Settle
	if settle <= 0 {
		settle = c.opts.SettleDelay
	}
	step := Step{Name: in.Name, Click: in.Click, SettleMS: settle.Milliseconds()}

	err := c.page.Click(ctx, in.Click)
	switch {
	case err == nil:
		step.Clicked = true
	case ctx.Err() != nil:
		return step, ctx.Err()
	case errors.Is(err, browser.ErrElementNotFound):
		slog.Info("interaction target not found", "step", in.Name, "selector", in.Click)
		step.Error = "element not found"
	default:
		c.warn("click "+in.Name, err)
		step.Error = err.Error()
	}

	if err := sleepContext(ctx, settle); err != nil {
		return step, err
	}
	step.Screenshot = c.screenshot(ctx, StepScreenshotFile(in.Name))
	return step, nil
}

func (c *collector) markdown(html string, ok bool, pageURL string) Maybe[string] {
	if !ok {
		return Absent[string]("dom dump unavailable")
	}
	md, err := dom.Markdown(html, pageURL)
	if err != nil {
		c.warn("markdown", err)
		return Absent[string](err.Error())
	}
	c.add(MarkdownFile, []byte(md))
	return Some(MarkdownFile)
}

func (c *collector) audit(ctx context.Context, doc a11y.Document) Maybe[a11y.Report] {
	nodes, err := c.page.AccessibilityTree(ctx)
	if err != nil {
		c.warn("accessibility audit", err)
		return Absent[a11y.Report](err.Error())
	}
	return Some(a11y.Audit(nodes, doc))
}

func planTargets(plan *config.Plan) []dom.Target {
	targets := make([]dom.Target, 0, len(plan.Selectors))
	for _, s := range plan.Selectors {
		targets = append(targets, dom.Target{Name: s.Name, Selector: s.Selector})
	}
	return targets
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
