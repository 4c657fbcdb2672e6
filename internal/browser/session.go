// Package browser drives a single Chromium tab over the DevTools protocol for
// the duration of one probe.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/accessibility"
	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/pageprobe/internal/a11y"
	"github.com/dgnsrekt/pageprobe/internal/capture"
	"github.com/dgnsrekt/pageprobe/internal/dom"
)

// ErrElementNotFound is returned by Click when no element matches the selector
// within the element timeout.
var ErrElementNotFound = errors.New("element not found")

const (
	bodyFetchTimeout = 10 * time.Second
	opTimeout        = 30 * time.Second
	pollInterval     = 100 * time.Millisecond
)

// Options configures how the browser is obtained and how long page operations may take.
type Options struct {
	CDPURL       string
	ExecPath     string
	Headless     bool
	WindowWidth  int
	WindowHeight int

	NavigateTimeout time.Duration
	IdleQuiet       time.Duration
	IdleMax         time.Duration
	IdleMaxInflight int
	ElementTimeout  time.Duration
}

func (o *Options) defaults() {
	if o.WindowWidth <= 0 || o.WindowHeight <= 0 {
		o.WindowWidth, o.WindowHeight = 1366, 900
	}
	if o.NavigateTimeout <= 0 {
		o.NavigateTimeout = 30 * time.Second
	}
	if o.IdleQuiet <= 0 {
		o.IdleQuiet = 500 * time.Millisecond
	}
	if o.IdleMax <= 0 {
		o.IdleMax = 10 * time.Second
	}
	if o.ElementTimeout <= 0 {
		o.ElementTimeout = 3 * time.Second
	}
}

// Session is one browser tab with its event recorder attached.
type Session struct {
	opts Options
	rec  *capture.Recorder

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	closeOnce sync.Once
}

// Open launches (or attaches to) a browser, opens a tab and routes its events to rec.
// The returned session must be closed by the caller.
func Open(ctx context.Context, opts Options, rec *capture.Recorder) (*Session, error) {
	opts.defaults()

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if opts.CDPURL != "" {
		slog.Info("connecting to browser", "url", opts.CDPURL)
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, opts.CDPURL)
	} else {
		execPath := opts.ExecPath
		if execPath == "" {
			detected, err := DetectBrowser()
			if err != nil {
				return nil, err
			}
			execPath = detected
		}
		slog.Info("launching browser", "path", execPath, "headless", opts.Headless)
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, execAllocatorOptions(opts, execPath)...)
	}

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	s := &Session{
		opts:        opts,
		rec:         rec,
		ctx:         tabCtx,
		cancel:      tabCancel,
		allocCancel: allocCancel,
	}

	if rec != nil {
		chromedp.ListenTarget(tabCtx, rec.Handle)
		rec.SetBodyFetcher(s.fetchBody)
	}

	// The first Run starts the browser and binds it to tabCtx, so it must not
	// use a shorter-lived child context.
	if err := chromedp.Run(tabCtx,
		network.Enable(),
		network.SetCacheDisabled(true),
		cdpruntime.Enable(),
		cdplog.Enable(),
		page.Enable(),
	); err != nil {
		s.Close()
		return nil, fmt.Errorf("start browser session: %w", err)
	}
	return s, nil
}

func (s *Session) fetchBody(id network.RequestID) ([]byte, error) {
	ctx, cancel := context.WithTimeout(s.ctx, bodyFetchTimeout)
	defer cancel()

	var body []byte
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(id).Do(ctx)
		return err
	}))
	return body, err
}

// run executes actions bounded by timeout and by the caller's ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url and then waits, bounded by IdleMax, for the network to go quiet.
// Only the navigation itself can fail; an idle timeout is logged and ignored.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, s.opts.NavigateTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}

	if s.rec == nil {
		return nil
	}
	idleCtx, cancel := context.WithTimeout(ctx, s.opts.IdleMax)
	defer cancel()
	if err := s.rec.Network.WaitIdle(idleCtx, s.opts.IdleQuiet, s.opts.IdleMaxInflight); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("network did not go idle, continuing", "url", url, "inflight", s.rec.Network.Inflight(), "waited", s.opts.IdleMax)
	}
	return nil
}

func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	err := s.run(ctx, opTimeout, chromedp.Title(&title))
	return title, err
}

func (s *Session) Location(ctx context.Context) (string, error) {
	var loc string
	err := s.run(ctx, opTimeout, chromedp.Location(&loc))
	return loc, err
}

// Screenshot returns a PNG of the full page, or of the viewport when fullPage is false.
func (s *Session) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	var buf []byte
	var action chromedp.Action = chromedp.CaptureScreenshot(&buf)
	if fullPage {
		// Quality 100 keeps FullScreenshot in PNG.
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := s.run(ctx, opTimeout, action); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

// OuterHTML returns the serialized document element.
func (s *Session) OuterHTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, opTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("dom dump: %w", err)
	}
	return html, nil
}

// Exists reports whether selector currently matches an element.
func (s *Session) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	err := s.run(ctx, opTimeout, chromedp.Evaluate(dom.ExistsScript(selector), &found))
	return found, err
}

// Click waits up to ElementTimeout for selector to match and clicks the first match.
func (s *Session) Click(ctx context.Context, selector string) error {
	deadline := time.Now().Add(s.opts.ElementTimeout)
	for {
		found, err := s.Exists(ctx, selector)
		if err != nil {
			return fmt.Errorf("click %s: %w", selector, err)
		}
		if found {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("click %s: %w", selector, ErrElementNotFound)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}

	if err := s.run(ctx, s.opts.ElementTimeout, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

// Snapshot captures computed facts about each target element.
func (s *Session) Snapshot(ctx context.Context, targets []dom.Target) ([]dom.ElementSnapshot, error) {
	var raw string
	if err := s.run(ctx, opTimeout, chromedp.Evaluate(dom.SnapshotScript(targets), &raw)); err != nil {
		return nil, fmt.Errorf("element snapshot: %w", err)
	}
	return dom.DecodeSnapshots(raw)
}

// Document reads document-level facts (title, lang, URL, ready state).
func (s *Session) Document(ctx context.Context) (dom.DocumentInfo, error) {
	var raw string
	if err := s.run(ctx, opTimeout, chromedp.Evaluate(dom.DocumentInfoScript, &raw)); err != nil {
		return dom.DocumentInfo{}, fmt.Errorf("document info: %w", err)
	}
	return dom.DecodeDocumentInfo(raw)
}

// AccessibilityTree returns the page's full computed accessibility tree.
func (s *Session) AccessibilityTree(ctx context.Context) ([]a11y.Node, error) {
	var nodes []*accessibility.Node
	err := s.run(ctx, opTimeout,
		accessibility.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			nodes, err = accessibility.GetFullAXTree().Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("accessibility tree: %w", err)
	}
	return convertAXNodes(nodes), nil
}

// Close closes the tab and releases the browser. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := chromedp.Cancel(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Debug("browser tab close failed", "error", err)
			}
		}()
		select {
		case <-done:
		case <-closeCtx.Done():
			slog.Warn("browser did not close in time, forcing shutdown")
		}
		s.cancel()
		s.allocCancel()
		slog.Debug("browser session closed")
	})
}

func convertAXNodes(nodes []*accessibility.Node) []a11y.Node {
	out := make([]a11y.Node, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			continue
		}
		out = append(out, a11y.Node{
			ID:        string(n.NodeID),
			Role:      axValueString(n.Role),
			Name:      axValueString(n.Name),
			Ignored:   n.Ignored,
			BackendID: int64(n.BackendDOMNodeID),
		})
	}
	return out
}

func axValueString(v *accessibility.Value) string {
	if v == nil || len(v.Value) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal([]byte(v.Value), &s); err != nil {
		return string(v.Value)
	}
	return s
}
