package capture

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/chromedp/cdproto/network"
)

// NetworkIssue is a request that failed to load or answered with an error status.
type NetworkIssue struct {
	URL           string    `json:"url"`
	Method        string    `json:"method,omitempty"`
	ResourceType  string    `json:"resourceType,omitempty"`
	Status        int       `json:"status,omitempty"`
	StatusText    string    `json:"statusText,omitempty"`
	ContentType   string    `json:"contentType,omitempty"`
	Failure       string    `json:"failure,omitempty"`
	Body          string    `json:"body,omitempty"`
	BodyBase64    string    `json:"bodyBase64,omitempty"`
	BodyTruncated bool      `json:"bodyTruncated,omitempty"`
	BodySize      int       `json:"bodySize,omitempty"`
	BodySHA256    string    `json:"bodySha256,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// BodyFetcher reads a response body from the browser. It must not be called
// from the event listener goroutine itself.
type BodyFetcher func(requestID network.RequestID) ([]byte, error)

type pendingRequest struct {
	url          string
	method       string
	resourceType string
	started      time.Time
	issue        *NetworkIssue
}

// NetworkLog correlates request lifecycle events and keeps only the failures.
type NetworkLog struct {
	errorStatus  int
	maxBodyBytes int
	staleAfter   time.Duration

	mu           sync.Mutex
	pending      map[network.RequestID]*pendingRequest
	issues       []*NetworkIssue
	lastActivity time.Time
	// sealed stops new body reads once Issues has started waiting.
	sealed bool

	bodies sync.WaitGroup
	done   chan struct{}
	once   sync.Once
}

func NewNetworkLog(errorStatus, maxBodyBytes int) *NetworkLog {
	if errorStatus <= 0 {
		errorStatus = 400
	}
	n := &NetworkLog{
		errorStatus:  errorStatus,
		maxBodyBytes: maxBodyBytes,
		staleAfter:   5 * time.Minute,
		pending:      make(map[network.RequestID]*pendingRequest),
		lastActivity: time.Now(),
		done:         make(chan struct{}),
	}
	go n.cleanupLoop()
	return n
}

// Close stops the stale-request cleanup loop. It is safe to call more than once.
func (n *NetworkLog) Close() {
	n.once.Do(func() { close(n.done) })
}

// ErrorStatus is the lowest HTTP status treated as an issue.
func (n *NetworkLog) ErrorStatus() int {
	return n.errorStatus
}

func (n *NetworkLog) OnRequestWillBeSent(ev *network.EventRequestWillBeSent) {
	if ev.Request == nil || strings.HasPrefix(ev.Request.URL, "data:") {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastActivity = time.Now()

	// Redirect hops reuse the request id; keep one entry pointing at the latest URL.
	n.pending[ev.RequestID] = &pendingRequest{
		url:          ev.Request.URL,
		method:       ev.Request.Method,
		resourceType: string(ev.Type),
		started:      time.Now(),
	}
}

func (n *NetworkLog) OnResponseReceived(ev *network.EventResponseReceived) {
	if ev.Response == nil {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastActivity = time.Now()

	if int(ev.Response.Status) < n.errorStatus {
		return
	}

	issue := &NetworkIssue{
		URL:          ev.Response.URL,
		ResourceType: string(ev.Type),
		Status:       int(ev.Response.Status),
		StatusText:   ev.Response.StatusText,
		ContentType:  ev.Response.MimeType,
		Timestamp:    time.Now().UTC(),
	}
	if p, ok := n.pending[ev.RequestID]; ok {
		issue.Method = p.method
		if issue.URL == "" {
			issue.URL = p.url
		}
		p.issue = issue
	}
	n.issues = append(n.issues, issue)
}

// OnLoadingFinished completes a request. For error responses the body is read
// in the background through fetch; failures to read it are tolerated.
func (n *NetworkLog) OnLoadingFinished(ev *network.EventLoadingFinished, fetch BodyFetcher) {
	n.mu.Lock()
	p, ok := n.pending[ev.RequestID]
	if ok {
		delete(n.pending, ev.RequestID)
	}
	n.lastActivity = time.Now()
	if !ok || p.issue == nil || fetch == nil || n.sealed {
		n.mu.Unlock()
		return
	}
	issue := p.issue
	n.bodies.Add(1)
	n.mu.Unlock()

	go func() {
		defer n.bodies.Done()
		body, err := fetch(ev.RequestID)
		if err != nil {
			slog.Debug("response body read failed", "request_id", ev.RequestID, "url", issue.URL, "error", err)
			return
		}
		if len(body) == 0 {
			return
		}

		kept, truncated, originalSize, bodyHash := truncateBytes(body, n.maxBodyBytes)

		n.mu.Lock()
		defer n.mu.Unlock()
		if utf8.Valid(kept) {
			issue.Body = string(kept)
		} else {
			issue.BodyBase64 = base64.StdEncoding.EncodeToString(kept)
		}
		issue.BodySize = originalSize
		issue.BodyTruncated = truncated
		issue.BodySHA256 = bodyHash
	}()
}

func (n *NetworkLog) OnLoadingFailed(ev *network.EventLoadingFailed) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastActivity = time.Now()

	p, ok := n.pending[ev.RequestID]
	if !ok {
		slog.Debug("loading failed for untracked request", "request_id", ev.RequestID, "error_text", ev.ErrorText)
		return
	}
	delete(n.pending, ev.RequestID)

	failure := failureReason(ev)
	if p.issue != nil {
		p.issue.Failure = failure
		return
	}
	n.issues = append(n.issues, &NetworkIssue{
		URL:          p.url,
		Method:       p.method,
		ResourceType: p.resourceType,
		Failure:      failure,
		Timestamp:    time.Now().UTC(),
	})
}

// AddIssue records an issue detected outside the request lifecycle (e.g. websockets).
func (n *NetworkLog) AddIssue(issue NetworkIssue) {
	if issue.Timestamp.IsZero() {
		issue.Timestamp = time.Now().UTC()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastActivity = time.Now()
	n.issues = append(n.issues, &issue)
}

// Issues waits up to wait for outstanding body reads and returns the issues in
// detection order. Bodies of requests that finish after the first call are not read.
func (n *NetworkLog) Issues(wait time.Duration) []NetworkIssue {
	n.mu.Lock()
	n.sealed = true
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.bodies.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(wait):
		slog.Warn("response body reads still running, reporting without them")
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]NetworkIssue, 0, len(n.issues))
	for _, issue := range n.issues {
		out = append(out, *issue)
	}
	return out
}

// Inflight returns the number of requests that have started but not finished.
func (n *NetworkLog) Inflight() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

// WaitIdle blocks until at most maxInflight requests are pending and no network
// event has arrived for quiet. The caller bounds the wait through ctx.
func (n *NetworkLog) WaitIdle(ctx context.Context, quiet time.Duration, maxInflight int) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		n.mu.Lock()
		inflight := len(n.pending)
		since := time.Since(n.lastActivity)
		n.mu.Unlock()

		if inflight <= maxInflight && since >= quiet {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (n *NetworkLog) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.cleanupStale()
		case <-n.done:
			return
		}
	}
}

func (n *NetworkLog) cleanupStale() {
	threshold := time.Now().Add(-n.staleAfter)

	n.mu.Lock()
	defer n.mu.Unlock()

	for id, p := range n.pending {
		if p.started.Before(threshold) {
			delete(n.pending, id)
		}
	}
}

func failureReason(ev *network.EventLoadingFailed) string {
	reason := ev.ErrorText
	if reason == "" {
		reason = "loading failed"
	}
	if ev.BlockedReason != "" {
		reason += " (blocked: " + string(ev.BlockedReason) + ")"
	}
	if ev.Canceled {
		reason += " (canceled)"
	}
	return reason
}
