// Package notify posts plain-text probe notifications to an ntfy-style endpoint.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dgnsrekt/pageprobe/internal/probe"
)

// CompletionMessage summarizes a finished probe in one line.
func CompletionMessage(report *probe.Report) string {
	if report == nil {
		return "probe finished"
	}
	title := report.Title
	if title == "" {
		title = "(untitled)"
	}
	msg := fmt.Sprintf("probe finished: %s %q in %dms, %d console entries, %d network issues",
		report.URL, title, report.DurationMS, report.ConsoleTotal, len(report.NetworkIssues))
	if report.A11y != nil {
		if audit, ok := report.A11y.Get(); ok {
			msg += fmt.Sprintf(", %d a11y violations", len(audit.Violations))
		}
	}
	return msg
}

// FailureMessage reports a probe that did not produce artifacts.
func FailureMessage(url string, err error) string {
	return fmt.Sprintf("probe failed: %s: %v", url, err)
}

// Send sends a message to the requested endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	if strings.TrimSpace(endpoint) == "" {
		return errors.New("notify: endpoint is required")
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
