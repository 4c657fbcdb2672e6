package probe

import (
	"strings"
	"time"

	"github.com/dgnsrekt/pageprobe/internal/a11y"
	"github.com/dgnsrekt/pageprobe/internal/capture"
	"github.com/dgnsrekt/pageprobe/internal/dom"
)

// Fixed artifact names inside the output directory.
const (
	ScreenshotFile = "screenshot.png"
	DOMFile        = "dom.html"
	DOMMetaFile    = "dom.json"
	MarkdownFile   = "page.md"
	ReportFile     = "report.json"
)

// StepScreenshotFile names the screenshot taken after an interaction.
func StepScreenshotFile(step string) string {
	return "screenshot-" + step + ".png"
}

// ownedArtifact reports whether name is a file a run may write into the
// output directory. report.json is always rewritten so it is not listed.
func ownedArtifact(name string) bool {
	switch name {
	case ScreenshotFile, DOMFile, DOMMetaFile, MarkdownFile:
		return true
	}
	return strings.HasPrefix(name, "screenshot-") && strings.HasSuffix(name, ".png")
}

// Step records one interaction.
type Step struct {
	Name       string        `json:"name"`
	Click      string        `json:"click"`
	Clicked    bool          `json:"clicked"`
	Error      string        `json:"error,omitempty"`
	SettleMS   int64         `json:"settleMs"`
	Screenshot Maybe[string] `json:"screenshot"`
}

// Report is the aggregate written to report.json.
type Report struct {
	URL           string                 `json:"url"`
	FinalURL      string                 `json:"finalUrl,omitempty"`
	Title         string                 `json:"title"`
	StartedAt     time.Time              `json:"startedAt"`
	DurationMS    int64                  `json:"durationMs"`
	Screenshot    Maybe[string]          `json:"screenshot"`
	DOMSnapshot   Maybe[string]          `json:"domSnapshot"`
	DOMMetadata   string                 `json:"domMetadata"`
	DOMHash       string                 `json:"domHash,omitempty"`
	Markdown      *Maybe[string]         `json:"markdown,omitempty"`
	Console       []capture.ConsoleEntry `json:"console"`
	ConsoleTotal  int                    `json:"consoleTotal"`
	NetworkIssues []capture.NetworkIssue `json:"networkIssues"`
	Steps         []Step                 `json:"steps"`
	A11y          *Maybe[a11y.Report]    `json:"a11y,omitempty"`
	Warnings      []string               `json:"warnings,omitempty"`
}

// CapturePoint is the element state at one moment of the run.
type CapturePoint struct {
	Step     string                `json:"step"`
	Elements []dom.ElementSnapshot `json:"elements"`
	Error    string                `json:"error,omitempty"`
}

// DOMMetadata is written to dom.json.
type DOMMetadata struct {
	Document Maybe[dom.DocumentInfo] `json:"document"`
	Captures []CapturePoint          `json:"captures"`
}

// Result is what a successful run returns to its caller.
type Result struct {
	Report     *Report
	OutputDir  string
	ReportPath string
	Artifacts  []string
}

// Run statuses recorded in journals.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// RunRecord is the one-line journal entry for a probe run.
type RunRecord struct {
	RunID         string    `json:"runId,omitempty"`
	URL           string    `json:"url"`
	FinalURL      string    `json:"finalUrl,omitempty"`
	Title         string    `json:"title,omitempty"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	ConsoleTotal  int       `json:"consoleTotal"`
	NetworkIssues int       `json:"networkIssues"`
	DurationMS    int64     `json:"durationMs"`
	ReportPath    string    `json:"reportPath,omitempty"`
	At            time.Time `json:"at"`
}

// NewRunRecord summarizes the outcome of Run for a journal.
func NewRunRecord(url string, res *Result, err error, at time.Time) RunRecord {
	rec := RunRecord{URL: url, Status: StatusSucceeded, At: at.UTC()}
	if err != nil {
		rec.Status = StatusFailed
		rec.Error = err.Error()
		return rec
	}
	if res == nil || res.Report == nil {
		return rec
	}
	r := res.Report
	rec.FinalURL = r.FinalURL
	rec.Title = r.Title
	rec.ConsoleTotal = r.ConsoleTotal
	rec.NetworkIssues = len(r.NetworkIssues)
	rec.DurationMS = r.DurationMS
	rec.ReportPath = res.ReportPath
	return rec
}
