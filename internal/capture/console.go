package capture

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/runtime"
)

const (
	defaultConsoleTextBytes = 4096
	// Retention ceiling while the session is live. Entries(limit) only ever
	// returns the tail, so dropping the oldest keeps the "last N" view intact.
	maxRetainedConsole = 10000
)

// ConsoleEntry is one console message, uncaught exception or browser log line.
type ConsoleEntry struct {
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Source    string    `json:"source,omitempty"`
	Location  string    `json:"location,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ConsoleLog is an append-only, emission-ordered log of console activity.
type ConsoleLog struct {
	maxTextBytes int

	mu      sync.Mutex
	entries []ConsoleEntry
	total   int
}

func NewConsoleLog(maxTextBytes int) *ConsoleLog {
	if maxTextBytes <= 0 {
		maxTextBytes = defaultConsoleTextBytes
	}
	return &ConsoleLog{maxTextBytes: maxTextBytes}
}

// Append records an entry in emission order.
func (c *ConsoleLog) Append(entry ConsoleEntry) {
	entry.Text = truncateText(entry.Text, c.maxTextBytes)
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.total++
	c.entries = append(c.entries, entry)
	if len(c.entries) > maxRetainedConsole {
		c.entries = append(c.entries[:0:0], c.entries[len(c.entries)-maxRetainedConsole:]...)
	}
}

// Entries returns the last limit entries in emission order. A negative limit returns all.
func (c *ConsoleLog) Entries(limit int) []ConsoleEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := 0
	if limit >= 0 && len(c.entries) > limit {
		start = len(c.entries) - limit
	}
	out := make([]ConsoleEntry, len(c.entries)-start)
	copy(out, c.entries[start:])
	return out
}

// Total is the number of entries ever appended, including any no longer retained.
func (c *ConsoleLog) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Len is the number of entries currently retained.
func (c *ConsoleLog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Dropped is how many entries a report capped at limit leaves out.
func (c *ConsoleLog) Dropped(limit int) int {
	total := c.Total()
	if limit < 0 || total <= limit {
		return 0
	}
	return total - limit
}

func (c *ConsoleLog) OnConsoleAPICalled(ev *runtime.EventConsoleAPICalled) {
	parts := make([]string, 0, len(ev.Args))
	for _, arg := range ev.Args {
		parts = append(parts, remoteObjectText(arg))
	}

	entry := ConsoleEntry{
		Type:      string(ev.Type),
		Text:      strings.Join(parts, " "),
		Source:    "console-api",
		Timestamp: runtimeTime(ev.Timestamp),
	}
	if ev.StackTrace != nil && len(ev.StackTrace.CallFrames) > 0 {
		frame := ev.StackTrace.CallFrames[0]
		entry.Location = fmt.Sprintf("%s:%d", frame.URL, frame.LineNumber+1)
	}
	c.Append(entry)
}

func (c *ConsoleLog) OnExceptionThrown(ev *runtime.EventExceptionThrown) {
	if ev.ExceptionDetails == nil {
		return
	}
	details := ev.ExceptionDetails
	text := details.Text
	if details.Exception != nil && details.Exception.Description != "" {
		text = details.Exception.Description
	}

	entry := ConsoleEntry{
		Type:      "pageerror",
		Text:      text,
		Source:    "exception",
		Timestamp: runtimeTime(ev.Timestamp),
	}
	if details.URL != "" {
		entry.Location = fmt.Sprintf("%s:%d", details.URL, details.LineNumber+1)
	}
	c.Append(entry)
}

func (c *ConsoleLog) OnLogEntry(ev *cdplog.EventEntryAdded) {
	if ev.Entry == nil {
		return
	}
	c.Append(ConsoleEntry{
		Type:      string(ev.Entry.Level),
		Text:      ev.Entry.Text,
		Source:    string(ev.Entry.Source),
		Location:  ev.Entry.URL,
		Timestamp: runtimeTime(ev.Entry.Timestamp),
	})
}

func remoteObjectText(obj *runtime.RemoteObject) string {
	if obj == nil {
		return ""
	}
	if len(obj.Value) > 0 {
		var s string
		if err := json.Unmarshal([]byte(obj.Value), &s); err == nil {
			return s
		}
		return string(obj.Value)
	}
	if obj.UnserializableValue != "" {
		return string(obj.UnserializableValue)
	}
	if obj.Description != "" {
		return obj.Description
	}
	return string(obj.Type)
}

func runtimeTime(ts *runtime.Timestamp) time.Time {
	if ts == nil {
		return time.Time{}
	}
	return ts.Time().UTC()
}
