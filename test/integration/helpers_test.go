//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgnsrekt/pageprobe/internal/browser"
	"github.com/dgnsrekt/pageprobe/internal/capture"
	"github.com/dgnsrekt/pageprobe/internal/probe"
)

const fixturePage = `<!doctype html>
<html lang="en">
<head><title>Probe Fixture</title></head>
<body>
  <h1 id="heading">Fixture</h1>
  <button id="menu" onclick="document.getElementById('panel').hidden = false; console.warn('menu opened')">Menu</button>
  <div id="panel" hidden>Panel</div>
  <img src="/missing.png">
  <script>
    for (let i = 0; i < %d; i++) { console.log('line ' + i); }
  </script>
</body>
</html>`

// newFixtureServer serves a page that logs consoleLines messages and requests
// a resource that answers 404.
func newFixtureServer(t *testing.T, consoleLines int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.Error(w, "not here", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, fixturePage, consoleLines)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// newProber skips the test when no Chromium-family browser is installed.
func newProber(t *testing.T) *probe.Prober {
	t.Helper()
	execPath, err := browser.DetectBrowser()
	if err != nil {
		t.Skipf("no browser available: %v", err)
	}
	opts := browser.Options{
		ExecPath:        execPath,
		Headless:        true,
		WindowWidth:     1024,
		WindowHeight:    768,
		NavigateTimeout: 15 * time.Second,
		IdleQuiet:       300 * time.Millisecond,
		IdleMax:         5 * time.Second,
		ElementTimeout:  2 * time.Second,
	}
	return probe.NewProber(probe.BrowserOpener(opts), capture.RecorderOptions{ErrorStatus: 400, BodyMaxBytes: 1024})
}
