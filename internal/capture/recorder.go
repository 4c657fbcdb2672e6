package capture

import (
	"sync"

	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
)

// RecorderOptions sizes the event logs of one probe session.
type RecorderOptions struct {
	ErrorStatus     int
	BodyMaxBytes    int
	ConsoleMaxBytes int
}

// Recorder owns every event log of a single probe session and is the one
// listener registered on the browser target.
type Recorder struct {
	Console    *ConsoleLog
	Network    *NetworkLog
	WebSockets *WebSocketLog

	fetchMu   sync.RWMutex
	fetchBody BodyFetcher
}

func NewRecorder(opts RecorderOptions) *Recorder {
	networkLog := NewNetworkLog(opts.ErrorStatus, opts.BodyMaxBytes)
	return &Recorder{
		Console:    NewConsoleLog(opts.ConsoleMaxBytes),
		Network:    networkLog,
		WebSockets: NewWebSocketLog(networkLog),
	}
}

// SetBodyFetcher installs the callback used to read error response bodies.
func (r *Recorder) SetBodyFetcher(fetch BodyFetcher) {
	r.fetchMu.Lock()
	r.fetchBody = fetch
	r.fetchMu.Unlock()
}

func (r *Recorder) bodyFetcher() BodyFetcher {
	r.fetchMu.RLock()
	defer r.fetchMu.RUnlock()
	return r.fetchBody
}

// Handle dispatches a CDP event to the matching log. Unknown events are ignored.
func (r *Recorder) Handle(ev any) {
	switch e := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		r.Console.OnConsoleAPICalled(e)
	case *runtime.EventExceptionThrown:
		r.Console.OnExceptionThrown(e)
	case *cdplog.EventEntryAdded:
		r.Console.OnLogEntry(e)
	case *network.EventRequestWillBeSent:
		r.Network.OnRequestWillBeSent(e)
	case *network.EventResponseReceived:
		r.Network.OnResponseReceived(e)
	case *network.EventLoadingFinished:
		r.Network.OnLoadingFinished(e, r.bodyFetcher())
	case *network.EventLoadingFailed:
		r.Network.OnLoadingFailed(e)
	case *network.EventWebSocketCreated:
		r.WebSockets.OnWebSocketCreated(e)
	case *network.EventWebSocketHandshakeResponseReceived:
		r.WebSockets.OnWebSocketHandshakeResponseReceived(e)
	case *network.EventWebSocketFrameError:
		r.WebSockets.OnWebSocketFrameError(e)
	case *network.EventWebSocketClosed:
		r.WebSockets.OnWebSocketClosed(e)
	}
}

// Close releases background goroutines held by the logs.
func (r *Recorder) Close() {
	r.Network.Close()
}
