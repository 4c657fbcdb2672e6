package capture

import (
	"sync"

	"github.com/chromedp/cdproto/network"
)

// WebSocketLog tracks page websockets and reports handshake and frame errors
// into the network issue log.
type WebSocketLog struct {
	network *NetworkLog

	connections   map[network.RequestID]string
	connectionsMu sync.RWMutex
}

func NewWebSocketLog(networkLog *NetworkLog) *WebSocketLog {
	return &WebSocketLog{
		network:     networkLog,
		connections: make(map[network.RequestID]string),
	}
}

func (w *WebSocketLog) OnWebSocketCreated(ev *network.EventWebSocketCreated) {
	w.connectionsMu.Lock()
	w.connections[ev.RequestID] = ev.URL
	w.connectionsMu.Unlock()
}

func (w *WebSocketLog) OnWebSocketHandshakeResponseReceived(ev *network.EventWebSocketHandshakeResponseReceived) {
	if ev.Response == nil || int(ev.Response.Status) < w.network.ErrorStatus() {
		return
	}
	w.network.AddIssue(NetworkIssue{
		URL:          w.urlFor(ev.RequestID),
		Method:       "GET",
		ResourceType: string(network.ResourceTypeWebSocket),
		Status:       int(ev.Response.Status),
		StatusText:   ev.Response.StatusText,
	})
}

func (w *WebSocketLog) OnWebSocketFrameError(ev *network.EventWebSocketFrameError) {
	w.network.AddIssue(NetworkIssue{
		URL:          w.urlFor(ev.RequestID),
		ResourceType: string(network.ResourceTypeWebSocket),
		Failure:      ev.ErrorMessage,
	})
}

func (w *WebSocketLog) OnWebSocketClosed(ev *network.EventWebSocketClosed) {
	w.connectionsMu.Lock()
	delete(w.connections, ev.RequestID)
	w.connectionsMu.Unlock()
}

func (w *WebSocketLog) GetActiveConnections() int {
	w.connectionsMu.RLock()
	defer w.connectionsMu.RUnlock()
	return len(w.connections)
}

func (w *WebSocketLog) urlFor(id network.RequestID) string {
	w.connectionsMu.RLock()
	defer w.connectionsMu.RUnlock()
	return w.connections[id]
}
