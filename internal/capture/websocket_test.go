package capture

import (
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
)

func TestWebSocketLogReportsHandshakeAndFrameErrors(t *testing.T) {
	n := NewNetworkLog(400, 0)
	defer n.Close()
	w := NewWebSocketLog(n)

	w.OnWebSocketCreated(&network.EventWebSocketCreated{RequestID: "ws-1", URL: "wss://example.com/live"})
	w.OnWebSocketCreated(&network.EventWebSocketCreated{RequestID: "ws-2", URL: "wss://example.com/ok"})
	if got := w.GetActiveConnections(); got != 2 {
		t.Fatalf("GetActiveConnections() = %d; want 2", got)
	}

	w.OnWebSocketHandshakeResponseReceived(&network.EventWebSocketHandshakeResponseReceived{
		RequestID: "ws-1",
		Response:  &network.WebSocketResponse{Status: 403, StatusText: "Forbidden"},
	})
	w.OnWebSocketHandshakeResponseReceived(&network.EventWebSocketHandshakeResponseReceived{
		RequestID: "ws-2",
		Response:  &network.WebSocketResponse{Status: 101, StatusText: "Switching Protocols"},
	})
	w.OnWebSocketFrameError(&network.EventWebSocketFrameError{RequestID: "ws-2", ErrorMessage: "invalid frame"})
	w.OnWebSocketClosed(&network.EventWebSocketClosed{RequestID: "ws-1"})

	issues := n.Issues(time.Second)
	if len(issues) != 2 {
		t.Fatalf("Issues() = %+v; want 2", issues)
	}
	if issues[0].URL != "wss://example.com/live" || issues[0].Status != 403 || issues[0].ResourceType != "WebSocket" {
		t.Fatalf("handshake issue = %+v", issues[0])
	}
	if issues[1].URL != "wss://example.com/ok" || issues[1].Failure != "invalid frame" {
		t.Fatalf("frame issue = %+v", issues[1])
	}
	if got := w.GetActiveConnections(); got != 1 {
		t.Fatalf("GetActiveConnections() after close = %d; want 1", got)
	}
}
