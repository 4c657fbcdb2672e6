package relay

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gobwas/ws"
)

type wsMessage struct {
	Feed string          `json:"feed"`
	Data json.RawMessage `json:"data"`
}

// frameWriter serializes whole frames onto conn. A frame is a header write
// followed by a payload write, so the lock spans both.
type frameWriter struct {
	mu   sync.Mutex
	conn net.Conn
}

func (w *frameWriter) write(f ws.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ws.WriteFrame(w.conn, f)
}

// WSHandler streams relay events over a WebSocket as {"feed":..,"data":..} text
// frames. The ?feeds= filter works as for SSEHandler. Client frames are read
// only to answer pings and to notice the connection closing.
func WSHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		feedFilter := parseFeeds(r.URL.Query().Get("feeds"))

		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Debug("relay: websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		fw := &frameWriter{conn: conn}
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			if err := readClientFrames(conn, fw); err != nil {
				slog.Debug("relay: websocket read ended", "error", err)
			}
		}()

		for {
			select {
			case <-closed:
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if !accepts(feedFilter, evt.Feed) {
					continue
				}
				if err := fw.write(ws.NewTextFrame(encodeWSMessage(evt))); err != nil {
					slog.Debug("relay: websocket write failed", "error", err)
					return
				}
			}
		}
	}
}

// readClientFrames discards data frames, answers pings through fw and returns
// once the client closes the connection.
func readClientFrames(conn net.Conn, fw *frameWriter) error {
	for {
		hdr, err := ws.ReadHeader(conn)
		if err != nil {
			return err
		}
		if !hdr.OpCode.IsControl() {
			if _, err := io.CopyN(io.Discard, conn, hdr.Length); err != nil {
				return err
			}
			continue
		}
		if hdr.Length > ws.MaxControlFramePayloadSize {
			return ws.ErrProtocolControlPayloadOverflow
		}
		payload := make([]byte, hdr.Length)
		if _, err := io.ReadFull(conn, payload); err != nil {
			return err
		}
		if hdr.Masked {
			ws.Cipher(payload, hdr.Mask, 0)
		}

		switch hdr.OpCode {
		case ws.OpPing:
			if err := fw.write(ws.NewPongFrame(payload)); err != nil {
				return err
			}
		case ws.OpClose:
			_ = fw.write(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))
			return nil
		}
	}
}

func encodeWSMessage(evt Event) []byte {
	data := json.RawMessage(evt.Payload)
	if !json.Valid(data) {
		quoted, _ := json.Marshal(evt.Payload)
		data = quoted
	}
	out, _ := json.Marshal(wsMessage{Feed: evt.Feed, Data: data})
	return out
}
