package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Frame types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// wsQueueLen is how many frames may wait for a slow client.
const wsQueueLen = 256

// WSMessage is a frame exchanged with a client.
type WSMessage struct {
	Type      string    `json:"type"`
	ID        string    `json:"id,omitempty"`
	EventType string    `json:"event_type,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	Payload   any       `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe frames.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

type inboundFrame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.isAllowedOrigin(origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade refused", "error", err)
		return
	}

	p := &wsPeer{
		hub:      s.hub,
		conn:     conn,
		out:      make(chan []byte, wsQueueLen),
		done:     make(chan struct{}),
		channels: make(map[string]struct{}),
	}
	if !s.hub.join(p) {
		conn.Close()
		return
	}
	go p.writeLoop()
	go p.readLoop()
}

// wsPeer is one connected client. out is never closed; done signals the
// writer to send a close frame and drop the connection.
type wsPeer struct {
	hub  *Hub
	conn *websocket.Conn
	out  chan []byte

	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	channels map[string]struct{}
}

func (p *wsPeer) stop() {
	p.stopOnce.Do(func() { close(p.done) })
}

// queue hands frame to the writer, dropping it when the queue is full.
func (p *wsPeer) queue(frame []byte) {
	select {
	case p.out <- frame:
	case <-p.done:
	default:
	}
}

func (p *wsPeer) subscribed(channel string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.channels[channel]
	return ok
}

func (p *wsPeer) readLoop() {
	defer p.hub.leave(p)

	cfg := p.hub.cfg
	idle := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func(string) error { return p.conn.SetReadDeadline(time.Now().Add(idle)) }

	p.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	p.conn.SetPongHandler(extend)
	//nolint:errcheck // a failed deadline surfaces on the next read
	extend("")

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.hub.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		//nolint:errcheck // as above
		extend("")
		p.handle(data)
	}
}

func (p *wsPeer) writeLoop() {
	cfg := p.hub.cfg
	ping := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ping.Stop()
		p.conn.Close()
	}()

	timeout := time.Duration(cfg.PongTimeout) * time.Second
	send := func(kind int, data []byte) error {
		//nolint:errcheck // the write itself reports a dead connection
		p.conn.SetWriteDeadline(time.Now().Add(timeout))
		return p.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case <-p.done:
			//nolint:errcheck // closing regardless
			send(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case frame := <-p.out:
			if err := send(websocket.TextMessage, frame); err != nil {
				p.stop()
				return
			}
		case <-ping.C:
			if err := send(websocket.PingMessage, nil); err != nil {
				p.stop()
				return
			}
		}
	}
}

func (p *wsPeer) handle(data []byte) {
	var in inboundFrame
	if err := json.Unmarshal(data, &in); err != nil {
		p.replyError("", "invalid JSON message")
		return
	}

	switch in.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var sub WSSubscribePayload
		if err := json.Unmarshal(in.Payload, &sub); err != nil || len(sub.Channels) == 0 {
			p.replyError(in.ID, "payload must list channels")
			return
		}
		p.setChannels(sub.Channels, in.Type == WSTypeSubscribe)
		key := in.Type + "d"
		p.reply(in.ID, WSTypeResponse, map[string][]string{key: sub.Channels})
	case WSTypePing:
		p.reply(in.ID, WSTypePong, nil)
	default:
		p.replyError(in.ID, "unknown message type: "+in.Type)
	}
}

func (p *wsPeer) setChannels(channels []string, on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range channels {
		if on {
			p.channels[ch] = struct{}{}
		} else {
			delete(p.channels, ch)
		}
	}
}

func (p *wsPeer) reply(id, kind string, payload any) {
	frame, err := json.Marshal(WSMessage{Type: kind, ID: id, Timestamp: time.Now().UTC(), Payload: payload})
	if err == nil {
		p.queue(frame)
	}
}

func (p *wsPeer) replyError(id, message string) {
	p.reply(id, WSTypeError, map[string]string{"message": message})
}
