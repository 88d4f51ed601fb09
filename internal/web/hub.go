package web

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/buzzer/internal/app"
	"github.com/MrWong99/buzzer/internal/bitstream"
	"github.com/MrWong99/buzzer/internal/session"
	"github.com/MrWong99/buzzer/internal/tone"
)

const (
	// clientQueue is the number of messages buffered per live client.
	// Messages for a client whose queue is full are dropped.
	clientQueue = 256

	writeTimeout = 5 * time.Second
)

// Live feed message types.
const (
	MsgSession    = "session"
	MsgBit        = "bit"
	MsgTransition = "transition"
	MsgStatus     = "status"
)

// Message is one frame of the live feed.
type Message struct {
	Type       string            `json:"type"`
	Session    *app.SessionInfo  `json:"session,omitempty"`
	Bit        *bitstream.Record `json:"bit,omitempty"`
	Transition *tone.Event       `json:"transition,omitempty"`
	Status     *PassStatus       `json:"status,omitempty"`
}

// PassStatus is sent when the outcome of a spectral pass changes kind.
type PassStatus struct {
	Status string    `json:"status"`
	Level  float64   `json:"level"`
	Time   time.Time `json:"time"`
}

type client struct {
	send    chan []byte
	dropped atomic.Uint64
}

// Hub fans session events out to websocket clients. It implements
// [session.Listener] and never blocks the decoder: each client has its own
// bounded queue.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}

	lastStatus atomic.Value // string
	info       func() app.SessionInfo
	origins    []string
}

// NewHub creates a Hub. info, when non-nil, supplies the session metadata
// sent to every client on connect. Browsers on other hosts are refused
// unless their origin matches one of origins.
func NewHub(info func() app.SessionInfo, origins ...string) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		info:    info,
		origins: origins,
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) OnBit(rec bitstream.Record) {
	h.broadcast(Message{Type: MsgBit, Bit: &rec})
}

func (h *Hub) OnTransition(ev tone.Event) {
	h.broadcast(Message{Type: MsgTransition, Transition: &ev})
}

func (h *Hub) OnPass(out session.Outcome) {
	status := out.Pass.Status.String()
	if prev, _ := h.lastStatus.Swap(status).(string); prev == status {
		return
	}
	h.broadcast(Message{Type: MsgStatus, Status: &PassStatus{
		Status: status,
		Level:  out.Pass.Level,
		Time:   out.Pass.Time,
	}})
}

func (h *Hub) broadcast(m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return
	}
	data, err := json.Marshal(m)
	if err != nil {
		slog.Warn("web: marshal live message", "type", m.Type, "err", err)
		return
	}
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			c.dropped.Add(1)
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and streams messages until the client
// disconnects or the request context ends.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		slog.Debug("web: websocket accept failed", "remote", r.RemoteAddr, "origin", r.Header.Get("Origin"), "err", err)
		return
	}
	defer conn.CloseNow()

	c := &client{send: make(chan []byte, clientQueue)}
	if h.info != nil {
		info := h.info()
		if data, err := json.Marshal(Message{Type: MsgSession, Session: &info}); err == nil {
			c.send <- data
		}
	}
	h.add(c)
	defer h.remove(c)

	// Clients only listen; CloseRead handles control frames and cancels
	// ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())
	slog.Debug("web: live client connected", "remote", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			slog.Debug("web: live client gone", "remote", r.RemoteAddr, "dropped", c.dropped.Load())
			return
		case data := <-c.send:
			if err := write(ctx, conn, data); err != nil {
				slog.Debug("web: live write failed", "remote", r.RemoteAddr, "err", err)
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
