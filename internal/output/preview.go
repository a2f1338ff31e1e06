package output

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/coreman2200/arcaluminis-show/internal/frame"
)

const writeWait = 200 * time.Millisecond

// PreviewFrame is the message sent to preview clients. RGB is packed
// row-major and base64 encoded on the wire.
type PreviewFrame struct {
	T       float64 `json:"t"`
	FrameID uint64  `json:"frame_id"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	RGB     []byte  `json:"rgb"`
}

// PreviewHub is a Sink that broadcasts frames to websocket clients, at
// most once per interval.
type PreviewHub struct {
	name     string
	log      zerolog.Logger
	interval time.Duration
	start    time.Time
	up       websocket.Upgrader

	mu      sync.Mutex
	clients map[uuid.UUID]*websocket.Conn
	frameID uint64
	last    time.Time
	closed  bool
}

func NewPreviewHub(name string, interval time.Duration, log zerolog.Logger) *PreviewHub {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &PreviewHub{
		name:     name,
		log:      log,
		interval: interval,
		start:    time.Now(),
		up:       websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:  map[uuid.UUID]*websocket.Conn{},
	}
}

func (h *PreviewHub) Name() string { return h.name }

// Clients is the number of connected viewers.
func (h *PreviewHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the viewer until it goes away.
func (h *PreviewHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.up.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("preview upgrade failed")
		return
	}
	id := uuid.New()
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[id] = conn
	h.mu.Unlock()
	h.log.Debug().Str("client", id.String()).Msg("preview client connected")

	go func() {
		defer h.drop(id)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *PreviewHub) drop(id uuid.UUID) {
	h.mu.Lock()
	conn, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()
	if ok {
		conn.Close()
		h.log.Debug().Str("client", id.String()).Msg("preview client gone")
	}
}

func (h *PreviewHub) Write(f *frame.Frame) error {
	h.mu.Lock()
	now := time.Now()
	if h.closed || len(h.clients) == 0 || now.Sub(h.last) < h.interval {
		h.mu.Unlock()
		return nil
	}
	h.last = now
	h.frameID++
	msg := PreviewFrame{
		T:       now.Sub(h.start).Seconds(),
		FrameID: h.frameID,
		Width:   f.Width,
		Height:  f.Height,
		RGB:     f.ToRGB().Pix,
	}
	conns := make(map[uuid.UUID]*websocket.Conn, len(h.clients))
	for id, c := range h.clients {
		conns[id] = c
	}
	h.mu.Unlock()

	for id, c := range conns {
		_ = c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteJSON(msg); err != nil {
			h.drop(id)
		}
	}
	return nil
}

// Close disconnects every viewer.
func (h *PreviewHub) Close() error {
	h.mu.Lock()
	h.closed = true
	conns := h.clients
	h.clients = map[uuid.UUID]*websocket.Conn{}
	h.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
	return nil
}
