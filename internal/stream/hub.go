// Package stream pushes session events to websocket clients.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Checker-Finance/fxo-desk/internal/metrics"
	"github.com/Checker-Finance/fxo-desk/pkg/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// SnapshotFunc returns the current snapshot of a session, or false when the
// session does not exist.
type SnapshotFunc func(id string) (model.SessionSnapshot, bool)

// frame is one queued event with its session sequence number.
type frame struct {
	seq  uint64
	data []byte
}

type client struct {
	session string
	send    chan frame
	once    sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub tracks websocket clients per session.
type Hub struct {
	logger   *zap.Logger
	snapshot SnapshotFunc
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

func NewHub(logger *zap.Logger, snapshot SnapshotFunc) *Hub {
	return &Hub{
		logger:   logger,
		snapshot: snapshot,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[string]map[*client]struct{}),
	}
}

// Broadcast sends ev to every client of its session. A client whose buffer is
// full is disconnected.
func (h *Hub) Broadcast(ev model.SessionEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("stream.marshal_failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.clients[ev.SessionID] {
		select {
		case c.send <- frame{seq: ev.Seq, data: data}:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		metrics.IncDroppedEvent("websocket")
		h.logger.Warn("stream.client_too_slow", zap.String("session_id", ev.SessionID))
		h.remove(c)
	}
}

// CloseSession disconnects every client of a session.
func (h *Hub) CloseSession(id string) {
	h.mu.Lock()
	set := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()
	for c := range set {
		c.close()
	}
}

// Clients returns the number of connected clients for a session.
func (h *Hub) Clients(id string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[id])
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.session]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.session] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if set, ok := h.clients[c.session]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.session)
		}
	}
	h.mu.Unlock()
	c.close()
}

// ServeSession upgrades GET /ws/sessions/{id}. The current snapshot is sent
// first, then every event newer than it.
//
// The client is registered before the snapshot is taken so no event can fall
// between the two; queued events already covered by the snapshot are skipped.
func (h *Hub) ServeSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := h.snapshot(id); !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("stream.upgrade_failed", zap.String("session_id", id), zap.Error(err))
		return
	}

	c := &client{session: id, send: make(chan frame, sendBuffer)}
	h.add(c)

	snap, ok := h.snapshot(id)
	if !ok {
		// closed while upgrading
		h.remove(c)
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
		return
	}
	first, err := json.Marshal(snap)
	if err != nil {
		h.logger.Error("stream.marshal_failed", zap.Error(err))
		h.remove(c)
		_ = conn.Close()
		return
	}
	h.logger.Info("stream.client_connected", zap.String("session_id", id), zap.Uint64("seq", snap.Seq))

	go h.writePump(conn, c, first, snap.Seq)
	h.readPump(conn, c)
}

// readPump discards client input and detects disconnects.
func (h *Hub) readPump(conn *websocket.Conn, c *client) {
	defer func() {
		h.remove(c)
		_ = conn.Close()
	}()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("stream.read_closed", zap.String("session_id", c.session), zap.Error(err))
			}
			return
		}
	}
}

// writePump writes the snapshot, then queued events with seq above snapSeq.
func (h *Hub) writePump(conn *websocket.Conn, c *client, snapshot []byte, snapSeq uint64) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, snapshot); err != nil {
		return
	}

	for {
		select {
		case f, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if f.seq <= snapSeq {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, f.data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Handler returns the stream routes.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/sessions/{id}", h.ServeSession)
	return mux
}
