// Package status broadcasts tracker state and orientation changes to
// websocket clients, for external UIs and dashboards.
package status

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/fschwaiger/cubetracker/internal/ble"
	"github.com/fschwaiger/cubetracker/internal/side"
	"github.com/gorilla/websocket"
)

// Event types sent to clients.
const (
	EventSnapshot = "snapshot"
	EventState    = "state"
	EventSide     = "side"
)

// Event is one message on the websocket.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Snapshot is the current tracker status.
type Snapshot struct {
	State     string `json:"state"`
	Error     string `json:"error,omitempty"`
	Side      string `json:"side"`
	ActionSet string `json:"action_set,omitempty"`
	Updated   int64  `json:"updated"`
}

// ActiveSetFunc reports the active action set name.
type ActiveSetFunc func() string

// Hub tracks connected websocket clients and the latest snapshot.
// It implements ble.Sink.
type Hub struct {
	activeSet ActiveSetFunc
	now       func() time.Time

	mu       sync.Mutex
	clients  map[*websocket.Conn]*client
	snapshot Snapshot
}

// client serializes writes to one connection; gorilla/websocket allows a
// single concurrent writer.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(event Event, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteJSON(event)
}

var _ ble.Sink = (*Hub)(nil)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewHub creates a Hub. activeSet may be nil.
func NewHub(activeSet ActiveSetFunc) *Hub {
	return &Hub{
		activeSet: activeSet,
		now:       time.Now,
		clients:   make(map[*websocket.Conn]*client),
		snapshot: Snapshot{
			State: ble.StateDisconnected.String(),
			Side:  side.None.String(),
		},
	}
}

// Snapshot returns the latest status.
func (h *Hub) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshot
}

// StateChanged records and broadcasts a session state change.
func (h *Hub) StateChanged(st ble.State, err error) {
	h.mu.Lock()
	h.snapshot.State = st.String()
	h.snapshot.Error = ""
	if err != nil {
		h.snapshot.Error = err.Error()
	}
	if st != ble.StateConnected {
		h.snapshot.Side = side.None.String()
	}
	h.stampLocked()
	snap := h.snapshot
	h.mu.Unlock()

	h.Broadcast(Event{Type: EventState, Payload: snap})
}

// SideChanged records and broadcasts an orientation change.
func (h *Hub) SideChanged(s side.Side) {
	h.mu.Lock()
	h.snapshot.Side = s.String()
	h.stampLocked()
	snap := h.snapshot
	h.mu.Unlock()

	h.Broadcast(Event{Type: EventSide, Payload: snap})
}

func (h *Hub) stampLocked() {
	if h.activeSet != nil {
		h.snapshot.ActionSet = h.activeSet()
	}
	h.snapshot.Updated = h.now().UnixMilli()
}

// AddClient registers conn and sends it the current snapshot. The snapshot
// is taken and the client registered under one lock, and the snapshot write
// holds the client's write lock, so every later event follows it.
func (h *Hub) AddClient(conn *websocket.Conn) {
	c := &client{conn: conn}
	c.mu.Lock()
	h.mu.Lock()
	snap := h.snapshot
	h.clients[conn] = c
	h.mu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(time.Second))
	err := conn.WriteJSON(Event{Type: EventSnapshot, Payload: snap})
	c.mu.Unlock()
	if err != nil {
		h.RemoveClient(conn)
		return
	}
	go h.readLoop(conn)
}

// readLoop discards client messages and unregisters the client when its
// connection closes.
func (h *Hub) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.NextReader(); err != nil {
			h.RemoveClient(conn)
			return
		}
	}
}

// RemoveClient unregisters and closes conn.
func (h *Hub) RemoveClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends event to every client. Clients that fail to receive it
// within the write deadline are dropped.
func (h *Hub) Broadcast(event Event) {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	var (
		wg       sync.WaitGroup
		failedMu sync.Mutex
		failed   []*websocket.Conn
	)
	for _, c := range clients {
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()
			if err := c.send(event, 100*time.Millisecond); err != nil {
				failedMu.Lock()
				failed = append(failed, c.conn)
				failedMu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	for _, conn := range failed {
		slog.Debug("[STATUS] dropping client", "remote", conn.RemoteAddr())
		h.RemoveClient(conn)
	}
}

// Handler returns the HTTP handler serving /ws and /status. Each routes
// function may add more endpoints to the same mux.
func (h *Hub) Handler(routes ...func(*http.ServeMux)) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("[STATUS] websocket upgrade failed", "error", err)
			return
		}
		h.AddClient(conn)
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(h.Snapshot())
	})
	for _, register := range routes {
		register(mux)
	}
	return mux
}
