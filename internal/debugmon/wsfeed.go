package debugmon

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DumpEvent is one text dump pushed to websocket clients tailing the debug
// monitor live.
type DumpEvent struct {
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// Feed is the websocket hub broadcasting dump events to connected
// clients, adapted from internal/websocket's DAGStreamer: the same
// register/unregister/broadcast channel triple, swapped to push debug-
// monitor text instead of DAG visualization events.
type Feed struct {
	logger *slog.Logger

	clients    map[*websocket.Conn]bool
	broadcast  chan DumpEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

// NewFeed constructs a debug-monitor websocket feed.
func NewFeed(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		logger:     logger,
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan DumpEvent, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run services the hub forever; it takes no context and never returns, so
// callers typically run this in a goroutine for the lifetime of the process.
func (f *Feed) Run() {
	for {
		select {
		case client := <-f.register:
			f.mu.Lock()
			f.clients[client] = true
			f.mu.Unlock()
			f.logger.Info("debugmon: feed client connected", "total", len(f.clients))

		case client := <-f.unregister:
			f.mu.Lock()
			if _, ok := f.clients[client]; ok {
				delete(f.clients, client)
				client.Close()
			}
			f.mu.Unlock()
			f.logger.Info("debugmon: feed client disconnected", "total", len(f.clients))

		case event := <-f.broadcast:
			f.mu.RLock()
			for client := range f.clients {
				if err := client.WriteJSON(event); err != nil {
					f.logger.Warn("debugmon: feed write failed", "error", err)
					client.Close()
					delete(f.clients, client)
				}
			}
			f.mu.RUnlock()
		}
	}
}

// HandleWebSocket upgrades r into a feed subscriber.
func (f *Feed) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("debugmon: feed upgrade failed", "error", err)
		return
	}
	f.register <- conn

	go func() {
		defer func() { f.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Publish pushes one dump's text to every connected feed client, tagged
// with a fresh session id for log correlation.
func (f *Feed) Publish(text string) {
	f.broadcast <- DumpEvent{
		SessionID: uuid.New().String(),
		Timestamp: time.Now(),
		Text:      text,
	}
}
