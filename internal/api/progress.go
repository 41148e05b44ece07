package api

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ProgressEvent is one progress update pushed to websocket subscribers.
type ProgressEvent struct {
	RunID    string                 `json:"run_id"`
	Status   string                 `json:"status"`
	Message  string                 `json:"message"`
	Progress float64                `json:"progress"`
	Current  map[string]interface{} `json:"current,omitempty"`
}

// ProgressHub fans progress events out to the websocket subscribers of each
// run. Subscribers that fail a write are dropped.
type ProgressHub struct {
	mu     sync.Mutex
	subs   map[string]map[*websocket.Conn]bool
	logger *logrus.Logger
}

// NewProgressHub creates an empty hub.
func NewProgressHub(logger *logrus.Logger) *ProgressHub {
	return &ProgressHub{
		subs:   make(map[string]map[*websocket.Conn]bool),
		logger: logger,
	}
}

// Subscribe registers a connection for a run's events.
func (h *ProgressHub) Subscribe(runID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[runID] == nil {
		h.subs[runID] = make(map[*websocket.Conn]bool)
	}
	h.subs[runID][conn] = true
}

// Unsubscribe removes a connection and closes it.
func (h *ProgressHub) Unsubscribe(runID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns := h.subs[runID]; conns != nil {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.subs, runID)
		}
	}
	conn.Close()
}

// Publish sends an event to every subscriber of the run.
func (h *ProgressHub) Publish(event ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.subs[event.RunID] {
		if err := conn.WriteJSON(event); err != nil {
			h.logger.WithError(err).Debug("Dropping stalled progress subscriber")
			conn.Close()
			delete(h.subs[event.RunID], conn)
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API already allows cross-origin callers.
	CheckOrigin: func(r *http.Request) bool { return true },
}
