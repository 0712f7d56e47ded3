package pipeline

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Broadcaster fans dead-letter notifications out to WebSocket watchers so
// operators can observe failures live instead of polling the stream.
type Broadcaster struct {
	mu          sync.RWMutex
	connections map[*websocket.Conn]bool
}

// NewBroadcaster creates a new dead-letter broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		connections: make(map[*websocket.Conn]bool),
	}
}

// Subscribe registers a WebSocket connection for dead-letter notifications.
func (b *Broadcaster) Subscribe(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connections[conn] = true
}

// Unsubscribe removes a WebSocket connection.
func (b *Broadcaster) Unsubscribe(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.connections, conn)
}

// DeadLettered implements DeadLetterObserver. The raw payload is replaced by
// its length; watchers needing the payload read the dead-letter stream.
func (b *Broadcaster) DeadLettered(dl *DeadLetter) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.connections) == 0 {
		return
	}

	notice := struct {
		Source      string `json:"source"`
		Subject     string `json:"subject"`
		EventID     string `json:"eventId,omitempty"`
		Reason      string `json:"reason"`
		Attempts    int    `json:"attempts"`
		FailedAt    string `json:"failedAt"`
		PayloadSize int    `json:"payloadSize"`
	}{
		Source:      dl.Source,
		Subject:     dl.Subject,
		EventID:     dl.EventID,
		Reason:      dl.Reason,
		Attempts:    dl.Attempts,
		FailedAt:    dl.FailedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		PayloadSize: len(dl.Payload),
	}

	data, err := json.Marshal(notice)
	if err != nil {
		slog.Error("failed to marshal dead-letter notice", "error", err)
		return
	}

	for conn := range b.connections {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			slog.Warn("failed to send dead-letter notice to websocket client",
				"error", err)
			// Connection will be cleaned up when client disconnects
		}
	}
}

// ConnectionCount returns the number of active watchers.
func (b *Broadcaster) ConnectionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.connections)
}
