package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/studysync/feedrank/internal/middleware"
	"github.com/studysync/feedrank/internal/pipeline"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Observability endpoint for operators; origin checks are handled
		// at the edge.
		return true
	},
}

// DeadLetterHandlers serves the live dead-letter watch endpoint.
type DeadLetterHandlers struct {
	broadcaster *pipeline.Broadcaster
}

// NewDeadLetterHandlers creates the dead-letter handler set.
func NewDeadLetterHandlers(broadcaster *pipeline.Broadcaster) *DeadLetterHandlers {
	return &DeadLetterHandlers{broadcaster: broadcaster}
}

// Watch handles GET /api/v1/deadletters/watch. Each connected client
// receives a notice for every event the pipeline dead-letters.
func (h *DeadLetterHandlers) Watch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.ErrorContext(ctx, "failed to upgrade websocket connection", "error", err)
		return
	}

	h.broadcaster.Subscribe(conn)

	requestID := middleware.GetRequestID(ctx)
	slog.InfoContext(ctx, "websocket client subscribed to dead-letter notices",
		"request_id", requestID,
	)

	defer func() {
		h.broadcaster.Unsubscribe(conn)
		conn.Close()
		slog.InfoContext(ctx, "websocket client unsubscribed",
			"request_id", requestID,
		)
	}()

	// Clients don't send messages; reading detects disconnection.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.WarnContext(ctx, "websocket connection closed unexpectedly", "error", err)
			}
			break
		}
	}
}
