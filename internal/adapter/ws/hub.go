// Package ws implements the WebSocket adapter that streams a job's audit
// trail to subscribed clients in real time.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	JobID   string          `json:"job_id"`
	Payload json.RawMessage `json:"payload"`
}

// conn wraps a single WebSocket connection subscribed to one job.
type conn struct {
	ws     *websocket.Conn
	cancel context.CancelFunc
}

// Hub manages active WebSocket connections keyed by job id. A subscriber
// only receives events for the job it connected to.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*conn]struct{}
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*conn]struct{}),
	}
}

// Subscribe upgrades the request to a WebSocket connection and registers it
// as a watcher of the given job. The caller has already validated the job.
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request, jobID string) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	// The subscription must outlive the HTTP handler: net/http cancels
	// r.Context() as soon as Subscribe returns, which would tear the
	// connection down before the first event. Keep the request values but
	// detach from its cancellation.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &conn{ws: ws, cancel: cancel}

	h.mu.Lock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[*conn]struct{})
	}
	h.subs[jobID][c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket subscribed", "job_id", jobID, "remote", r.RemoteAddr)

	// Read loop (to detect disconnects and consume pings)
	go func() {
		defer func() {
			h.remove(jobID, c)
			_ = ws.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			_, _, err := ws.Read(ctx)
			if err != nil {
				return
			}
		}
	}()
}

// Publish marshals the payload and fans it out to every subscriber of the
// job. Delivery is best effort; a failed write drops the subscriber.
func (h *Hub) Publish(ctx context.Context, jobID, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}
	msg, err := json.Marshal(Message{
		Type:    eventType,
		JobID:   jobID,
		Payload: data,
	})
	if err != nil {
		slog.Error("marshal ws envelope", "type", eventType, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.subs[jobID] {
		if err := c.ws.Write(ctx, websocket.MessageText, msg); err != nil {
			slog.Debug("websocket write failed", "job_id", jobID, "error", err)
			go h.remove(jobID, c)
		}
	}
}

// SubscriberCount returns the number of active subscribers for a job.
func (h *Hub) SubscriberCount(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[jobID])
}

func (h *Hub) remove(jobID string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[jobID]
	if !ok {
		return
	}
	if _, ok := set[c]; ok {
		c.cancel()
		delete(set, c)
		slog.Info("websocket unsubscribed", "job_id", jobID)
	}
	if len(set) == 0 {
		delete(h.subs, jobID)
	}
}
