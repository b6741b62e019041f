package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
)

type Event struct {
	Type string `json:"type"` // status|experiment|sweep
	Data any    `json:"data"`
}

type sseHub struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
	done    chan struct{}
	closed  bool
}

func newHub() *sseHub {
	return &sseHub{clients: map[chan []byte]struct{}{}, done: make(chan struct{})}
}

func (h *sseHub) Subscribe(c echo.Context) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch := make(chan []byte, 16)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
	}()

	fmt.Fprintf(w, "event: status\ndata: {\"msg\":\"connected\"}\n\n")
	w.Flush()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case <-h.done:
			return nil
		case msg := <-ch:
			fmt.Fprintf(w, "data: %s\n\n", msg)
			w.Flush()
		}
	}
}

// Publish sends ev to every subscriber; slow subscribers miss events.
func (h *sseHub) Publish(ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- b:
		default:
		}
	}
}

func (h *sseHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.done)
	}
}

func (h *sseHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
