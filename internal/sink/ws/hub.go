// Package ws broadcasts indicator results to WebSocket clients.
//
// Every result is wrapped in an envelope
//
//	{"channel":"ind:SMA_20:60s:BTC","data":{...},"ts":"...","seq":42}
//
// where seq increases by one per broadcast. New clients first receive the
// latest envelope of every channel they are subscribed to.
package ws

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mihakralj/QuanTAlib-sub003/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type latestEntry struct {
	symbol   string
	envelope []byte
}

// Hub owns the connected clients and the latest envelope per channel.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	latest  map[string]latestEntry
	seq     int64

	// Optional hooks for metrics.
	OnDrop        func()
	OnClientCount func(n int)
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		latest:  make(map[string]latestEntry),
	}
}

// Broadcast sends r to every client subscribed to its symbol.
func (h *Hub) Broadcast(r model.IndicatorResult) {
	channel := r.Channel()
	data := r.JSON()
	now := time.Now().UTC()

	h.mu.Lock()
	h.seq++
	env := envelope(channel, data, now, h.seq)
	h.latest[channel] = latestEntry{symbol: r.Symbol, envelope: env}
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(r.Symbol) {
			continue
		}
		select {
		case c.send <- env:
		default:
			if h.OnDrop != nil {
				h.OnDrop()
			}
		}
	}
}

// envelope builds the JSON by hand; data is already valid JSON.
func envelope(channel string, data []byte, ts time.Time, seq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+96)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = ts.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}

// Run broadcasts results from in until ctx is cancelled or in is closed,
// then disconnects every client.
func (h *Hub) Run(ctx context.Context, in <-chan model.IndicatorResult) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-in:
			if !ok {
				return
			}
			h.Broadcast(r)
		}
	}
}

// ServeHTTP upgrades the request. An optional "symbols" query parameter
// (comma separated) restricts what the client receives.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	c := newClient(h, conn)
	if q := r.URL.Query().Get("symbols"); q != "" {
		c.subscribe(strings.Split(q, ","))
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	log.Printf("[ws] client connected (%d total)", n)
	if h.OnClientCount != nil {
		h.OnClientCount(n)
	}

	c.sendInitialState()
	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok && h.OnClientCount != nil {
		h.OnClientCount(n)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	if h.OnClientCount != nil {
		h.OnClientCount(0)
	}
}
