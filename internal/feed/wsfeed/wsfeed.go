// Package wsfeed is a WebSocket tick client. It reads JSON ticks of the form
//
//	{"symbol":"BTCUSDT","price":64012.5,"qty":0.02,"ts":"2024-05-01T10:00:00Z"}
//
// and pushes them into a channel, reconnecting with exponential backoff
// whenever the connection drops.
package wsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mihakralj/QuanTAlib-sub003/internal/model"
)

// Config holds connection settings.
type Config struct {
	// URL of the tick server, e.g. "ws://localhost:9001/ws".
	URL string

	// ReconnectDelay is the first backoff step. Defaults to 1s.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Client streams ticks from one WebSocket endpoint.
type Client struct {
	cfg Config

	// Optional hooks.
	OnConnect    func()
	OnDisconnect func(err error)
	OnTick       func(t model.Tick)
	// Accept filters ticks before they are forwarded. Nil accepts everything.
	Accept func(symbol string) bool
}

// New validates the URL and returns a Client.
func New(cfg Config) (*Client, error) {
	cfg.defaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("wsfeed: parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("wsfeed: unsupported scheme %q", u.Scheme)
	}
	return &Client{cfg: cfg}, nil
}

// Start connects and streams ticks into out until ctx is cancelled.
func (c *Client) Start(ctx context.Context, out chan<- model.Tick) error {
	delay := c.cfg.ReconnectDelay
	for {
		if ctx.Err() != nil {
			return nil
		}

		connected, err := c.runOnce(ctx, out)
		if err == nil {
			return nil
		}
		if connected {
			delay = c.cfg.ReconnectDelay
		}

		log.Printf("[wsfeed] disconnected (%v), reconnecting in %s", err, delay)
		if c.OnDisconnect != nil {
			c.OnDisconnect(err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}
	}
}

// runOnce dials and reads until the connection fails or ctx is cancelled.
// connected reports whether the dial succeeded.
func (c *Client) runOnce(ctx context.Context, out chan<- model.Tick) (connected bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	log.Printf("[wsfeed] connected to %s", c.cfg.URL)
	if c.OnConnect != nil {
		c.OnConnect()
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return true, err
		}

		var t model.Tick
		if err := json.Unmarshal(raw, &t); err != nil {
			log.Printf("[wsfeed] parse error: %v (raw: %s)", err, raw)
			continue
		}
		if t.Symbol == "" {
			continue
		}
		if c.Accept != nil && !c.Accept(t.Symbol) {
			continue
		}
		if t.TS.IsZero() {
			t.TS = time.Now().UTC()
		}
		if c.OnTick != nil {
			c.OnTick(t)
		}

		select {
		case out <- t:
		case <-ctx.Done():
			return true, nil
		}
	}
}
