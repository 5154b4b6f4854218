// Package redis publishes indicator results to Redis.
//
// For every result the publisher PUBLISHes the JSON on the result channel
// ("ind:{name}:{tf}s:{symbol}") and overwrites "{channel}:latest". When a
// result opens a new tail, the previous tail value can no longer change and is
// appended to the capped stream "stream:{channel}".
package redis

import (
	"context"
	"log"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/mihakralj/QuanTAlib-sub003/internal/model"
)

const (
	defaultStreamMaxLen = 10000
	defaultLatestTTL    = 30 * time.Minute
	maxBatch            = 256
)

// Config configures the publisher.
type Config struct {
	Addr         string // e.g. "localhost:6379"
	Password     string
	DB           int
	StreamMaxLen int64         // approximate MAXLEN for committed streams
	LatestTTL    time.Duration // expiry of the latest keys
}

func (c *Config) defaults() {
	if c.StreamMaxLen <= 0 {
		c.StreamMaxLen = defaultStreamMaxLen
	}
	if c.LatestTTL <= 0 {
		c.LatestTTL = defaultLatestTTL
	}
}

// Publisher writes indicator results through pipelined commands guarded by a
// circuit breaker.
type Publisher struct {
	client  *goredis.Client
	cfg     Config
	breaker *Breaker

	mu      sync.Mutex
	pending map[string]model.IndicatorResult // channel -> current tail

	// Optional hooks for metrics.
	OnPublish func(n int, d time.Duration)
	OnError   func(err error)
}

// New connects to Redis and pings it.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "redis ping %s", cfg.Addr)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *goredis.Client, cfg Config) *Publisher {
	cfg.defaults()
	return &Publisher{
		client:  client,
		cfg:     cfg,
		breaker: NewBreaker(5, 10*time.Second),
		pending: make(map[string]model.IndicatorResult, 256),
	}
}

// Client returns the underlying client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Breaker exposes the circuit breaker so callers can observe state changes.
func (p *Publisher) Breaker() *Breaker { return p.breaker }

// LatestKey is the key holding the newest JSON for a result.
func LatestKey(r *model.IndicatorResult) string { return r.Channel() + ":latest" }

// StreamKey is the stream holding committed values for a result.
func StreamKey(r *model.IndicatorResult) string { return "stream:" + r.Channel() }

// Publish writes a batch of results in one pipeline.
func (p *Publisher) Publish(ctx context.Context, results []model.IndicatorResult) error {
	if len(results) == 0 {
		return nil
	}

	pipe := p.client.Pipeline()
	p.mu.Lock()
	for i := range results {
		r := &results[i]
		ch := r.Channel()
		data := string(r.JSON())

		if prev, ok := p.pending[ch]; ok && r.TS.After(prev.TS) {
			pipe.XAdd(ctx, &goredis.XAddArgs{
				Stream: StreamKey(&prev),
				MaxLen: p.cfg.StreamMaxLen,
				Approx: true,
				Values: map[string]interface{}{"data": string(prev.JSON())},
			})
		}
		if prev, ok := p.pending[ch]; !ok || !r.TS.Before(prev.TS) {
			p.pending[ch] = *r
		}

		pipe.Set(ctx, LatestKey(r), data, p.cfg.LatestTTL)
		pipe.Publish(ctx, ch, data)
	}
	p.mu.Unlock()

	start := time.Now()
	err := p.breaker.Do(func() error {
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		err = errors.Wrapf(err, "redis publish %d results", len(results))
		if p.OnError != nil {
			p.OnError(err)
		}
		return err
	}
	if p.OnPublish != nil {
		p.OnPublish(len(results), time.Since(start))
	}
	return nil
}

// Run publishes results from in, batching whatever is already queued.
// Blocks until ctx is cancelled or in is closed.
func (p *Publisher) Run(ctx context.Context, in <-chan model.IndicatorResult) {
	batch := make([]model.IndicatorResult, 0, maxBatch)
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-in:
			if !ok {
				return
			}
			batch = append(batch[:0], r)
		drain:
			for len(batch) < maxBatch {
				select {
				case r, ok := <-in:
					if !ok {
						break drain
					}
					batch = append(batch, r)
				default:
					break drain
				}
			}
			if err := p.Publish(ctx, batch); err != nil && !errors.Is(err, ErrBreakerOpen) {
				log.Printf("[redis] %v", err)
			}
		}
	}
}

// Close closes the client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
