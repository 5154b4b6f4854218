// Package indengine wires the live indicator service: websocket ticks are
// folded into bars, bars drive the indicator engine, and results fan out to
// Redis and WebSocket clients. Finished bars are persisted to SQLite and
// replayed on the next start to warm the pipelines.
package indengine

import (
	"context"
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mihakralj/QuanTAlib-sub003/internal/config"
	"github.com/mihakralj/QuanTAlib-sub003/internal/feed/barbuilder"
	"github.com/mihakralj/QuanTAlib-sub003/internal/feed/wsfeed"
	"github.com/mihakralj/QuanTAlib-sub003/internal/indicator"
	"github.com/mihakralj/QuanTAlib-sub003/internal/metrics"
	"github.com/mihakralj/QuanTAlib-sub003/internal/model"
	"github.com/mihakralj/QuanTAlib-sub003/internal/series"
	"github.com/mihakralj/QuanTAlib-sub003/internal/sink"
	"github.com/mihakralj/QuanTAlib-sub003/internal/sink/alert"
	redissink "github.com/mihakralj/QuanTAlib-sub003/internal/sink/redis"
	wssink "github.com/mihakralj/QuanTAlib-sub003/internal/sink/ws"
	sqlitestore "github.com/mihakralj/QuanTAlib-sub003/internal/store/sqlite"
)

const (
	tickBuffer   = 10000
	updateBuffer = 5000
	resultBuffer = 10000
	barBuffer    = 1000
)

// Service is the top-level orchestrator. The engine is owned by the process
// loop goroutine; everything else reaches it through do.
type Service struct {
	cfg *config.Config

	registry *prometheus.Registry
	prom     *metrics.Metrics
	health   *metrics.HealthStatus

	engine    *indicator.Engine
	builder   *barbuilder.Builder
	feed      *wsfeed.Client
	sqlWriter *sqlitestore.Writer
	sqlReader *sqlitestore.Reader
	publisher *redissink.Publisher
	hub       *wssink.Hub
	fanout    *sink.FanOut
	alerts    *alert.Watcher

	ticks   chan model.Tick
	updates chan model.BarUpdate
	results chan model.IndicatorResult
	closed  chan model.Bar
	cmds    chan func(*indicator.Engine)

	bg sync.WaitGroup
}

// New validates cfg and connects the optional stores. An empty Redis address
// or SQLite path disables that adapter; an empty feed URL leaves the service
// waiting for bar updates from another source.
func New(cfg *config.Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine, err := indicator.NewEngine(cfg.Pipeline, cfg.MaxDepth)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	svc := &Service{
		cfg:      cfg,
		registry: reg,
		prom:     metrics.NewMetrics(reg),
		health:   metrics.NewHealthStatus(),
		engine:   engine,
		builder:  barbuilder.New(cfg.TF),
		hub:      wssink.NewHub(),
		fanout:   sink.NewFanOut(resultBuffer),
		ticks:    make(chan model.Tick, tickBuffer),
		updates:  make(chan model.BarUpdate, updateBuffer),
		results:  make(chan model.IndicatorResult, resultBuffer),
		closed:   make(chan model.Bar, barBuffer),
		cmds:     make(chan func(*indicator.Engine)),
	}
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if cfg.SQLite.Path != "" {
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrapf(err, "sqlite: create data dir %s", dir)
			}
		}
		svc.sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLite.Path})
		if err != nil {
			return nil, err
		}
		svc.sqlReader, err = sqlitestore.NewReader(cfg.SQLite.Path)
		if err != nil {
			svc.sqlWriter.Close()
			return nil, err
		}
		svc.health.RequireSQLite = true
	}

	if cfg.Redis.Addr != "" {
		svc.publisher, err = redissink.New(redissink.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			StreamMaxLen: cfg.Redis.StreamMaxLen,
		})
		if err != nil {
			svc.closeStores()
			return nil, err
		}
		svc.health.RequireRedis = true
	}

	if cfg.Feed.URL != "" {
		svc.feed, err = wsfeed.New(wsfeed.Config{URL: cfg.Feed.URL, MaxReconnectDelay: cfg.Feed.MaxReconnect})
		if err != nil {
			svc.closeStores()
			return nil, err
		}
	}

	if len(cfg.Alerts.Series) > 0 {
		var n alert.Notifier = alert.LogNotifier{}
		if cfg.Alerts.Webhook != "" {
			n = alert.NewWebhookNotifier(cfg.Alerts.Webhook)
		}
		svc.alerts = alert.NewWatcher(n, cfg.Alerts.Series)
	}

	svc.wireHooks()
	return svc, nil
}

func (svc *Service) wireHooks() {
	prom, health := svc.prom, svc.health

	svc.engine.OnPipeline = func(key string, nodes int) {
		prom.Pipelines.Inc()
		prom.Nodes.Add(float64(nodes))
		log.Printf("[indengine] pipeline %s built (%d nodes)", key, nodes)
	}
	svc.builder.OnStale = func(t model.Tick) {
		prom.StaleTicks.Inc()
	}
	svc.builder.OnBarClosed = func(b model.Bar) {
		if svc.sqlWriter == nil {
			return
		}
		select {
		case svc.closed <- b:
		default:
			log.Printf("[indengine] bar persistence queue full, dropping %s ts=%v", b.Key(), b.TS)
		}
	}
	if svc.feed != nil {
		svc.feed.Accept = svc.cfg.AcceptsSymbol
		svc.feed.OnConnect = func() { health.SetFeedConnected(true) }
		svc.feed.OnDisconnect = func(error) {
			health.SetFeedConnected(false)
			prom.WSReconnects.Inc()
		}
		svc.feed.OnTick = func(t model.Tick) {
			prom.TicksTotal.Inc()
			health.SetLastTickTime(t.TS)
		}
	}
	if svc.sqlWriter != nil {
		svc.sqlWriter.OnCommit = func(_ int, d time.Duration) { prom.SQLiteCommitDur.Observe(d.Seconds()) }
	}
	if svc.publisher != nil {
		svc.publisher.OnPublish = func(_ int, d time.Duration) { prom.RedisPublishDur.Observe(d.Seconds()) }
		svc.publisher.OnError = func(error) { prom.RedisErrors.Inc() }
		svc.publisher.Breaker().OnStateChange = func(from, to redissink.BreakerState) {
			log.Printf("[indengine] redis breaker %s -> %s", from, to)
		}
	}
	if svc.alerts != nil {
		svc.alerts.OnAlert = func(alert.Alert) { prom.AlertsTotal.Inc() }
	}
	svc.fanout.OnDrop = func(name string, _ model.IndicatorResult) { prom.SinkDrops.WithLabelValues(name).Inc() }
	svc.hub.OnDrop = func() { prom.WSDrops.Inc() }
	svc.hub.OnClientCount = func(n int) { prom.WSClients.Set(float64(n)) }
}

// Run warms the engine from stored bars, starts every subsystem and blocks
// until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	log.Printf("[indengine] starting: tf=%ds indicators=%d symbols=%v", svc.cfg.TF, len(svc.cfg.Pipeline), svc.cfg.Symbols)

	svc.backfill()
	svc.health.SetEngineOK(true)

	redisCh := svc.fanout.Subscribe("redis")
	wsCh := svc.fanout.Subscribe("ws")
	if svc.alerts != nil {
		alertCh := svc.fanout.Subscribe("alert")
		svc.goBackground(func() { svc.alerts.Run(ctx, alertCh) })
	}
	svc.goBackground(func() { svc.fanout.Run(ctx, svc.results) })
	svc.goBackground(func() { svc.hub.Run(ctx, wsCh) })
	if svc.publisher != nil {
		svc.goBackground(func() { svc.publisher.Run(ctx, redisCh) })
		svc.goBackground(func() { svc.subscribeConfigs(ctx) })
	} else {
		svc.goBackground(func() { drain(ctx, redisCh) })
	}
	if svc.sqlWriter != nil {
		svc.goBackground(func() { svc.sqlWriter.Run(ctx, svc.closed) })
	}

	svc.goBackground(func() { svc.processLoop(ctx) })
	svc.goBackground(func() { svc.builder.Run(ctx, svc.ticks, svc.updates) })
	if svc.feed != nil {
		go svc.feed.Start(ctx, svc.ticks)
	} else {
		log.Println("[indengine] no feed url configured, waiting for bar updates")
	}

	svc.health.StartLivenessChecker(ctx, svc.redisClient(), svc.sqlDB(), 10*time.Second)
	server := metrics.NewServer(svc.cfg.HTTP.Addr, svc.health, svc.registry, svc.handlers())
	server.Start()

	log.Println("[indengine] all systems running")
	<-ctx.Done()

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Stop(shutCtx)
	svc.shutdown()
	return nil
}

func (svc *Service) goBackground(fn func()) {
	svc.bg.Add(1)
	go func() {
		defer svc.bg.Done()
		fn()
	}()
}

// backfill replays the most recent stored bars so live bars land on warm
// pipelines.
func (svc *Service) backfill() {
	if svc.sqlReader == nil {
		return
	}
	bf := indicator.NewBackfiller(svc.sqlReader, svc.cfg.TF)
	bf.Limit = svc.cfg.Backfill.Bars
	n := bf.Run(svc.engine, svc.cfg.Symbols, nil)
	svc.prom.BackfillBars.Add(float64(n))

	// The newest stored bar may be the one that was still forming at
	// shutdown; ticks in its bucket must revise it rather than append.
	for _, key := range svc.engine.Keys() {
		bars, ok := svc.engine.Bars(key)
		if !ok {
			continue
		}
		if last, ok := bars.Last(); ok && svc.builder.Seed(last) {
			log.Printf("[indengine] resuming %s bar at %v", key, last.TS)
		}
	}
	svc.health.SetSymbols(len(svc.engine.Keys()))
}

// processLoop owns the engine: it applies bar updates and runs commands
// queued through do.
func (svc *Service) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-svc.cmds:
			fn(svc.engine)
		case u, ok := <-svc.updates:
			if !ok {
				return
			}
			svc.apply(ctx, u)
		}
	}
}

func (svc *Service) apply(ctx context.Context, u model.BarUpdate) {
	start := time.Now()
	results, err := svc.engine.Process(u.Bar, u.Revise)
	svc.prom.ObserveProcess(u.Revise, time.Since(start), len(results), err)
	if err != nil {
		var ooo *series.OutOfOrderError
		if !errors.As(err, &ooo) {
			svc.health.SetEngineOK(false)
		}
		log.Printf("[indengine] %v", err)
		return
	}
	svc.health.SetSymbols(len(svc.engine.Keys()))
	for _, r := range results {
		select {
		case svc.results <- r:
		case <-ctx.Done():
			return
		}
	}
}

// do runs fn on the process loop and waits for it to finish.
func (svc *Service) do(ctx context.Context, fn func(*indicator.Engine)) error {
	done := make(chan struct{})
	wrapped := func(e *indicator.Engine) {
		defer close(done)
		fn(e)
	}
	select {
	case svc.cmds <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (svc *Service) redisClient() *goredis.Client {
	if svc.publisher == nil {
		return nil
	}
	return svc.publisher.Client()
}

func (svc *Service) sqlDB() *sql.DB {
	if svc.sqlWriter == nil {
		return nil
	}
	return svc.sqlWriter.DB()
}

func drain(ctx context.Context, ch <-chan model.IndicatorResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
		}
	}
}

// shutdown waits for the background loops, persists the bars flushed by the
// builder on exit and closes connections.
func (svc *Service) shutdown() {
	log.Println("[indengine] shutting down")
	svc.bg.Wait()
	for _, st := range svc.fanout.Stats() {
		if st.Dropped > 0 {
			log.Printf("[indengine] sink %s dropped %d results", st.Name, st.Dropped)
		}
	}
	if svc.sqlWriter != nil {
		var pending []model.Bar
	collect:
		for {
			select {
			case b := <-svc.closed:
				pending = append(pending, b)
			default:
				break collect
			}
		}
		if err := svc.sqlWriter.WriteBars(pending); err != nil {
			log.Printf("[indengine] final bar flush: %v", err)
		}
	}
	svc.engine.Close()
	svc.closeStores()
	log.Println("[indengine] shutdown complete")
}

func (svc *Service) closeStores() {
	if svc.sqlReader != nil {
		svc.sqlReader.Close()
	}
	if svc.sqlWriter != nil {
		svc.sqlWriter.Close()
	}
	if svc.publisher != nil {
		svc.publisher.Close()
	}
}
