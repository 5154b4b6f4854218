// cmd/indengine runs the live indicator engine: websocket ticks are built
// into bars, pushed through the configured indicator graph and published to
// Redis and WebSocket subscribers.
//
// Usage:
//
//	go run ./cmd/indengine --config=config.yaml
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mihakralj/QuanTAlib-sub003/internal/config"
	"github.com/mihakralj/QuanTAlib-sub003/internal/indengine"
	"github.com/mihakralj/QuanTAlib-sub003/internal/logger"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to the YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("[indengine] config: %v", err)
	}
	logger.Init("indengine", logger.ParseLevel(cfg.Log.Level))

	svc, err := indengine.New(cfg)
	if err != nil {
		log.Fatalf("[indengine] init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("[indengine] fatal: %v", err)
	}
}
