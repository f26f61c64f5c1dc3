// Command streamer runs the WebSocket streaming server described in
// spec.md §4.6, configured entirely from STREAMSERVER_* environment
// variables (spec.md §6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/xvii-vision/genicvbridge/internal/config"
	"github.com/xvii-vision/genicvbridge/internal/logging"
	"github.com/xvii-vision/genicvbridge/internal/stream"

	// Blank-imported so each backend's init() registers itself with
	// internal/backend. Only the package(s) built with their matching
	// build tag (-tags aravis/idspeak/spinnaker) actually link an SDK;
	// the others compile to their no-op stub and register nothing.
	_ "github.com/xvii-vision/genicvbridge/internal/backend/aravis"
	_ "github.com/xvii-vision/genicvbridge/internal/backend/idspeak"
	_ "github.com/xvii-vision/genicvbridge/internal/backend/spinnaker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logging.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	srv := stream.New(cfg.Addr(), stream.ProducerConfig{
		CamIndex:       cfg.CamIndex,
		Backend:        cfg.Backend,
		CompressionExt: cfg.CompressionExt,
		FPS:            cfg.FPS,
		MaxQueue:       cfg.MaxQueue,
		DebayerEnabled: true,
		BufferTimeout:  cfg.BufferTimeout,
		LineEnable:     cfg.LineEnable,
		TriggerPin:     cfg.TriggerPin,
	}, log)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	stopping := make(chan struct{})
	go func() {
		<-quit
		select {
		case <-stopping:
			return // repeated signal while already stopping: no-op
		default:
			close(stopping)
		}
		log.Info("shutting down")
		if err := srv.Stop(context.Background()); err != nil {
			log.Warn("shutdown did not complete cleanly", zap.Error(err))
		}
	}()

	log.Info("streamer starting", zap.String("addr", cfg.Addr()), zap.Stringer("backend", cfg.Backend))
	if err := srv.Run(); err != nil {
		log.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}

	log.Info("streamer exited")
}
