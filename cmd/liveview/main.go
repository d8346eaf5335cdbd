package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/config"
	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/logger"
	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/metrics"
	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/prefs"
	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/session"
	"github.com/dj-oyu/ai-wifi-cam/liveview/internal/webmonitor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}

	flag.StringVar(&cfg.Origin, "origin", cfg.Origin, "Page origin the device endpoints are derived from (e.g. https://192.168.4.1)")
	flag.IntVar(&cfg.DevicePort, "device-port", cfg.DevicePort, "Device WebSocket port")
	flag.StringVar(&cfg.ControlPath, "control-path", cfg.ControlPath, "Control channel path")
	flag.StringVar(&cfg.VideoPath, "video-path", cfg.VideoPath, "Video channel path")
	flag.DurationVar(&cfg.ReconnectDelay, "reconnect-delay", cfg.ReconnectDelay, "Delay before redialing after the control channel drops")
	flag.StringVar(&cfg.Addr, "http", cfg.Addr, "HTTP server address")
	flag.StringVar(&cfg.AssetsDir, "assets", cfg.AssetsDir, "Asset override directory")
	flag.StringVar(&cfg.PrefsPath, "prefs", cfg.PrefsPath, "Preferences file (empty keeps them in memory)")
	flag.IntVar(&cfg.SnapshotQuality, "snapshot-quality", cfg.SnapshotQuality, "JPEG quality for snapshots and re-encoded stream frames")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error, silent)")
	flag.BoolVar(&cfg.LogColor, "log-color", cfg.LogColor, "Enable colored log output")
	flag.Parse()

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, cfg.LogColor)

	if err := cfg.Validate(); err != nil {
		logger.Error("Main", "Invalid configuration: %v", err)
		os.Exit(2)
	}

	store := prefs.NewStore(cfg.PrefsPath)
	if _, err := store.Load(); err != nil {
		logger.Warn("Main", "Preferences not loaded, using defaults: %v", err)
	}

	m := metrics.New()
	sess := session.New(cfg, session.Options{Metrics: m})
	srv, err := webmonitor.NewServer(cfg, sess, store, m)
	if err != nil {
		logger.Error("Main", "Failed to create web server: %v", err)
		os.Exit(1)
	}
	defer srv.Close()
	sess.Observe(srv)

	control, video := sess.Endpoints()
	logger.Info("Main", "Live view listening on %s", cfg.Addr)
	logger.Info("Main", "Device control=%s video=%s", control, video)
	logger.Info("Main", "Log level: %s", level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sess.Run(gctx)
	})
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Main", "Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Main", "Exited with error: %v", err)
		os.Exit(1)
	}
	logger.Info("Main", "Stopped")
}
