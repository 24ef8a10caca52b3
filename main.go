// Package main implements a headless capture agent that takes photos and
// records audio or video from local devices, spooling finished artifacts to
// disk and exposing a WebSocket control surface.
//
// Usage:
//
//	murmur-capture [-config path/to/config.json]
//
// If -config is omitted, the agent looks for config.json beside the binary.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/murmurhq/murmur-capture/internal/capture"
	"github.com/murmurhq/murmur-capture/internal/config"
	"github.com/murmurhq/murmur-capture/internal/device"
	"github.com/murmurhq/murmur-capture/internal/encoding"
	"github.com/murmurhq/murmur-capture/internal/notify"
	"github.com/murmurhq/murmur-capture/internal/store"
	"github.com/murmurhq/murmur-capture/internal/util"
)

func main() {
	configPath := flag.String("config", "", "Path to the config file (defaults to config.json beside the binary)")
	showVersion := flag.Bool("version", false, "Print build version and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("build info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to resolve executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("loading config", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	spool, err := store.NewDiskStore(cfg.StorePath())
	if err != nil {
		slog.Error("failed to open artifact store", "error", err)
		os.Exit(1)
	}

	cleanup := store.NewCleanup(spool, cfg.RetentionDays)
	cleanup.Start()

	notifier := notify.NewNotifier(cfg)

	acquirer, factory, prober := buildBackend(cfg)
	mgr := capture.NewManager(acquirer, factory, prober, spool, notifier)

	srv := NewServer(cfg, mgr, spool, notifier)
	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	sig := <-sigChan

	slog.Info("shutting down", "signal", sig.String())

	// Stop the control surface first so no new session can start.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("control server shutdown failed", "error", err)
	}

	// Release whatever the active session still holds.
	mgr.Shutdown()
	cleanup.Stop()

	slog.Info("agent stopped")
}

// buildBackend selects the capture implementation. The sim backend runs
// without devices or encoding tools and exists for development hosts; a
// missing binary on the exec backend surfaces per session, not at startup.
func buildBackend(cfg *config.Config) (device.Acquirer, encoding.Factory, encoding.Prober) {
	snapshot := cfg.Snapshot()

	if snapshot.Backend == "sim" {
		slog.Info("using simulated capture backend")
		return device.NewFakeAcquirer(), encoding.NewFakeFactory(), encoding.NewStaticProber(
			"audio/webm;codecs=opus",
			"video/webm;codecs=vp8",
		)
	}

	slog.Info("using exec capture backend", "audio_device", snapshot.AudioDevice, "video_device", snapshot.VideoDevice)
	return device.NewExecAcquirer(snapshot.AudioDevice, snapshot.VideoDevice),
		encoding.NewFFmpegFactory(),
		encoding.NewSystemProber()
}
