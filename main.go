// Package main provides a web-based sound level meter that samples a
// microphone (or a synthetic test tone), shows a live bar meter and
// raises alerts when the environment stays too loud.
//
// Usage:
//
//	soundmeter [-config path/to/config.json] [-autostart]
//
// If -config is not specified, the meter looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/oszuidwest/zwfm-soundmeter/internal/audio"
	"github.com/oszuidwest/zwfm-soundmeter/internal/config"
	"github.com/oszuidwest/zwfm-soundmeter/internal/events"
	"github.com/oszuidwest/zwfm-soundmeter/internal/monitor"
	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
	"github.com/oszuidwest/zwfm-soundmeter/internal/util"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	autostart := flag.Bool("autostart", false, "Start sampling immediately")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	snap := cfg.Snapshot()

	ffmpegAvailable := util.ResolveExecutable(cfg.GetFFmpegPath(), "ffmpeg") != ""
	if snap.Backend == types.BackendCapture {
		if tool, ok := audio.CaptureTool(cfg.GetFFmpegPath()); !ok {
			slog.Warn("capture tool not found, sampling will fail to start", "tool", tool)
		}
	}

	if snap.ReportStorage == types.StorageLocal || snap.ReportStorage == types.StorageBoth {
		if err := util.CheckPathWritable(snap.ReportLocalPath); err != nil {
			slog.Warn("report directory is not writable, local reports will fail",
				"path", snap.ReportLocalPath, "error", err)
		}
	}

	eventLogPath := snap.EventsLogPath
	if eventLogPath == "" {
		eventLogPath = events.DefaultLogPath(snap.WebPort)
	}
	eventLog, err := events.NewLogger(eventLogPath)
	if err != nil {
		slog.Warn("event log disabled", "path", eventLogPath, "error", err)
		eventLog = nil
	} else {
		slog.Info("event log enabled", "path", eventLog.Path())
	}

	mon := monitor.New(cfg, eventLog)
	version := NewVersionChecker()
	srv := NewServer(cfg, mon, version, ffmpegAvailable)

	if *autostart {
		slog.Info("starting meter", "backend", snap.Backend)
		if err := mon.Start(); err != nil {
			slog.Error("failed to start meter", "error", err)
		}
	}

	// Start web server.
	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	// Stop version checker goroutine
	version.Stop()

	// Shut down HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if err := mon.Shutdown(); err != nil {
		slog.Error("error stopping meter", "error", err)
	}
	if err := eventLog.Close(); err != nil {
		slog.Warn("failed to close event log", "error", err)
	}

	slog.Info("shutdown complete")
}
