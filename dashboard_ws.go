package main

import (
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/oszuidwest/zwfm-soundmeter/internal/audio"
	"github.com/oszuidwest/zwfm-soundmeter/internal/server"
	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
)

const (
	levelsPushInterval = 100 * time.Millisecond
	statusPushInterval = 3 * time.Second
	clientQueueSize    = 16
)

// dashboardClient serves one browser connection. The write goroutine is the
// only one touching conn for output; everything else queues on out. out is
// never closed because async command results may still arrive after the
// reader has gone.
type dashboardClient struct {
	srv  *Server
	conn server.WebSocketConn

	out     chan any
	gone    chan struct{} // closed when the reader stops
	refresh chan struct{} // coalesced status push requests
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	c := &dashboardClient{
		srv:     s,
		conn:    conn,
		out:     make(chan any, clientQueueSize),
		gone:    make(chan struct{}),
		refresh: make(chan struct{}, 1),
	}
	go c.write()
	go c.read()
	c.push()
}

func (c *dashboardClient) write() {
	defer func() {
		if err := c.conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for {
		select {
		case msg := <-c.out:
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-c.gone:
			return
		}
	}
}

func (c *dashboardClient) read() {
	defer close(c.gone)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
	}()

	for {
		var cmd server.WSCommand
		if err := c.conn.ReadJSON(&cmd); err != nil {
			return
		}
		c.srv.commands.Handle(cmd, c.out, c.requestStatus)
	}
}

// requestStatus asks the push loop for an early status frame.
func (c *dashboardClient) requestStatus() {
	select {
	case c.refresh <- struct{}{}:
	default:
	}
}

// enqueue hands msg to the writer unless the client went away.
func (c *dashboardClient) enqueue(msg any) bool {
	select {
	case c.out <- msg:
		return true
	case <-c.gone:
		return false
	}
}

// push streams levels and status until the reader stops.
func (c *dashboardClient) push() {
	levels := time.NewTicker(levelsPushInterval)
	defer levels.Stop()
	status := time.NewTicker(statusPushInterval)
	defer status.Stop()

	ok := c.enqueue(c.srv.statusFrame())
	for ok {
		select {
		case <-c.gone:
			return
		case <-levels.C:
			ok = c.enqueue(types.WSLevelsResponse{Type: "levels", Levels: c.srv.monitor.Levels()})
		case <-c.refresh:
			ok = c.enqueue(c.srv.statusFrame())
		case <-status.C:
			ok = c.enqueue(c.srv.statusFrame())
		}
	}
}

// statusFrame is the periodic dashboard snapshot.
func (s *Server) statusFrame() types.WSStatusResponse {
	cfg := s.config.Snapshot()

	return types.WSStatusResponse{
		Type:             "status",
		FFmpegAvailable:  s.ffmpegAvailable,
		Meter:            s.monitor.Status(),
		Devices:          audio.Devices(),
		LoudThreshold:    cfg.LoudThreshold,
		ScaleMax:         cfg.MeterMax,
		AlertDurationMs:  cfg.AlertDurationMs,
		AlertRecoveryMs:  cfg.AlertRecoveryMs,
		Webhook:          cfg.WebhookURL,
		LogPath:          cfg.LogPath,
		GraphTenantID:    cfg.GraphTenantID,
		GraphClientID:    cfg.GraphClientID,
		GraphFromAddress: cfg.GraphFromAddress,
		GraphRecipients:  cfg.GraphRecipients,
		Settings: types.WSSettings{
			Backend:    cfg.Backend,
			AudioInput: cfg.AudioInput,
			Platform:   runtime.GOOS,
		},
		Version: s.version.Info(),
	}
}
