package server

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// maxCommandBytes caps one incoming command message. The largest command,
// notifications/email/update, stays well below it.
const maxCommandBytes = 16 << 10

// WebSocketConn is the interface for WebSocket connection operations.
type WebSocketConn interface {
	io.Closer
	WriteJSON(v any) error
	ReadJSON(v any) error
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     checkOrigin,
}

// checkOrigin admits same-origin, loopback and private-network browsers.
// The meter UI is served on a LAN; cross-site pages are refused.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // Same-origin requests may omit Origin
	}

	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		slog.Warn("rejected WebSocket connection: invalid origin URL", "origin", origin)
		return false
	}

	if originAllowed(u.Hostname(), r.Host) {
		return true
	}
	slog.Warn("rejected WebSocket connection", "origin", origin, "host", r.Host)
	return false
}

// originAllowed reports whether originHost may talk to a server reached as requestHost.
func originAllowed(originHost, requestHost string) bool {
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}
	if strings.EqualFold(originHost, requestHost) || strings.EqualFold(originHost, "localhost") {
		return true
	}
	ip := net.ParseIP(originHost)
	return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and bounds
// the size of incoming messages.
func UpgradeConnection(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxCommandBytes)
	return conn, nil
}
