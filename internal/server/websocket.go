package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// originAllowed accepts same-origin requests plus anything from localhost or
// a private LAN range. The agent lives on a trusted network; everything else
// is rejected.
func originAllowed(origin, host string) bool {
	if origin == "" {
		// No Origin header means a same-origin or non-browser client.
		return true
	}
	if strings.HasPrefix(origin, "http://"+host) || strings.HasPrefix(origin, "https://"+host) {
		return true
	}
	if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
		return true
	}
	return strings.Contains(origin, "://192.168.") || strings.Contains(origin, "://10.")
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if originAllowed(origin, r.Host) {
			return true
		}
		slog.Warn("rejected WebSocket connection", "origin", origin)
		return false
	},
}

// UpgradeConnection upgrades an HTTP connection to WebSocket.
func UpgradeConnection(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return upgrader.Upgrade(w, r, nil)
}
