package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/talkr-dev/talkr/backend/internal/signaling"
	"github.com/talkr-dev/talkr/internal/metrics"
)

const healthBody = "Talkr Signal Online"

// Options configures the relay's HTTP surface.
type Options struct {
	// AllowedOrigins lists the browser origins allowed to open /ws. Empty
	// allows every origin; "*" does the same explicitly.
	AllowedOrigins []string

	Logger *slog.Logger
}

// NewMux wires the relay routes onto a fresh ServeMux.
func NewMux(hub *signaling.Hub, opts Options) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", healthCheckHandler)
	mux.HandleFunc("GET /health", healthCheckHandler)
	mux.HandleFunc("GET /ws", ServeWs(hub, opts))
	mux.Handle("GET /metrics", metrics.PrometheusHandler("talkr_relay", hub.Metrics()))
	return mux
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(healthBody))
}

// ServeWs returns an http.HandlerFunc that upgrades the request and hands the
// connection to hub.
func ServeWs(hub *signaling.Hub, opts Options) http.HandlerFunc {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4 * 1024,
		WriteBufferSize: 4 * 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the HTTP error.
			logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "origin", r.Header.Get("Origin"), "error", err)
			return
		}

		client := signaling.NewClient(hub, conn)
		select {
		case hub.Register <- client:
		case <-hub.Done():
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if n, ok := normalizeOrigin(o); ok {
			set[n] = struct{}{}
		}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Native clients such as the talkr CLI send no Origin.
			return true
		}
		n, ok := normalizeOrigin(origin)
		if !ok {
			return false
		}
		_, ok = set[n]
		return ok
	}
}

// normalizeOrigin lowercases scheme and host and drops default ports.
func normalizeOrigin(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}
	return scheme + "://" + host, true
}
