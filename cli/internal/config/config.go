package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/pion/webrtc/v4"
)

// Default configuration values
const (
	DefaultServer = "ws://localhost:8080"
	DefaultSTUN   = "stun:stun.l.google.com:19302"
)

// Config holds the CLI configuration
type Config struct {
	// ServerURL is the relay's base URL, ws:// or wss://.
	ServerURL string

	// WebSocketURL is ServerURL with the /ws path.
	WebSocketURL string

	// ICE overrides. When none is set the relay's config-ice list is used.
	STUNServers []string
	TURNServers []string
	TURNUser    string
	TURNPass    string

	// ForceRelay restricts media to TURN candidates.
	ForceRelay bool
}

// Options carries CLI flag values
type Options struct {
	Server     string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	return load(opts, os.Getenv)
}

func load(opts Options, getenv func(string) string) (*Config, error) {
	server := firstNonEmpty(opts.Server, getenv("TALKR_SERVER"), DefaultServer)
	wsURL, err := websocketURL(server)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerURL:    strings.TrimSuffix(server, "/"),
		WebSocketURL: wsURL,
		STUNServers:  splitList(firstNonEmpty(opts.STUNServer, getenv("STUN_SERVER"))),
		TURNServers:  splitList(firstNonEmpty(opts.TURNServer, getenv("TURN_SERVER"))),
		TURNUser:     firstNonEmpty(opts.TURNUser, getenv("TURN_USERNAME")),
		TURNPass:     firstNonEmpty(opts.TURNPass, getenv("TURN_PASSWORD")),
		ForceRelay:   opts.ForceRelay,
	}

	if len(cfg.TURNServers) > 0 && (cfg.TURNUser == "" || cfg.TURNPass == "") {
		return nil, fmt.Errorf("TURN server %q needs a username and password", cfg.TURNServers[0])
	}
	return cfg, nil
}

// websocketURL validates server and appends /ws unless a path is present.
func websocketURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", server, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server URL %q: scheme must be ws or wss", server)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server URL %q: missing host", server)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// RoomLink returns a shareable link for a room ID
func (c *Config) RoomLink(roomID string) string {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return roomID
	}
	scheme := "https"
	if u.Scheme == "ws" || u.Scheme == "http" {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/r/%s", scheme, u.Host, roomID)
}

// HasICEOverride reports whether STUN or TURN servers were configured locally.
func (c *Config) HasICEOverride() bool {
	return len(c.STUNServers) > 0 || len(c.TURNServers) > 0
}

// ICEServers picks the servers for the peer connection: the local override
// when there is one, else what the relay sent, else public STUN.
func (c *Config) ICEServers(fromRelay []webrtc.ICEServer) []webrtc.ICEServer {
	if !c.HasICEOverride() {
		if len(fromRelay) > 0 {
			return fromRelay
		}
		return []webrtc.ICEServer{{URLs: []string{DefaultSTUN}}}
	}

	var servers []webrtc.ICEServer
	if len(c.STUNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: c.STUNServers})
	}
	if len(c.TURNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:       c.TURNServers,
			Username:   c.TURNUser,
			Credential: c.TURNPass,
		})
	}
	return servers
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
