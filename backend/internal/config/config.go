// Package config loads the relay's settings from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

const (
	envPort           = "PORT"
	envAllowedOrigins = "TALKR_ALLOWED_ORIGINS"
	envShutdown       = "TALKR_SHUTDOWN_TIMEOUT"

	envICEServersJSON = "TALKR_ICE_SERVERS_JSON"
	envStunURLs       = "TALKR_STUN_URLS"
	envTurnURLs       = "TALKR_TURN_URLS"
	envTurnUsername   = "TALKR_TURN_USERNAME"
	envTurnCredential = "TALKR_TURN_CREDENTIAL"
	envTurnSecret     = "TALKR_TURN_SECRET"
	envTurnTTL        = "TALKR_TURN_TTL"
)

const (
	DefaultPort            = "8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultTURNTTL         = 24 * time.Hour
)

// DefaultSTUNURLs is used when no ICE variables are set.
var DefaultSTUNURLs = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

type Config struct {
	// Addr is the listen address, ":" + PORT.
	Addr string

	// ICEServers is the static list sent in every config-ice.
	ICEServers []webrtc.ICEServer

	// TURNSecret enables per-join TURN REST credentials for the TURN entries
	// of ICEServers.
	TURNSecret string
	TURNTTL    time.Duration

	// AllowedOrigins restricts websocket upgrades. Empty allows every origin.
	AllowedOrigins []string

	ShutdownTimeout time.Duration
}

func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	port := strings.TrimSpace(getenv(envPort))
	if port == "" {
		port = DefaultPort
	}

	cfg := &Config{
		Addr:            ":" + port,
		TURNSecret:      getenv(envTurnSecret),
		TURNTTL:         DefaultTURNTTL,
		AllowedOrigins:  splitCommaSeparated(getenv(envAllowedOrigins)),
		ShutdownTimeout: DefaultShutdownTimeout,
	}

	var err error
	if cfg.TURNTTL, err = durationEnv(getenv, envTurnTTL, DefaultTURNTTL); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = durationEnv(getenv, envShutdown, DefaultShutdownTimeout); err != nil {
		return nil, err
	}

	if raw := strings.TrimSpace(getenv(envICEServersJSON)); raw != "" {
		if cfg.ICEServers, err = ParseICEServersJSON(raw); err != nil {
			return nil, fmt.Errorf("%s: %w", envICEServersJSON, err)
		}
		return cfg, nil
	}

	stun := getenv(envStunURLs)
	if strings.TrimSpace(stun) == "" {
		stun = strings.Join(DefaultSTUNURLs, ",")
	}
	cfg.ICEServers, err = iceServersFromEnv(
		stun,
		getenv(envTurnURLs),
		getenv(envTurnUsername),
		getenv(envTurnCredential),
		cfg.TURNSecret != "",
	)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func durationEnv(getenv func(string) string, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive", key)
	}
	return d, nil
}
