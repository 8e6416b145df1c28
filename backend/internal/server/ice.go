package server

import (
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/talkr-dev/talkr/backend/internal/config"
	"github.com/talkr-dev/talkr/backend/internal/signaling"
	"github.com/talkr-dev/talkr/backend/internal/turn"
)

// ICEServers returns the provider the hub calls on every accepted join. When
// gen is non-nil, TURN entries get fresh REST credentials each call.
func ICEServers(static []webrtc.ICEServer, gen *turn.Generator, logger *slog.Logger) func() []signaling.ICEServer {
	if logger == nil {
		logger = slog.Default()
	}
	return func() []signaling.ICEServer {
		out := make([]signaling.ICEServer, 0, len(static))
		var creds *turn.Credentials
		for _, s := range static {
			entry := signaling.ICEServer{
				URLs:     append([]string(nil), s.URLs...),
				Username: s.Username,
			}
			if cred, ok := s.Credential.(string); ok {
				entry.Credential = cred
			}
			if gen != nil && config.IsTURN(s) {
				if creds == nil {
					c := gen.Generate()
					creds = &c
					logger.Debug("issued turn credentials", "expires", c.Expiry)
				}
				entry.Username = creds.Username
				entry.Credential = creds.Credential
			}
			out = append(out, entry)
		}
		return out
	}
}
