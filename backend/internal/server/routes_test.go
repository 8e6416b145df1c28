package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talkr-dev/talkr/backend/internal/signaling"
	"github.com/talkr-dev/talkr/backend/internal/turn"
)

func startRelay(t *testing.T, opts Options) (*httptest.Server, *signaling.Hub) {
	t.Helper()
	hub := signaling.NewHub(signaling.HubConfig{
		ICEServers: ICEServers([]webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}, nil, nil),
	})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewMux(hub, opts))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-hub.Done()
	})
	return srv, hub
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func recv(t *testing.T, conn *websocket.Conn) (map[string]any, []byte) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg, data
}

func TestRelay_RoomScenario(t *testing.T) {
	srv, hub := startRelay(t, Options{})

	a := dial(t, srv)
	send(t, a, `{"type":"join","roomId":"ABC123"}`)
	msg, _ := recv(t, a)
	assert.Equal(t, "config-ice", msg["type"])
	servers, ok := msg["iceServers"].([]any)
	require.True(t, ok, "iceServers is a list")
	assert.Len(t, servers, 1)

	b := dial(t, srv)
	send(t, b, `{"type":"join","roomId":"ABC123"}`)
	msg, _ = recv(t, b)
	assert.Equal(t, "config-ice", msg["type"])
	msg, _ = recv(t, a)
	assert.Equal(t, "ready", msg["type"])

	c := dial(t, srv)
	send(t, c, `{"type":"join","roomId":"ABC123"}`)
	msg, _ = recv(t, c)
	assert.Equal(t, "full", msg["type"])

	// Malformed input is ignored and the connection survives.
	send(t, a, `{not json`)

	key := `{"type":"key-exchange","roomId":"ABC123","key":{"kty":"EC","crv":"P-256","x":"x","y":"y","ext":true,"key_ops":[]}}`
	send(t, a, key)
	_, data := recv(t, b)
	assert.JSONEq(t, key, string(data))
	assert.Equal(t, key, string(data), "relayed bytes are verbatim")

	require.NoError(t, a.Close())
	msg, _ = recv(t, b)
	assert.Equal(t, "peer-left", msg["type"])

	require.Eventually(t, func() bool {
		return hub.Registry().Size("ABC123") == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRelay_HealthAndMetrics(t *testing.T) {
	srv, _ := startRelay(t, Options{})

	for _, path := range []string{"/", "/health"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, healthBody, string(body))
	}

	a := dial(t, srv)
	send(t, a, `{"type":"join","roomId":"room"}`)
	recv(t, a)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `talkr_relay_events_total{event="joins_accepted"} 1`)
	assert.Contains(t, string(body), `talkr_relay_events_total{event="rooms_created"} 1`)
}

func TestRelay_OriginAllowList(t *testing.T) {
	srv, _ := startRelay(t, Options{AllowedOrigins: []string{"https://talkr.example"}})
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"HTTPS://talkr.example:443"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	resp.Body.Close()
	conn.Close()
}

func TestNormalizeOrigin(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://Talkr.Example", "https://talkr.example", true},
		{"http://localhost:80", "http://localhost", true},
		{"http://localhost:5173", "http://localhost:5173", true},
		{"ftp://talkr.example", "", false},
		{"null", "", false},
	}
	for _, tt := range tests {
		got, ok := normalizeOrigin(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestICEServers_MintsTURNCredentials(t *testing.T) {
	gen, err := turn.NewGenerator(turn.Config{
		Secret: "talkr-local-secret",
		Now:    func() time.Time { return time.Unix(1_700_000_000, 0) },
	})
	require.NoError(t, err)

	provider := ICEServers([]webrtc.ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
		{URLs: []string{"turn:127.0.0.1:3478"}},
	}, gen, nil)

	servers := provider()
	require.Len(t, servers, 2)
	assert.Empty(t, servers[0].Username)
	assert.Equal(t, "1700086400:talkr-user", servers[1].Username)
	assert.Equal(t, turn.Sign([]byte("talkr-local-secret"), "1700086400:talkr-user"), servers[1].Credential)
}
