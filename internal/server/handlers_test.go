package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestServer runs a hub and HTTP server for integration-style tests and
// returns the websocket URL for the /ws endpoint.
func startTestServer(t *testing.T) (*Hub, string) {
	t.Helper()

	SetConfig(&Config{AllowedOrigins: []string{"*"}})
	t.Cleanup(func() { SetConfig(nil) })

	hub := NewHub()
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(5 * time.Second) })

	ts := httptest.NewServer(SetupRoutes(hub))
	t.Cleanup(ts.Close)

	return hub, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dialTestClient(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", "http://localhost:8080")

	conn, resp, err := dialer.Dial(wsURL, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err, "websocket dial failed")
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event map[string]any
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func TestChatScenarioOverWebSocket(t *testing.T) {
	_, wsURL := startTestServer(t)

	// Alice joins an empty lobby
	alice := dialTestClient(t, wsURL)
	require.NoError(t, alice.WriteJSON(ClientEvent{Type: EventJoinRoom, Username: "alice", Room: "lobby"}))

	welcome := readEvent(t, alice)
	assert.Equal(t, EventMessage, welcome["type"])
	assert.Equal(t, welcomeText, welcome["text"])

	roster := readEvent(t, alice)
	assert.Equal(t, EventRoomUsers, roster["type"])
	assert.Equal(t, []string{"alice"}, rosterNames(t, roster))

	// Bob joins the same room
	bob := dialTestClient(t, wsURL)
	require.NoError(t, bob.WriteJSON(ClientEvent{Type: EventJoinRoom, Username: "bob", Room: "lobby"}))

	joined := readEvent(t, alice)
	assert.Equal(t, "bob has joined the chat", joined["text"])
	roster = readEvent(t, alice)
	assert.Equal(t, []string{"alice", "bob"}, rosterNames(t, roster))

	welcome = readEvent(t, bob)
	assert.Equal(t, welcomeText, welcome["text"])
	roster = readEvent(t, bob)
	assert.Equal(t, []string{"alice", "bob"}, rosterNames(t, roster))

	// Alice chats; both members see the echo
	require.NoError(t, alice.WriteJSON(ClientEvent{Type: EventChatMessage, Text: "hi"}))
	for _, conn := range []*websocket.Conn{alice, bob} {
		msg := readEvent(t, conn)
		assert.Equal(t, "alice", msg["username"])
		assert.Equal(t, "hi", msg["text"])
	}

	// Bob disconnects; Alice sees the leave announcement and fresh roster
	require.NoError(t, bob.Close())

	left := readEvent(t, alice)
	assert.Equal(t, "bob has left the chat", left["text"])
	roster = readEvent(t, alice)
	assert.Equal(t, []string{"alice"}, rosterNames(t, roster))
}

func TestWebSocketEndpointRejectsNonGet(t *testing.T) {
	_, wsURL := startTestServer(t)
	httpURL := "http" + strings.TrimPrefix(wsURL, "ws")

	resp, err := http.Post(httpURL, "application/json", http.NoBody)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestWebSocketRejectsDisallowedOrigin(t *testing.T) {
	SetConfig(&Config{AllowedOrigins: []string{"http://chat.example"}})
	t.Cleanup(func() { SetConfig(nil) })

	hub := NewHub()
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(5 * time.Second) })

	ts := httptest.NewServer(SetupRoutes(hub))
	t.Cleanup(ts.Close)

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", "http://evil.example")

	conn, resp, err := dialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	assert.Error(t, err)
	assert.Nil(t, conn)
}

func TestHealthEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler(rec, httptest.NewRequest("GET", "/", nil))

	resp := rec.Result()
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Connectify server is running!", string(body))
}

func TestTestPageServesHTML(t *testing.T) {
	rec := httptest.NewRecorder()
	TestPageHandler(rec, httptest.NewRequest("GET", "/test", nil))

	resp := rec.Result()
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "joinRoom")
}
