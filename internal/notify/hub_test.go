package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.ServeWS(w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestPublishToUserReachesOnlyThatUser(t *testing.T) {
	hub := NewHub(nil, []string{"*"})
	server := newTestServer(t, hub)

	alice1 := dial(t, server, "alice")
	alice2 := dial(t, server, "alice")
	bob := dial(t, server, "bob")

	require.Eventually(t, func() bool {
		return hub.ClientCount("alice") == 2 && hub.ClientCount("bob") == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.PublishToUser("alice", "places_changed", map[string]any{"places": []string{"p1"}})

	for _, conn := range []*websocket.Conn{alice1, alice2} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg struct {
			Type string `json:"type"`
			Data struct {
				Places []string `json:"places"`
			} `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "places_changed", msg.Type)
		assert.Equal(t, []string{"p1"}, msg.Data.Places)
	}

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := bob.ReadMessage()
	assert.Error(t, err, "bob receives nothing")
}

func TestPingIsAnsweredWithPong(t *testing.T) {
	hub := NewHub(nil, []string{"*"})
	server := newTestServer(t, hub)
	conn := dial(t, server, "alice")

	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypePing}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageTypePong, msg.Type)
}

func TestDisconnectUnregisters(t *testing.T) {
	hub := NewHub(nil, []string{"*"})
	server := newTestServer(t, hub)
	conn := dial(t, server, "alice")

	require.Eventually(t, func() bool { return hub.ClientCount("alice") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ClientCount("alice") == 0 }, 2*time.Second, 10*time.Millisecond)

	assert.NotPanics(t, func() { hub.PublishToUser("alice", "places_changed", nil) })
}

func TestServeClosesClientsOnShutdown(t *testing.T) {
	hub := NewHub(nil, []string{"*"})
	server := newTestServer(t, hub)
	conn := dial(t, server, "alice")

	require.Eventually(t, func() bool { return hub.ClientCount("alice") == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx) }()
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 0, hub.ClientCount("alice"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
}

func TestCheckOrigin(t *testing.T) {
	hub := NewHub(nil, []string{"https://rentmap.example"})

	ok := httptest.NewRequest(http.MethodGet, "/", nil)
	ok.Header.Set("Origin", "https://rentmap.example")
	assert.True(t, hub.upgrader.CheckOrigin(ok))

	bad := httptest.NewRequest(http.MethodGet, "/", nil)
	bad.Header.Set("Origin", "https://evil.example")
	assert.False(t, hub.upgrader.CheckOrigin(bad))
}
