package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, *httptest.Server, context.CancelFunc) {
	t.Helper()
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)
	t.Cleanup(cancel)
	return hub, srv, cancel
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.ClientCount() == n }, time.Second, 5*time.Millisecond)
}

func TestHubBroadcastsToAllClients(t *testing.T) {
	hub, srv, _ := startHub(t)
	a := dial(t, srv)
	b := dial(t, srv)
	waitClients(t, hub, 2)

	data, err := Encode(TypeSnapshot, map[string]int{"cycle": 3})
	require.NoError(t, err)
	hub.Broadcast(data)

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, got, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg struct {
			Type    string         `json:"type"`
			Payload map[string]int `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(got, &msg))
		assert.Equal(t, TypeSnapshot, msg.Type)
		assert.Equal(t, 3, msg.Payload["cycle"])
	}
}

func TestHubUnregistersClosedClients(t *testing.T) {
	hub, srv, _ := startHub(t)
	conn := dial(t, srv)
	waitClients(t, hub, 1)

	conn.Close()
	waitClients(t, hub, 0)
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub, srv, cancel := startHub(t)
	conn := dial(t, srv)
	waitClients(t, hub, 1)

	cancel()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestFanoutWithoutBridge(t *testing.T) {
	hub, srv, _ := startHub(t)
	conn := dial(t, srv)
	waitClients(t, hub, 1)

	NewFanout(context.Background(), hub, nil, nil).Send(TypeAlert, map[string]string{"id": "a1"})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, got, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"alert","payload":{"id":"a1"}}`, string(got))
}

type blockingPublisher struct {
	release chan struct{}
	got     chan []byte
}

func (p *blockingPublisher) Publish(ctx context.Context, data []byte) error {
	select {
	case <-p.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.got <- data
	return nil
}

func TestFanoutSendDoesNotWaitForPublisher(t *testing.T) {
	hub, _, _ := startHub(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pub := &blockingPublisher{release: make(chan struct{}), got: make(chan []byte, publishQueueSize+1)}
	f := NewFanout(ctx, hub, pub, nil)

	sent := make(chan struct{})
	go func() {
		for i := 0; i < publishQueueSize*2; i++ {
			f.Send(TypeECG, i)
		}
		close(sent)
	}()
	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a stalled publisher")
	}

	close(pub.release)
	select {
	case data := <-pub.got:
		assert.JSONEq(t, `{"type":"ecg","payload":0}`, string(data))
	case <-time.After(time.Second):
		t.Fatal("queued message was not published")
	}
}

func TestBridgeSkipsOwnMessages(t *testing.T) {
	own := NewRedisBridge(nil, "chan", nil)
	other := NewRedisBridge(nil, "chan", nil)

	payload, err := own.wrap([]byte(`{"type":"snapshot"}`))
	require.NoError(t, err)

	_, ok := own.unwrap(string(payload))
	assert.False(t, ok)

	data, ok := other.unwrap(string(payload))
	require.True(t, ok)
	assert.JSONEq(t, `{"type":"snapshot"}`, string(data))

	_, ok = other.unwrap("not json")
	assert.False(t, ok)
}

// Runs only when TEST_REDIS_URL points at a disposable Redis.
func TestRedisBridgeRelay(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rdb, err := ConnectRedis(ctx, url)
	require.NoError(t, err)
	defer rdb.Close()

	hub, srv, _ := startHub(t)
	conn := dial(t, srv)
	waitClients(t, hub, 1)

	receiver := NewRedisBridge(rdb, "vitalwatch:test", nil)
	sender := NewRedisBridge(rdb, "vitalwatch:test", nil)
	go receiver.Relay(ctx, hub)
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, sender.Publish(ctx, []byte(`{"type":"snapshot","payload":null}`)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"snapshot","payload":null}`, string(got))
}
