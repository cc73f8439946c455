package pushgateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/pkg/mq"
	invdomain "storefront/internal/service/inventory/domain"
)

type memoryPresence struct {
	mu    sync.Mutex
	users map[string]string
}

func (p *memoryPresence) SetUserGateway(_ context.Context, userID, nodeID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[userID] = nodeID
	return nil
}

func (p *memoryPresence) RemoveUser(_ context.Context, userID, nodeID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.users[userID] == nodeID {
		delete(p.users, userID)
	}
	return nil
}

func (p *memoryPresence) UserGateway(_ context.Context, userID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.users[userID], nil
}

func startGateway(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub("node-test")
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Run(ctx) }()

	mux := http.NewServeMux()
	NewHandler(hub, nil).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?userId=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubBroadcastsInventoryEvents(t *testing.T) {
	hub, srv := startGateway(t)
	a := dial(t, srv, "admin-a")
	b := dial(t, srv, "admin-b")
	require.Eventually(t, func() bool { return hub.Count() == 2 }, time.Second, 5*time.Millisecond)

	value, err := mq.EncodeEnvelope(invdomain.EventLowStock, time.Now(), invdomain.LowStockAlert{SKU: "SKU-1", Available: 1})
	require.NoError(t, err)
	handle := InventoryFeedHandler(hub)
	require.NoError(t, handle(context.Background(), kafka.Message{Value: value}))

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, got, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, string(value), string(got))
	}
}

func TestInventoryFeedIgnoresOtherEvents(t *testing.T) {
	hub := NewHub("node-test")
	handle := InventoryFeedHandler(hub)

	value, err := mq.EncodeEnvelope("order.placed", time.Now(), map[string]string{"order_id": "o1"})
	require.NoError(t, err)
	require.NoError(t, handle(context.Background(), kafka.Message{Value: value}))
	assert.Len(t, hub.broadcast, 0)

	assert.Error(t, handle(context.Background(), kafka.Message{Value: []byte("nope")}))
}

func TestDisconnectUnregistersAndClearsPresence(t *testing.T) {
	hub := NewHub("node-1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	presence := &memoryPresence{users: map[string]string{}}
	mux := http.NewServeMux()
	NewHandler(hub, presence).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dial(t, srv, "admin-a")
	require.Eventually(t, func() bool {
		node, _ := presence.UserGateway(ctx, "admin-a")
		return hub.Count() == 1 && node == "node-1"
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		node, _ := presence.UserGateway(ctx, "admin-a")
		return hub.Count() == 0 && node == ""
	}, 2*time.Second, 5*time.Millisecond)
}

func TestServeWsRequiresUser(t *testing.T) {
	_, srv := startGateway(t)
	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBroadcastFailsAfterHubStops(t *testing.T) {
	hub := NewHub("node-1")
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	for i := 0; i < sendBuffer; i++ {
		hub.broadcast <- nil
	}
	assert.Error(t, hub.Broadcast(context.Background(), []byte("x")))
}
