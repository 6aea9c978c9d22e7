package ws

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"advisor-marketplace/backend/internal/service"
	"advisor-marketplace/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T, userID uint) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := NewHub(logger.New(logger.Config{Level: "error", Output: io.Discard}))
	t.Cleanup(h.Close)

	engine := gin.New()
	engine.GET("/ws", func(c *gin.Context) {
		c.Set("userId", userID)
		h.HandleConnection(c)
	})

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	return h, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestNotifyDeliversToConnectedUser(t *testing.T) {
	h, url := newTestHub(t, uint(1))

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.Connected(1) }, time.Second, 10*time.Millisecond)

	h.Notify(context.Background(), 1, service.Notification{
		Kind:      service.NotifyMessage,
		SessionID: "sess-1",
		Body:      "hello",
	})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(frame), "sess-1")
}

func TestNotifyCountsOfflineUser(t *testing.T) {
	h := NewHub(logger.New(logger.Config{Level: "error", Output: io.Discard}))
	defer h.Close()

	// Must not block or panic without a connection.
	h.Notify(context.Background(), 99, service.Notification{Kind: service.NotifyAccepted})
	require.False(t, h.Connected(99))
}

// Reconnects close the replaced connection's send channel; notifications
// racing that replacement must not land on the closed channel.
func TestNotifySurvivesReconnectChurn(t *testing.T) {
	h, url := newTestHub(t, uint(1))

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				h.Notify(context.Background(), 1, service.Notification{
					Kind:      service.NotifyMessage,
					SessionID: "sess-1",
				})
			}
		}
	}()

	for i := 0; i < 25; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		require.Eventually(t, func() bool { return h.Connected(1) }, time.Second, time.Millisecond)
		conn.Close()
	}

	close(stop)
	<-done
}
