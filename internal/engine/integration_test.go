package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"pricestream/internal/codec"
	"pricestream/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockFeed speaks the Finnhub protocol. The first connection is dropped
// right after its first trade so the client has to reconnect.
func mockFeed(t *testing.T, connections *atomic.Int32) *httptest.Server {
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		n := connections.Add(1)
		c.WriteMessage(websocket.TextMessage, []byte(`{"type":"welcome"}`))

		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			var req struct {
				Type   string `json:"type"`
				Symbol string `json:"symbol"`
			}
			if err := json.Unmarshal(data, &req); err != nil || req.Type != "subscribe" {
				continue
			}
			frame := fmt.Sprintf(`{"type":"trade","data":[{"s":"%s","p":%d}]}`, req.Symbol, 100*n)
			if err := c.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
			if n == 1 {
				return
			}
		}
	}))
}

func TestSupervisor_EndToEndReconnect(t *testing.T) {
	var connections atomic.Int32
	srv := mockFeed(t, &connections)
	t.Cleanup(srv.Close)

	var updates atomic.Int32
	sup := NewSupervisor(Config{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		Token:          "secret",
		ReadyDelay:     10 * time.Millisecond,
		ReconnectDelay: 30 * time.Millisecond,
	}, codec.Finnhub{}, Options{
		Dialer:   NewWebsocketDialer(time.Second, "pricestream-test"),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		OnUpdate: func(domain.Update) { updates.Add(1) },
	})
	sup.Start(context.Background())
	t.Cleanup(sup.Close)

	sup.Subscribe("BINANCE:AAPL")

	require.Eventually(t, func() bool {
		p, ok := sup.Prices().Price("AAPL")
		return ok && p == 200
	}, 5*time.Second, 5*time.Millisecond, "price from the second connection never arrived")

	assert.Equal(t, int32(2), connections.Load())
	assert.Equal(t, domain.StateReady, sup.State())
	assert.ErrorIs(t, sup.LastError(), domain.ErrConnectionLost)
	assert.Positive(t, updates.Load())

	_, active := sup.Subscriptions()
	assert.Equal(t, []string{"BINANCE:AAPL"}, active)
}

func TestSupervisor_EndToEndHandshakeRejected(t *testing.T) {
	var connections atomic.Int32
	srv := mockFeed(t, &connections)
	t.Cleanup(srv.Close)

	sup := NewSupervisor(Config{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		Token:          "wrong",
		ReconnectDelay: time.Hour,
	}, codec.Finnhub{}, Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	sup.Start(context.Background())
	t.Cleanup(sup.Close)

	sup.Connect()
	require.Eventually(t, func() bool { return sup.LastError() != nil }, 5*time.Second, 5*time.Millisecond)

	var netErr *domain.NetworkError
	require.ErrorAs(t, sup.LastError(), &netErr)
	assert.Contains(t, netErr.Error(), "401")
	assert.ErrorIs(t, netErr, websocket.ErrBadHandshake)
	assert.False(t, netErr.IsRetriable())
	assert.False(t, sup.Reconnecting())
	assert.Equal(t, domain.StateDisconnected, sup.State())
	assert.Equal(t, int32(0), connections.Load())
}
