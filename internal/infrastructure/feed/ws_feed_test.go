package feed

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// dropServer accepts a connection, waits for the subscribe message, sends one
// tick and hangs up, simulating a flaky feed.
func dropServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
		c.WriteMessage(websocket.TextMessage, []byte(`{"pair":"BTC/USDT","price":"100.5"}`))
	}))
}

func waitDone(t *testing.T, feed *WSFeed, what string) {
	t.Helper()
	select {
	case <-feed.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("Done not closed after %s", what)
	}
}

// Each connection gets its own done channel, so a reconnect after a dropped
// feed must not panic when the second read loop also ends.
func TestWSFeedReconnectAfterDrop(t *testing.T) {
	srv := dropServer(t)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	priceFeed := NewWSFeed(url, zap.NewNop())
	prices := make(chan float64, 4)
	priceFeed.OnPriceUpdate(func(pair string, price float64) {
		prices <- price
	})

	if err := priceFeed.Connect([]string{"BTC/USDT"}); err != nil {
		t.Fatalf("first connect failed: %v", err)
	}
	select {
	case p := <-prices:
		if p != 100.5 {
			t.Errorf("price = %f, want 100.5", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no price delivered before the drop")
	}
	waitDone(t, priceFeed, "first drop")

	if err := priceFeed.Connect([]string{"BTC/USDT"}); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	select {
	case <-prices:
	case <-time.After(2 * time.Second):
		t.Fatal("no price delivered after reconnect")
	}
	waitDone(t, priceFeed, "second drop")
}
