package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// quoteServer upgrades every connection, records the subscribe request and
// writes the given messages.
func quoteServer(t *testing.T, messages ...string) (*httptest.Server, <-chan subscribeRequest) {
	t.Helper()
	subs := make(chan subscribeRequest, 4)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		var req subscribeRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("unmarshal subscribe: %v", err)
			return
		}
		subs <- req

		for _, m := range messages {
			if err := c.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}

		// Keep connection open
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	return server, subs
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func waitForPrice(t *testing.T, f *StreamFeed, pair string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := f.CurrentPrice(context.Background(), pair); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no price for %s within deadline", pair)
}

func TestStreamFeed_CachesQuotes(t *testing.T) {
	server, subs := quoteServer(t,
		`{"pair":"USD/JPY","price":"146.10"}`,
		`[{"pair":"EUR/USD","price":1.0855},{"pair":"","price":"1"},{"pair":"GBP/USD","price":"0"}]`,
		`not json`,
	)
	defer server.Close()

	f, err := NewStreamFeed(context.Background(), StreamOptions{
		URL:   wsURL(server),
		Pairs: []string{"USD/JPY", "EUR/USD"},
	})
	if err != nil {
		t.Fatalf("NewStreamFeed: %v", err)
	}
	defer f.Close()

	select {
	case req := <-subs:
		if req.Type != "subscribe" || len(req.Pairs) != 2 {
			t.Errorf("subscribe request = %+v", req)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe request received")
	}

	waitForPrice(t, f, "USD/JPY")
	waitForPrice(t, f, "EUR/USD")

	price, _ := f.CurrentPrice(context.Background(), "usd/jpy")
	if !price.Equal(d("146.10")) {
		t.Errorf("USD/JPY = %s, want 146.10", price)
	}
	price, _ = f.CurrentPrice(context.Background(), "EUR/USD")
	if !price.Equal(d("1.0855")) {
		t.Errorf("EUR/USD = %s, want 1.0855", price)
	}

	if _, err := f.CurrentPrice(context.Background(), "GBP/USD"); !errors.Is(err, ErrNoPrice) {
		t.Errorf("zero-priced quote should be ignored, got %v", err)
	}
}

func TestStreamFeed_Stale(t *testing.T) {
	server, _ := quoteServer(t, `{"pair":"USD/JPY","price":"146.10"}`)
	defer server.Close()

	var mu sync.Mutex
	now := time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	f, err := NewStreamFeed(context.Background(), StreamOptions{
		URL:    wsURL(server),
		Pairs:  []string{"USD/JPY"},
		MaxAge: time.Minute,
		Now:    clock,
	})
	if err != nil {
		t.Fatalf("NewStreamFeed: %v", err)
	}
	defer f.Close()

	waitForPrice(t, f, "USD/JPY")

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	if _, err := f.CurrentPrice(context.Background(), "USD/JPY"); !errors.Is(err, ErrStale) {
		t.Errorf("expected ErrStale, got %v", err)
	}
}

func TestStreamFeed_KeepsNewestQuote(t *testing.T) {
	f := &StreamFeed{
		opts:   StreamOptions{MaxAge: time.Hour, Now: time.Now},
		quotes: make(map[string]cachedQuote),
	}
	newer := time.Now().UnixMilli()
	older := newer - 1000

	if err := f.store(StreamQuote{Pair: "USD/JPY", Price: d("146.20"), Timestamp: newer}); err != nil {
		t.Fatal(err)
	}
	if err := f.store(StreamQuote{Pair: "USD/JPY", Price: d("146.00"), Timestamp: older}); err != nil {
		t.Fatal(err)
	}

	price, err := f.CurrentPrice(context.Background(), "USD/JPY")
	if err != nil {
		t.Fatal(err)
	}
	if !price.Equal(d("146.20")) {
		t.Errorf("price = %s, want newest 146.20", price)
	}
}

func TestStreamFeed_DialError(t *testing.T) {
	_, err := NewStreamFeed(context.Background(), StreamOptions{URL: "ws://127.0.0.1:1/stream"})
	if err == nil {
		t.Error("expected dial error")
	}
}

func TestStreamFeed_CloseIdempotent(t *testing.T) {
	server, _ := quoteServer(t)
	defer server.Close()

	f, err := NewStreamFeed(context.Background(), StreamOptions{URL: wsURL(server), Pairs: []string{"USD/JPY"}})
	if err != nil {
		t.Fatalf("NewStreamFeed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestStreamFeed_ConnectAfterCloseDropsConnection(t *testing.T) {
	var (
		mu    sync.Mutex
		conns int
	)
	gone := make(chan int, 4)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		mu.Lock()
		conns++
		n := conns
		mu.Unlock()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				gone <- n
				return
			}
		}
	}))
	defer server.Close()

	f, err := NewStreamFeed(context.Background(), StreamOptions{URL: wsURL(server)})
	if err != nil {
		t.Fatalf("NewStreamFeed: %v", err)
	}
	first := f.conn
	f.Close()

	select {
	case n := <-gone:
		if n != 1 {
			t.Fatalf("connection %d closed, want 1", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first connection not closed")
	}

	// A dial that completes after Close must not install its connection.
	if err := f.connect(context.Background()); !errors.Is(err, errStreamClosed) {
		t.Fatalf("connect after Close: %v", err)
	}
	f.connMu.Lock()
	installed := f.conn
	f.connMu.Unlock()
	if installed != first {
		t.Error("connection installed after Close")
	}

	select {
	case n := <-gone:
		if n != 2 {
			t.Fatalf("connection %d closed, want 2", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("connection dialed after Close leaked")
	}

	if err := f.reconnect(); !errors.Is(err, errStreamClosed) {
		t.Errorf("reconnect after Close: %v", err)
	}
}
