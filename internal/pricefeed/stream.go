package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// StreamOptions configures a StreamFeed.
type StreamOptions struct {
	// URL is the websocket endpoint publishing quotes.
	URL string
	// Pairs are sent in a subscribe message after every (re)connect.
	Pairs []string
	// MaxAge is the oldest quote CurrentPrice will return. Default: 5m.
	MaxAge time.Duration
	// ReconnectDelay is initial delay before reconnect attempt. Default: 1s.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts. Default: 30s.
	MaxReconnectDelay time.Duration
	// ReadTimeout is timeout for reading messages. Default: 60s.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages. Default: 10s.
	WriteTimeout time.Duration

	Now    func() time.Time
	Logger zerolog.Logger
}

func (o *StreamOptions) setDefaults() {
	if o.MaxAge <= 0 {
		o.MaxAge = 5 * time.Minute
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = time.Second
	}
	if o.MaxReconnectDelay <= 0 {
		o.MaxReconnectDelay = 30 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// StreamQuote is one price update on the stream.
type StreamQuote struct {
	Pair      string          `json:"pair"`
	Price     decimal.Decimal `json:"price"`
	Timestamp int64           `json:"ts,omitempty"` // unix milliseconds, receive time when absent
}

type subscribeRequest struct {
	Type  string   `json:"type"`
	Pairs []string `json:"pairs"`
}

type cachedQuote struct {
	price decimal.Decimal
	at    time.Time
}

var errStreamClosed = errors.New("stream feed closed")

// StreamFeed keeps the latest quote per pair from a websocket stream and
// serves CurrentPrice from that cache.
type StreamFeed struct {
	opts   StreamOptions
	logger zerolog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	quotes   map[string]cachedQuote
	quotesMu sync.RWMutex

	done chan struct{}
	wg   sync.WaitGroup
}

// NewStreamFeed connects to the stream and starts reading quotes.
func NewStreamFeed(ctx context.Context, opts StreamOptions) (*StreamFeed, error) {
	opts.setDefaults()

	f := &StreamFeed{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "stream_feed").Logger(),
		quotes: make(map[string]cachedQuote),
		done:   make(chan struct{}),
	}

	if err := f.connect(ctx); err != nil {
		return nil, err
	}

	f.wg.Add(1)
	go f.readLoop()

	return f, nil
}

// connect establishes the websocket connection and subscribes.
func (f *StreamFeed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	if len(f.opts.Pairs) > 0 {
		conn.SetWriteDeadline(time.Now().Add(f.opts.WriteTimeout))
		if err := conn.WriteJSON(subscribeRequest{Type: "subscribe", Pairs: f.opts.Pairs}); err != nil {
			conn.Close()
			return fmt.Errorf("write subscribe: %w", err)
		}
	}

	f.connMu.Lock()
	defer f.connMu.Unlock()
	// Close may have run while dialing.
	if f.closed.Load() {
		conn.Close()
		return errStreamClosed
	}
	f.conn = conn
	return nil
}

// CurrentPrice implements Feed.
func (f *StreamFeed) CurrentPrice(_ context.Context, pair string) (decimal.Decimal, error) {
	f.quotesMu.RLock()
	q, ok := f.quotes[strings.ToUpper(pair)]
	f.quotesMu.RUnlock()

	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no quote received for %s", ErrNoPrice, pair)
	}
	if age := f.opts.Now().Sub(q.at); age > f.opts.MaxAge {
		return decimal.Zero, fmt.Errorf("%w: %s quote is %s old", ErrStale, pair, age.Round(time.Second))
	}
	return q.price, nil
}

// Name implements Feed.
func (f *StreamFeed) Name() string { return "stream" }

// Close closes the connection and stops the reader.
func (f *StreamFeed) Close() error {
	if f.closed.Swap(true) {
		return nil
	}

	close(f.done)

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		f.conn.Close()
	}
	f.connMu.Unlock()

	f.wg.Wait()
	return nil
}

// readLoop reads quotes and reconnects with exponential backoff on failure.
func (f *StreamFeed) readLoop() {
	defer f.wg.Done()

	delay := f.opts.ReconnectDelay

	for !f.closed.Load() {
		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()

		if conn == nil {
			if !f.wait(delay) {
				return
			}
			if err := f.reconnect(); err != nil {
				if errors.Is(err, errStreamClosed) {
					return
				}
				f.logger.Warn().Err(err).Dur("retry_in", delay).Msg("stream reconnect failed")
				delay = min(delay*2, f.opts.MaxReconnectDelay)
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(f.opts.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if f.closed.Load() {
				return
			}
			f.logger.Warn().Err(err).Msg("stream read failed, reconnecting")

			f.connMu.Lock()
			if f.conn == conn {
				f.conn.Close()
				f.conn = nil
			}
			f.connMu.Unlock()
			continue
		}

		delay = f.opts.ReconnectDelay
		f.handleMessage(message)
	}
}

func (f *StreamFeed) reconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go func() {
		select {
		case <-f.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := f.connect(ctx); err != nil {
		if f.closed.Load() {
			return errStreamClosed
		}
		return err
	}
	f.logger.Info().Str("url", f.opts.URL).Msg("stream reconnected")
	return nil
}

// wait sleeps for d and reports false if the feed was closed meanwhile.
func (f *StreamFeed) wait(d time.Duration) bool {
	select {
	case <-f.done:
		return false
	case <-time.After(d):
		return true
	}
}

// handleMessage accepts a single quote object or an array of quotes.
func (f *StreamFeed) handleMessage(message []byte) {
	var quotes []StreamQuote
	trimmed := strings.TrimSpace(string(message))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(message, &quotes); err != nil {
			f.logger.Debug().Err(err).Msg("ignoring malformed quote batch")
			return
		}
	} else {
		var q StreamQuote
		if err := json.Unmarshal(message, &q); err != nil {
			f.logger.Debug().Err(err).Msg("ignoring malformed quote")
			return
		}
		quotes = append(quotes, q)
	}

	for _, q := range quotes {
		if err := f.store(q); err != nil {
			f.logger.Debug().Err(err).Str("pair", q.Pair).Msg("ignoring quote")
		}
	}
}

var errEmptyPair = errors.New("empty pair")

func (f *StreamFeed) store(q StreamQuote) error {
	if q.Pair == "" {
		return errEmptyPair
	}
	if err := validPrice(q.Pair, q.Price); err != nil {
		return err
	}

	at := f.opts.Now()
	if q.Timestamp > 0 {
		at = time.UnixMilli(q.Timestamp)
	}

	pair := strings.ToUpper(q.Pair)
	f.quotesMu.Lock()
	defer f.quotesMu.Unlock()
	if prev, ok := f.quotes[pair]; ok && prev.at.After(at) {
		return nil
	}
	f.quotes[pair] = cachedQuote{price: q.Price, at: at}
	return nil
}
