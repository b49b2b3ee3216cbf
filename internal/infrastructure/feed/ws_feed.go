package feed

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSFeed streams last-trade prices over a websocket and delivers them to
// registered callbacks. It carries no exchange semantics: the engine only
// consumes (pair, price) updates between ticks.
type WSFeed struct {
	url    string
	logger *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	callbacks []func(pair string, price float64)
	done      chan struct{}
}

type tickMessage struct {
	Pair  string  `json:"pair"`
	Price float64 `json:"price,string"`
}

func NewWSFeed(url string, logger *zap.Logger) *WSFeed {
	return &WSFeed{
		url:    url,
		logger: logger,
	}
}

func (f *WSFeed) OnPriceUpdate(callback func(pair string, price float64)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, callback)
}

// Connect dials the feed and subscribes to the given pairs. Safe to call
// again with more pairs once connected.
func (f *WSFeed) Connect(pairs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn != nil {
		return f.subscribe(pairs)
	}

	c, _, err := websocket.DefaultDialer.Dial(f.url, nil)
	if err != nil {
		return err
	}
	f.conn = c
	f.done = make(chan struct{}) // one done channel per connection

	go f.readLoop(c, f.done)

	return f.subscribe(pairs)
}

func (f *WSFeed) subscribe(pairs []string) error {
	if len(pairs) == 0 {
		return nil
	}
	subMsg := map[string]interface{}{
		"op":    "subscribe",
		"pairs": pairs,
	}
	return f.conn.WriteJSON(subMsg)
}

func (f *WSFeed) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		conn.Close()
		f.mu.Lock()
		if f.conn == conn {
			f.conn = nil
		}
		f.mu.Unlock()
		close(done)
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			f.logger.Error("Feed read error", zap.Error(err))
			return
		}

		var tick tickMessage
		if err := json.Unmarshal(message, &tick); err != nil {
			f.logger.Debug("Skipping non-tick feed message", zap.Error(err))
			continue
		}
		if tick.Pair == "" || tick.Price <= 0 {
			continue
		}

		f.mu.Lock()
		callbacks := make([]func(string, float64), len(f.callbacks))
		copy(callbacks, f.callbacks)
		f.mu.Unlock()

		for _, cb := range callbacks {
			cb(tick.Pair, tick.Price)
		}
	}
}

// Done is closed when the current connection's read loop exits, letting the
// caller reconnect. Valid after a successful Connect.
func (f *WSFeed) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

func (f *WSFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return nil
	}
	return f.conn.Close()
}
