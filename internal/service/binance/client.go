// Package binance implements a MarketStream backed by the Binance trade
// WebSocket, one connection per symbol.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pairstream/internal/domain/models"
	drepo "pairstream/internal/domain/repository"
	applogger "pairstream/pkg/logger"

	"github.com/gorilla/websocket"
)

// wsConn is the subset of *websocket.Conn the client needs; tests inject a fake.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// dialFunc opens a connection to the stream URL.
type dialFunc func(ctx context.Context, url string) (wsConn, error)

func gorillaDial(ctx context.Context, url string) (wsConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	return conn, err
}

// Client streams normalized ticks for one symbol. On connection loss it
// reconnects forever with exponential backoff and full jitter; ticks during
// an outage are permanently lost (at-most-once, never fabricated). Malformed
// and non-monotonic messages are dropped and counted, never fatal.
type Client struct {
	symbol       string
	url          string
	backoffBase  time.Duration
	backoffMax   time.Duration
	pingInterval time.Duration

	dial    dialFunc
	metrics drepo.Metrics
	logger  *applogger.Logger

	mu        sync.Mutex
	conn      wsConn
	cancel    context.CancelFunc
	connected atomic.Bool
	started   bool
}

// Option configures Client.
type Option func(*Client)

// WithDialer overrides the WebSocket dialer, used by tests.
func WithDialer(d dialFunc) Option {
	return func(c *Client) {
		if d != nil {
			c.dial = d
		}
	}
}

// WithBackoff sets the reconnect backoff base and cap.
func WithBackoff(base, max time.Duration) Option {
	return func(c *Client) {
		if base > 0 {
			c.backoffBase = base
		}
		if max >= c.backoffBase {
			c.backoffMax = max
		}
	}
}

// WithPingInterval sets the keepalive ping cadence.
func WithPingInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pingInterval = d
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l *applogger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a MarketStream for symbol against baseURL
// (e.g. "wss://fstream.binance.com/ws").
func New(symbol, baseURL string, metrics drepo.Metrics, opts ...Option) drepo.MarketStream {
	c := &Client{
		symbol:       strings.ToLower(symbol),
		url:          fmt.Sprintf("%s/%s@trade", strings.TrimSuffix(baseURL, "/"), strings.ToLower(symbol)),
		backoffBase:  500 * time.Millisecond,
		backoffMax:   30 * time.Second,
		pingInterval: 20 * time.Second,
		dial:         gorillaDial,
		metrics:      metrics,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start opens the stream and returns the tick sequence. The error channel
// carries at most one terminal error; reconnects are handled internally.
func (c *Client) Start(ctx context.Context) (<-chan models.Tick, <-chan error) {
	ticks := make(chan models.Tick, 1024)
	errs := make(chan error, 1)

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		errs <- fmt.Errorf("binance %s: already started", c.symbol)
		close(ticks)
		close(errs)
		return ticks, errs
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.started = true
	c.mu.Unlock()

	go c.run(runCtx, ticks, errs)
	return ticks, errs
}

// Stop terminates the connection and the tick sequence.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected indicates live connection status.
func (c *Client) IsConnected() bool { return c.connected.Load() }

// binance trade payload; prices and sizes arrive as strings.
type tradeMessage struct {
	Event    string `json:"e"`
	Symbol   string `json:"s"`
	Price    string `json:"p"`
	Quantity string `json:"q"`
	TradeTS  int64  `json:"T"` // ms
}

func (c *Client) run(ctx context.Context, ticks chan<- models.Tick, errs chan<- error) {
	defer close(ticks)
	defer close(errs)

	attempt := 0
	var lastTS int64
	everConnected := false

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := c.dial(ctx, c.url)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.countError("feed_connect")
			c.logWarn("connect failed", err)
			if !c.sleep(ctx, backoffDelay(c.backoffBase, c.backoffMax, attempt)) {
				return
			}
			attempt++
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.connected.Store(true)
		attempt = 0
		if everConnected && c.metrics != nil {
			// resumed from "now": whatever happened during the outage is gone
			c.metrics.RecordGap(c.symbol)
		}
		everConnected = true
		c.logInfo("connected")

		stopPing := c.startPing(ctx, conn)
		c.readLoop(ctx, conn, ticks, &lastTS)
		stopPing()

		c.connected.Store(false)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		c.countError("feed_disconnect")
		if !c.sleep(ctx, backoffDelay(c.backoffBase, c.backoffMax, attempt)) {
			return
		}
		attempt++
	}
}

// readLoop consumes one connection until it fails.
func (c *Client) readLoop(ctx context.Context, conn wsConn, ticks chan<- models.Tick, lastTS *int64) {
	for {
		if ctx.Err() != nil {
			return
		}
		_, b, err := conn.ReadMessage()
		if err != nil {
			c.logWarn("read failed", err)
			return
		}

		tick, ok := c.parse(b)
		if !ok {
			continue
		}
		if tick.Timestamp < *lastTS {
			c.countDrop("out_of_order")
			continue
		}
		*lastTS = tick.Timestamp

		select {
		case ticks <- tick:
		default:
			c.countDrop("backpressure")
		}
	}
}

func (c *Client) parse(b []byte) (models.Tick, bool) {
	var m tradeMessage
	if err := json.Unmarshal(b, &m); err != nil || m.Event != "trade" {
		// non-trade frames (subscribe acks, pongs) are expected noise
		if err != nil {
			c.countDrop("malformed")
		}
		return models.Tick{}, false
	}
	price, err := strconv.ParseFloat(m.Price, 64)
	if err != nil || price <= 0 {
		c.countDrop("malformed")
		return models.Tick{}, false
	}
	size, err := strconv.ParseFloat(m.Quantity, 64)
	if err != nil || size < 0 {
		c.countDrop("malformed")
		return models.Tick{}, false
	}
	if m.TradeTS <= 0 {
		c.countDrop("malformed")
		return models.Tick{}, false
	}
	return models.Tick{
		Symbol:    strings.ToLower(m.Symbol),
		Timestamp: m.TradeTS,
		Price:     price,
		Size:      size,
	}, true
}

func (c *Client) startPing(ctx context.Context, conn wsConn) func() {
	pingCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}()
	return cancel
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (c *Client) countDrop(reason string) {
	if c.metrics != nil {
		c.metrics.RecordDroppedTick(c.symbol, reason)
	}
}

func (c *Client) countError(kind string) {
	if c.metrics != nil {
		c.metrics.RecordError(kind)
	}
}

func (c *Client) logInfo(msg string) {
	if c.logger != nil {
		c.logger.Info("binance: "+msg, applogger.String("symbol", c.symbol))
	}
}

func (c *Client) logWarn(msg string, err error) {
	if c.logger != nil {
		c.logger.Warn("binance: "+msg, applogger.String("symbol", c.symbol), applogger.Error(err))
	}
}

// backoffEnvelope returns the exponential cap for the given attempt; the
// actual delay is drawn uniformly from it (full jitter).
func backoffEnvelope(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if max < base {
		max = base
	}
	env := base
	for i := 0; i < attempt && env < max; i++ {
		env *= 2
	}
	if env > max {
		env = max
	}
	return env
}

func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	env := backoffEnvelope(base, max, attempt)
	return time.Duration(rand.Int63n(int64(env)) + 1)
}
