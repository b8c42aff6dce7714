package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/whalewatch/engine/internal/store"
)

// Reconnection and heartbeat tuning.
const (
	initialBackoff   = 1 * time.Second
	maxBackoff       = 60 * time.Second
	backoffFactor    = 2.0
	jitterPercent    = 0.2
	heartbeatTimeout = 60 * time.Second
	pongTimeout      = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

// Listener supplements the REST poller with a live trade feed over
// WebSocket, pushing events into the same channel the poller serves.
type Listener struct {
	url       string
	events    chan<- store.Event
	conn      *websocket.Conn
	connMu    sync.Mutex
	backoff   time.Duration
	lastMsg   time.Time
	lastMsgMu sync.RWMutex
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewListener creates a WebSocket listener feeding the given event channel.
func NewListener(url string, events chan<- store.Event) *Listener {
	return &Listener{
		url:      url,
		events:   events,
		backoff:  initialBackoff,
		stopChan: make(chan struct{}),
	}
}

// Start begins the listener with automatic reconnection.
func (l *Listener) Start(ctx context.Context) {
	l.wg.Add(1)
	go l.runLoop(ctx)

	l.wg.Add(1)
	go l.heartbeatMonitor(ctx)
}

// Stop gracefully shuts down the listener.
func (l *Listener) Stop() {
	close(l.stopChan)
	l.closeConnection()
	l.wg.Wait()
}

// runLoop handles connection, reading, and reconnection.
func (l *Listener) runLoop(ctx context.Context) {
	defer l.wg.Done()

	for {
		select {
		case <-ctx.Done():
			slog.Info("ws_loop_stopping", "reason", "context cancelled")
			return
		case <-l.stopChan:
			slog.Info("ws_loop_stopping", "reason", "stop signal")
			return
		default:
		}

		if err := l.connect(ctx); err != nil {
			slog.Error("ws_connect_failed", "error", err, "backoff", l.backoff)
			l.waitBackoff(ctx)
			continue
		}

		if err := l.readLoop(ctx); err != nil {
			slog.Warn("ws_read_error", "error", err)
		}

		l.closeConnection()

		select {
		case <-ctx.Done():
			return
		case <-l.stopChan:
			return
		default:
			l.waitBackoff(ctx)
		}
	}
}

// connect establishes the WebSocket connection and subscribes to trades.
func (l *Listener) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", "https://polymarket.com")

	conn, resp, err := dialer.DialContext(ctx, l.url, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial failed: %w", err)
	}

	l.connMu.Lock()
	l.conn = conn
	l.connMu.Unlock()

	l.backoff = initialBackoff

	slog.Info("ws_connected", "endpoint", l.url)

	if err := l.subscribe(); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	l.updateLastMsg()
	return nil
}

// subscribe requests the public trades channel.
func (l *Listener) subscribe() error {
	msg := map[string]interface{}{
		"type":    "subscribe",
		"channel": "trades",
	}

	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn == nil {
		return fmt.Errorf("connection is nil")
	}

	l.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := l.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send subscribe message: %w", err)
	}

	slog.Info("ws_subscribed", "channel", "trades")
	return nil
}

// readLoop reads messages until error or shutdown.
func (l *Listener) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stopChan:
			return nil
		default:
		}

		l.connMu.Lock()
		conn := l.conn
		l.connMu.Unlock()

		if conn == nil {
			return fmt.Errorf("connection is nil")
		}

		conn.SetReadDeadline(time.Now().Add(heartbeatTimeout + pongTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}

		l.updateLastMsg()
		l.handleMessage(message)
	}
}

// wsEnvelope is the wrapper around feed payloads on the trades channel.
type wsEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// handleMessage parses a message and dispatches any trades it carries.
func (l *Listener) handleMessage(data []byte) {
	trades, msgType, err := parseWSTrades(data)
	if err != nil {
		slog.Debug("ws_parse_error", "error", err)
		return
	}

	if len(trades) == 0 {
		if msgType != "" {
			slog.Debug("ws_message", "type", msgType)
		}
		return
	}

	now := time.Now()
	for _, t := range trades {
		ev := ToEvent(t, now)
		select {
		case l.events <- ev:
			slog.Debug("ws_trade_received",
				"market", ev.MarketID,
				"actor", ev.ActorName,
				"capital_usd", ev.CapitalUSD,
			)
		default:
			slog.Warn("event_channel_full", "dropped_event", ev.ID)
		}
	}
}

// parseWSTrades accepts both a bare array of feed records and the enveloped
// single-message form.
func parseWSTrades(data []byte) ([]FeedTrade, string, error) {
	var trades []FeedTrade
	if err := json.Unmarshal(data, &trades); err == nil && len(trades) > 0 {
		return trades, "trade_array", nil
	}

	var env wsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, "", fmt.Errorf("unmarshal message: %w", err)
	}

	if env.Type != "trade" || len(env.Data) == 0 {
		return nil, env.Type, nil
	}

	if err := json.Unmarshal(env.Data, &trades); err == nil {
		return trades, env.Type, nil
	}

	var single FeedTrade
	if err := json.Unmarshal(env.Data, &single); err != nil {
		return nil, env.Type, fmt.Errorf("unmarshal trade payload: %w", err)
	}
	return []FeedTrade{single}, env.Type, nil
}

// heartbeatMonitor checks connection health on a fixed interval.
func (l *Listener) heartbeatMonitor(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.checkHeartbeat()
		}
	}
}

// checkHeartbeat pings when the feed has gone quiet.
func (l *Listener) checkHeartbeat() {
	l.lastMsgMu.RLock()
	lastMsg := l.lastMsg
	l.lastMsgMu.RUnlock()

	if lastMsg.IsZero() {
		return
	}

	elapsed := time.Since(lastMsg)
	if elapsed > heartbeatTimeout {
		slog.Warn("ws_heartbeat_timeout", "elapsed", elapsed)

		l.connMu.Lock()
		conn := l.conn
		l.connMu.Unlock()

		if conn != nil {
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Warn("ws_ping_failed", "error", err)
				l.closeConnection()
			}
		}
	}
}

// updateLastMsg records message receipt for the heartbeat monitor.
func (l *Listener) updateLastMsg() {
	l.lastMsgMu.Lock()
	l.lastMsg = time.Now()
	l.lastMsgMu.Unlock()
}

// closeConnection safely closes the WebSocket connection.
func (l *Listener) closeConnection() {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
		slog.Info("ws_disconnected")
	}
}

// waitBackoff sleeps the current backoff with jitter, then grows it.
func (l *Listener) waitBackoff(ctx context.Context) {
	jitter := time.Duration(float64(l.backoff) * jitterPercent * (rand.Float64()*2 - 1))
	wait := l.backoff + jitter

	slog.Debug("ws_waiting_backoff", "duration", wait)

	select {
	case <-ctx.Done():
	case <-l.stopChan:
	case <-time.After(wait):
	}

	l.backoff = time.Duration(float64(l.backoff) * backoffFactor)
	if l.backoff > maxBackoff {
		l.backoff = maxBackoff
	}
}
