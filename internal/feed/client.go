package feed

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matricare/sync-client/pkg/model"
	"go.uber.org/zap"
)

// AlertSink receives accepted alerts and owns the bounded feed. The status
// store satisfies it directly; production wiring routes through the alert
// router so patient risk levels track the feed too.
type AlertSink interface {
	PushAlert(item model.RiskFeedItem)
	ClearAlerts()
}

// State is the feed connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Client maintains a best-effort streaming connection to the risk alert
// source. Inbound messages are JSON RiskFeedItems; malformed ones are
// dropped. Every connection close schedules exactly one reconnect after a
// fixed delay, cancelling any pending timer first, so at most one timer and
// one connection exist at any time.
type Client struct {
	url            string
	reconnectDelay time.Duration
	sink           AlertSink
	logger         *zap.Logger

	mu             sync.Mutex
	state          State
	enabled        bool
	gen            uint64
	conn           *websocket.Conn
	reconnectTimer *time.Timer
}

// NewClient creates a feed client for the given websocket URL.
func NewClient(url string, reconnectDelay time.Duration, sink AlertSink, logger *zap.Logger) *Client {
	return &Client{
		url:            url,
		reconnectDelay: reconnectDelay,
		sink:           sink,
		logger:         logger,
		state:          StateDisconnected,
	}
}

// Enable turns the feed on and starts connecting. Enabling an already
// enabled feed is a no-op.
func (c *Client) Enable() {
	c.mu.Lock()
	if c.enabled {
		c.mu.Unlock()
		return
	}
	c.enabled = true
	c.gen++
	c.mu.Unlock()

	go c.connect()
}

// Disable synchronously closes the connection, cancels any pending
// reconnect timer and clears the alert feed.
func (c *Client) Disable() {
	c.mu.Lock()
	if !c.enabled {
		c.mu.Unlock()
		return
	}
	c.enabled = false
	c.gen++
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.sink.ClearAlerts()
	c.logger.Info("risk feed disabled")
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) connect() {
	c.mu.Lock()
	if !c.enabled || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	gen := c.gen
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)

	c.mu.Lock()
	if c.gen != gen {
		// Disabled or re-enabled while dialing; this attempt no longer
		// owns the connection slot. Disable already reset the state, and
		// a newer attempt may be using it, so leave it alone.
		c.mu.Unlock()
		if err == nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.state = StateDisconnected
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		c.logger.Warn("risk feed connection failed, will retry",
			zap.Error(err),
			zap.Duration("retry_in", c.reconnectDelay),
		)
		return
	}
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	c.logger.Info("risk feed connected", zap.String("url", c.url))
	go c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		c.handleMessage(raw)
	}

	c.mu.Lock()
	if c.conn != conn {
		// A Disable already tore this connection down.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	if c.enabled {
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()

	c.logger.Warn("risk feed connection closed, will retry",
		zap.Duration("retry_in", c.reconnectDelay),
	)
}

// scheduleReconnectLocked arms the reconnect timer, stopping any pending
// one first. Callers hold c.mu.
func (c *Client) scheduleReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.reconnectTimer = time.AfterFunc(c.reconnectDelay, c.connect)
}

// handleMessage parses one inbound alert. Items without a patient id or
// risk level are dropped; a missing receivedAt defaults to arrival time.
func (c *Client) handleMessage(raw []byte) {
	var item model.RiskFeedItem
	if err := json.Unmarshal(raw, &item); err != nil {
		c.logger.Warn("dropping malformed risk feed message", zap.Error(err))
		return
	}
	if item.PatientID == "" || item.Risk == "" {
		c.logger.Warn("dropping incomplete risk feed message",
			zap.String("patient_id", item.PatientID),
			zap.String("risk", string(item.Risk)),
		)
		return
	}
	if item.ReceivedAt.IsZero() {
		item.ReceivedAt = time.Now()
	}

	c.sink.PushAlert(item)
	c.logger.Debug("risk alert received",
		zap.String("patient_id", item.PatientID),
		zap.String("risk", string(item.Risk)),
	)
}
