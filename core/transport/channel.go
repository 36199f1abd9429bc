// Package transport owns the single bidirectional streaming connection a
// session speaks over.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

func closeDeadline() time.Time { return time.Now().Add(time.Second) }

// Channel manages exactly one websocket connection per session. It never
// reconnects on its own: a close after open is reported through the
// OnClose callback and reconnection is the caller's decision.
type Channel struct {
	baseURL string

	connMu sync.Mutex
	conn   *websocket.Conn

	// closeRequested distinguishes a caller-initiated Disconnect from a
	// transport-level close when the read loop ends.
	closeRequested bool

	onEvent func(event ServerEvent)
	onClose func(err error)

	dialer *websocket.Dialer
	header http.Header
}

type ChannelOption func(*Channel)

// WithEventHandler registers the handler inbound events are dispatched to.
func WithEventHandler(handler func(event ServerEvent)) ChannelOption {
	return func(c *Channel) { c.onEvent = handler }
}

// WithCloseHandler registers the callback invoked once when an open
// connection closes for any reason other than Disconnect.
func WithCloseHandler(handler func(err error)) ChannelOption {
	return func(c *Channel) { c.onClose = handler }
}

func WithHeader(header http.Header) ChannelOption {
	return func(c *Channel) { c.header = header }
}

// NewChannel creates a channel for the given websocket base URL. The session
// id is appended to the path on Connect.
func NewChannel(baseURL string, opts ...ChannelOption) *Channel {
	channel := &Channel{
		baseURL: baseURL,
		onEvent: func(ServerEvent) {},
		onClose: func(error) {},
		dialer:  websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(channel)
	}
	return channel
}

// SetHandlers replaces the event and close handlers. It must be called
// before Connect; handlers are not swapped under an open connection's read
// loop atomically.
func (c *Channel) SetHandlers(onEvent func(event ServerEvent), onClose func(err error)) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if onEvent != nil {
		c.onEvent = onEvent
	}
	if onClose != nil {
		c.onClose = onClose
	}
}

// Connect opens the session's websocket. It returns once the transport
// signals open, or with an error if the dial fails before that. A channel
// holds at most one connection; connecting while connected is an error.
func (c *Channel) Connect(ctx context.Context, sessionID string) error {
	ctx, span := tracer.Start(ctx, "transport connect")
	defer span.End()

	sessionURL, err := sessionURL(c.baseURL, sessionID)
	if err != nil {
		return err
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.connMu.Unlock()
		return fmt.Errorf("transport already connected")
	}
	c.closeRequested = false
	c.connMu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, sessionURL, c.header)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to open streaming connection: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	go c.readAndProcessMessages(conn)

	return nil
}

func sessionURL(baseURL, sessionID string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid transport base url: %w", err)
	}

	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/") + "/" + sessionID
	return parsed.String(), nil
}

// Send serializes and transmits an event if the transport is open. The
// return value reports whether the send was attempted; a false result means
// the event was silently dropped. Audio frames are intentionally never
// queued for retry, stale audio is worthless.
func (c *Channel) Send(event ClientEvent) bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return false
	}

	if err := c.conn.WriteJSON(event); err != nil {
		logger.Warn("failed to write to streaming connection", "type", event.EventType(), "error", err)
		return false
	}
	return true
}

// IsConnected reports whether the channel currently holds an open connection.
func (c *Channel) IsConnected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn != nil
}

// Disconnect closes the transport and clears the internal handle. It is
// idempotent and suppresses the close callback for this close.
func (c *Channel) Disconnect() error {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.closeRequested = true
	c.connMu.Unlock()

	if conn == nil {
		return nil
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), closeDeadline())
	return conn.Close()
}

func (c *Channel) readAndProcessMessages(conn *websocket.Conn) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			c.connMu.Lock()
			requested := c.closeRequested
			if c.conn == conn {
				c.conn = nil
			}
			c.connMu.Unlock()

			conn.Close()
			if !requested {
				c.onClose(err)
			}
			return
		}
		if msgType == websocket.BinaryMessage {
			continue
		}

		c.processMessage(msg)
	}
}

// processMessage parses one inbound payload and dispatches it. Parse
// failures are logged and dropped, they must never take the channel down.
func (c *Channel) processMessage(msg []byte) {
	var event ServerEvent
	if err := json.Unmarshal(msg, &event); err != nil {
		logger.Warn("failed to parse streaming message", "error", err)
		return
	}
	if event.Type == "" {
		logger.Warn("dropping streaming message without type")
		return
	}

	c.onEvent(event)
}
