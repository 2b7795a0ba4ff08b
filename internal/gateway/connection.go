// A realtime client connection: identity, outbound queue and the websocket pumps.

package gateway

import (
	"Stockpile/internal/entity"
	"Stockpile/internal/errors"
	"Stockpile/pkg/log"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Connection is one open duplex channel to a client process.
// It is created only after a successful handshake, so its principal never changes.
type Connection struct {
	id        string
	principal entity.Principal
	ws        *websocket.Conn
	send      chan []byte
	logger    log.Logger

	// ctx is canceled once the connection closes, for work done on its behalf.
	ctx    context.Context
	cancel context.CancelFunc

	done      chan struct{}
	closeOnce sync.Once
	closeCode int
}

// NewConnection wraps ws. With a nil ws the connection has no physical socket
// and its frames are read from Outbox, as in-process clients and tests do.
func NewConnection(principal entity.Principal, ws *websocket.Conn, buffer int, logger log.Logger) *Connection {
	if buffer < 1 {
		buffer = 1
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	clog := logger.With("conn_id", id).With("user_id", principal.UserID).With("org_id", principal.OrganizationID)
	return &Connection{
		id:        id,
		principal: principal,
		ws:        ws,
		send:      make(chan []byte, buffer),
		logger:    clog,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		closeCode: websocket.CloseNormalClosure,
	}
}

// ID is unique across instances.
func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) Principal() entity.Principal {
	return c.principal
}

// Context is canceled when the connection closes.
func (c *Connection) Context() context.Context {
	return c.ctx
}

func (c *Connection) Logger() log.Logger {
	return c.logger
}

// Done is closed when the connection closes.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Outbox yields the queued frames of a connection without a socket.
func (c *Connection) Outbox() <-chan []byte {
	return c.send
}

// Send queues frame without blocking. A full queue drops the frame.
func (c *Connection) Send(frame []byte) error {
	select {
	case <-c.done:
		return errors.Cause{Kind: errors.ErrDeliveryFailure, Detail: "connection closed"}
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errors.Cause{Kind: errors.ErrDeliveryFailure, Detail: "send queue full"}
	}
}

func (c *Connection) close(code int) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		close(c.done)
		c.cancel()
	})
}

// readPump runs in the handshake goroutine and processes client messages in the order sent.
// Returning from it always disconnects the connection.
func (c *Connection) readPump(g *Gateway) {
	defer g.Disconnect(c)

	pongWait := g.opts.PingInterval * time.Duration(g.opts.MaxMissedPings+1)
	c.ws.SetReadLimit(g.opts.MaxMessageSize)
	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Couldn't set read deadline")
		return
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("Unexpected websocket close")
			}
			return
		}
		if kind != websocket.TextMessage {
			g.replyError(c, errors.Malformed("binary frame"), "")
			continue
		}
		g.Dispatch(c, raw)
	}
}

// writePump owns every write to the socket, including keepalive pings.
func (c *Connection) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.close(websocket.CloseInternalServerErr)
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug().Err(err).Msg("Websocket write failed")
				c.close(websocket.CloseAbnormalClosure)
				return
			}

		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.close(websocket.CloseInternalServerErr)
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close(websocket.CloseAbnormalClosure)
				return
			}

		case <-c.done:
			msg := websocket.FormatCloseMessage(c.closeCode, "")
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
	}
}
