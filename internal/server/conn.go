package server

import (
	"dungeon/internal/protocol"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 << 10
	sendQueueSize  = 64
)

// Peer is one connected client as the hub sees it.
type Peer interface {
	ID() string
	// Send queues msg without blocking. It reports false when the message
	// was dropped.
	Send(msg []byte) bool
	// Close flushes queued messages, sends a close frame and hangs up.
	Close(code int, reason string)
}

type outbound struct {
	data      []byte
	closeCode int
	reason    string
}

// Conn wraps a websocket with a bounded send queue drained by writePump.
type Conn struct {
	id      string
	ws      *websocket.Conn
	send    chan outbound
	done    chan struct{}
	once    sync.Once
	log     *zap.Logger
	metrics *Metrics
}

func newConn(ws *websocket.Conn, log *zap.Logger, metrics *Metrics) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:      id,
		ws:      ws,
		send:    make(chan outbound, sendQueueSize),
		done:    make(chan struct{}),
		log:     log.With(zap.String("conn", id)),
		metrics: metrics,
	}
}

// ID implements Peer.
func (c *Conn) ID() string { return c.id }

// Send implements Peer. A full queue drops the message so one slow client
// never stalls the hub.
func (c *Conn) Send(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- outbound{data: msg}:
		return true
	default:
		c.metrics.MessagesDropped.Add(1)
		c.log.Debug("send queue full, dropping message")
		return false
	}
}

// Close implements Peer.
func (c *Conn) Close(code int, reason string) {
	select {
	case c.send <- outbound{closeCode: code, reason: reason}:
	default:
		c.hangup()
	}
}

func (c *Conn) hangup() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// writePump owns every write to the socket except control frames.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.hangup()
	}()
	for {
		select {
		case <-c.done:
			return
		case out := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if out.closeCode != 0 {
				msg := websocket.FormatCloseMessage(out.closeCode, out.reason)
				_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, out.data); err != nil {
				c.log.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readPump decodes frames and hands them to handle until the socket fails.
// Malformed frames are answered with an Error event and skipped.
func (c *Conn) readPump(handle func(protocol.Envelope)) {
	defer c.hangup()
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("read failed", zap.Error(err))
			}
			return
		}
		env, err := protocol.Decode(payload)
		if err != nil {
			c.Send(protocol.MustEncode(protocol.Error, protocol.ErrorPayload{
				Code:   protocol.CodeMalformed,
				Detail: err.Error(),
			}))
			continue
		}
		handle(env)
	}
}
