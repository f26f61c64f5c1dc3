package stream

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// connection adapts a gorilla/websocket connection to registry.Connection,
// following the teacher's Client readPump/writePump split: one goroutine
// owns all writes to the socket, everything else hands it messages over a
// channel.
type connection struct {
	id   uuid.UUID
	conn *websocket.Conn
	log  *zap.Logger

	send    chan []byte
	control chan string

	mu     sync.Mutex
	closed bool

	maxQueue int

	onControl func(c *connection, text string)
	onClose   func(c *connection)
}

func newConnection(conn *websocket.Conn, maxQueue int, log *zap.Logger) *connection {
	return &connection{
		id:       uuid.New(),
		conn:     conn,
		log:      log,
		send:     make(chan []byte, maxQueue+1),
		control:  make(chan string, 4),
		maxQueue: maxQueue,
	}
}

func (c *connection) ID() uuid.UUID { return c.id }

// QueueLen reports the outbound queue depth, used by the producer to
// enforce backpressure before Enqueue is even attempted.
func (c *connection) QueueLen() int { return len(c.send) }

// Enqueue implements registry.Connection. It never blocks: a full queue
// or closed connection both surface as an error so the caller removes the
// subscriber (spec.md §4.6 step 5).
func (c *connection) Enqueue(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return errQueueFull
	}
}

func (c *connection) Close(code int, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	// The close frame is written before send is closed, so writePump cannot
	// close the socket ahead of it. Enqueue checks closed under mu, so no
	// sender touches send after this point.
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)

	close(c.send)
}

// readPump relays inbound text control frames to onControl and invokes
// onClose once the socket errors or is closed, mirroring the teacher's
// Client.readPump.
func (c *connection) readPump() {
	defer func() {
		if c.onClose != nil {
			c.onClose(c)
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("websocket read error", zap.String("connection", c.id.String()), zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if c.onControl != nil {
			c.onControl(c, string(data))
		}
	}
}

// writePump owns the socket for writing: it drains send, answers control
// replies, and pings on an idle timer, mirroring the teacher's
// Client.writePump.
func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				return
			}

		case text := <-c.control:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reply queues a text control response; drops silently if the connection
// is already gone, matching the producer/control-plane "never block on a
// client" discipline.
func (c *connection) reply(text string) {
	select {
	case c.control <- text:
	default:
	}
}

type connError string

func (e connError) Error() string { return string(e) }

const (
	errClosed    connError = "connection closed"
	errQueueFull connError = "queue full"
)
