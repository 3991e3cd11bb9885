package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type outbound struct {
	op          string
	messageType int
	data        []byte
	symbols     []string
}

// connection is one open transport with its reader and writer goroutines.
type connection struct {
	id        string
	conn      Conn
	outbox    chan outbound
	done      chan struct{}
	closeOnce sync.Once
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *connection) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (s *Supervisor) startConnection(id string, conn Conn) *connection {
	c := &connection{
		id:     id,
		conn:   conn,
		outbox: make(chan outbound, defaultOutboxSize),
		done:   make(chan struct{}),
	}

	epoch := s.epoch
	s.wg.Add(2)
	go s.readLoop(epoch, c)
	go s.writeLoop(epoch, c)
	return c
}

// readLoop forwards frames to the actor until the transport fails.
func (s *Supervisor) readLoop(epoch uint64, c *connection) {
	defer s.wg.Done()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed() {
				return
			}
			s.post(evReadFailed{epoch: epoch, connID: c.id, err: err})
			return
		}
		if !s.post(evFrame{epoch: epoch, messageType: messageType, data: data}) {
			return
		}
	}
}

// writeLoop is the only goroutine writing data frames to the transport.
func (s *Supervisor) writeLoop(epoch uint64, c *connection) {
	defer s.wg.Done()

	for {
		select {
		case <-c.done:
			return
		case m := <-c.outbox:
			deadline := time.Now().Add(s.cfg.WriteTimeout)

			var err error
			if m.messageType == websocket.PingMessage {
				err = c.conn.WriteControl(websocket.PingMessage, nil, deadline)
			} else {
				if err = c.conn.SetWriteDeadline(deadline); err == nil {
					err = c.conn.WriteMessage(m.messageType, m.data)
				}
			}

			if err != nil {
				if c.closed() {
					return
				}
				s.post(evSendFailed{epoch: epoch, op: m.op, symbols: m.symbols, err: err})
				continue
			}

			if m.op == "ping" {
				s.metrics.PingSent(s.cfg.Feed)
			}
			s.logger.Debug("Frame sent",
				slog.String("conn_id", c.id),
				slog.String("op", m.op),
				slog.Any("symbols", m.symbols),
			)
		}
	}
}
