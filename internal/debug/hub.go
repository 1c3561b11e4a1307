package debug

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/xraph/locator/logger"
)

const (
	clientQueue  = 64
	writeTimeout = 5 * time.Second
)

type frame struct {
	op   ws.OpCode
	data []byte
}

// client owns one connection. Only its writer goroutine writes to conn.
type client struct {
	conn net.Conn
	send chan frame
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// hub fans catalog events out to WebSocket clients. broadcast never blocks:
// a client whose queue is full misses the message.
type hub struct {
	logger  logger.Logger
	dropped atomic.Uint64

	mu      sync.Mutex
	clients map[net.Conn]*client
}

func newHub(l logger.Logger) *hub {
	return &hub{logger: l, clients: make(map[net.Conn]*client)}
}

// add registers conn and starts its writer. first, when set, is queued
// ahead of any broadcast.
func (h *hub) add(conn net.Conn, first []byte) *client {
	c := &client{
		conn: conn,
		send: make(chan frame, clientQueue),
		done: make(chan struct{}),
	}
	if first != nil {
		c.send <- frame{op: ws.OpText, data: first}
	}

	h.mu.Lock()
	h.clients[conn] = c
	h.mu.Unlock()

	go h.write(c)
	return c
}

func (h *hub) write(c *client) {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := wsutil.WriteServerMessage(c.conn, f.op, f.data); err != nil {
				h.logger.Debug("dropping debug client", logger.Error(err))
				h.remove(c.conn)
				return
			}
		}
	}
}

// enqueue reports false when c's queue is full.
func (h *hub) enqueue(c *client, f frame) bool {
	select {
	case c.send <- f:
		return true
	default:
		h.dropped.Add(1)
		return false
	}
}

func (h *hub) remove(conn net.Conn) {
	h.mu.Lock()
	c, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()

	if ok {
		c.close()
		return
	}
	conn.Close()
}

func (h *hub) broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		h.enqueue(c, frame{op: ws.OpText, data: data})
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[net.Conn]*client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}
