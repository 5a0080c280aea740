package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"IMCore/logger"
)

const writeDeadline = 5 * time.Second

// Client is one live websocket session. A single user may have multiple
// clients (multi-device), each with its own outbound queue consumed by a
// single writer goroutine.
type Client struct {
	ConnID string
	UserID string
	WS     *websocket.Conn
	Send   chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func NewClient(connID, userID string, ws *websocket.Conn, sendQueueSize int) *Client {
	return &Client{
		ConnID: connID,
		UserID: userID,
		WS:     ws,
		Send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// Enqueue offers a payload to the outbound queue without blocking. A full
// queue means a slow client; the frame is dropped and reported.
func (c *Client) Enqueue(payload []byte) bool {
	select {
	case c.Send <- payload:
		return true
	case <-c.done:
		return false
	default:
		logger.Warnf("[client] send queue full, drop frame conn=%s user=%s", c.ConnID, c.UserID)
		return false
	}
}

// writePump is the single writer: everything written to the socket goes
// through here. Returns when the client is closed or a write fails.
func (c *Client) writePump() {
	for {
		select {
		case <-c.done:
			return
		case payload := <-c.Send:
			if err := c.WS.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				logger.Infof("[client] set deadline err conn=%s err=%v", c.ConnID, err)
				return
			}
			if err := c.WS.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Infof("[client] write err conn=%s err=%v", c.ConnID, err)
				return
			}
		}
	}
}

// Close stops the writer and closes the socket. Safe to call twice.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.WS.Close()
	})
}

// Clients indexes live clients by connection id so the Sender can resolve
// targets. This is transport bookkeeping; the authoritative presence state
// lives in the registry.
type Clients struct {
	mu   sync.RWMutex
	byID map[string]*Client
}

func NewClients() *Clients {
	return &Clients{byID: make(map[string]*Client)}
}

func (cs *Clients) Add(c *Client) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.byID[c.ConnID] = c
}

func (cs *Clients) Remove(connID string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.byID, connID)
}

func (cs *Clients) Get(connID string) (*Client, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	c, ok := cs.byID[connID]
	return c, ok
}

// Resolve maps connection ids to live clients, silently skipping stale ids
// (disconnect races are routine).
func (cs *Clients) Resolve(connIDs []string) []*Client {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]*Client, 0, len(connIDs))
	for _, id := range connIDs {
		if c, ok := cs.byID[id]; ok {
			out = append(out, c)
		}
	}
	return out
}
