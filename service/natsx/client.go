package natsx

import (
	"errors"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Config for the NATS connection.
type Config struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

func (c *Config) norm() {
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 500 * time.Millisecond
	}
	if c.Timeout == 0 {
		c.Timeout = 3 * time.Second
	}
}

// Client wraps one core-NATS connection and tracks its subscriptions for a
// clean shutdown.
type Client struct {
	nc *nats.Conn

	mu   sync.Mutex
	subs []*nats.Subscription
}

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url missing")
	}
	cfg.norm()
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{nc: nc}, nil
}

func (c *Client) subscribe(subject string, cb nats.MsgHandler) error {
	sub, err := c.nc.Subscribe(subject, cb)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return nil
}

func (c *Client) publish(subject string, data []byte) error {
	msg := nats.NewMsg(subject)
	msg.Data = data
	return c.nc.PublishMsg(msg)
}

// Close drains subscriptions and closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, s := range subs {
		_ = s.Drain()
	}
	c.nc.Close()
}
