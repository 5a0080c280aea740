package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the static gateway configuration. Values not set through the
// environment fall back to the defaults applied by norm().
type Config struct {
	NodeID string // gateway node id, recorded in presence entries
	Addr   string // HTTP listen address

	JWTSecret string

	TypingTimeout time.Duration // idle window before a typing entry expires
	SendQueueSize int           // per-connection outbound queue
	FanoutWorkers int
	FanoutQueue   int

	UseRedis      bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PresenceTTL   time.Duration

	NatsURL string
}

func (c *Config) norm() {
	if c.NodeID == "" {
		c.NodeID = "gateway_1"
	}
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.TypingTimeout <= 0 {
		c.TypingTimeout = 5 * time.Second
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}
	if c.FanoutWorkers <= 0 {
		c.FanoutWorkers = 8
	}
	if c.FanoutQueue <= 0 {
		c.FanoutQueue = 1024
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "127.0.0.1:6379"
	}
	if c.PresenceTTL <= 0 {
		c.PresenceTTL = 60 * time.Second
	}
}

// Load builds the config from the environment and normalizes it.
func Load() Config {
	c := Config{
		NodeID:        os.Getenv("IM_NODE_ID"),
		Addr:          os.Getenv("IM_ADDR"),
		JWTSecret:     os.Getenv("IM_JWT_SECRET"),
		RedisAddr:     os.Getenv("IM_REDIS_ADDR"),
		RedisPassword: os.Getenv("IM_REDIS_PASSWORD"),
		NatsURL:       os.Getenv("IM_NATS_URL"),
	}
	c.UseRedis = os.Getenv("IM_USE_REDIS") == "1"
	if v := os.Getenv("IM_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RedisDB = n
		}
	}
	if v := os.Getenv("IM_TYPING_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.TypingTimeout = time.Duration(n) * time.Millisecond
		}
	}
	c.norm()
	return c
}
