package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"IMCore/config"
	"IMCore/logger"
	"IMCore/service/presence"
	"IMCore/tools/ids"
	"IMCore/tools/safe"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// EventPublisher forwards client-produced messages to the broker; every
// gateway node (this one included) then fans out to the connections it owns.
type EventPublisher interface {
	PublishMessageSent(ctx context.Context, msg presence.MessagePayload) error
}

// Server owns the websocket endpoint: upgrade, auth, per-connection read
// loop, and frame dispatch into the hub.
type Server struct {
	cfg       config.Config
	hub       *Hub
	clients   *Clients
	sender    *LocalSender
	disp      *Dispatcher
	authOpts  AuthOptions
	publisher EventPublisher
}

func NewServer(cfg config.Config, hub *Hub, clients *Clients, sender *LocalSender) *Server {
	s := &Server{
		cfg:      cfg,
		hub:      hub,
		clients:  clients,
		sender:   sender,
		authOpts: DefaultAuthOptions([]byte(cfg.JWTSecret)),
	}
	s.disp = NewDispatcher()
	s.registerHandlers()
	return s
}

func (s *Server) Sender() *LocalSender { return s.sender }
func (s *Server) Hub() *Hub            { return s.hub }

// SetPublisher routes message.send frames through the broker instead of the
// local hub. Optional; without it messages fan out to this node only.
func (s *Server) SetPublisher(p EventPublisher) { s.publisher = p }

// Router builds the gin engine with the websocket endpoint and a health
// probe.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/ws", s.HandleWS)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "node": s.cfg.NodeID})
	})
	return r
}

// HandleWS authenticates, upgrades and runs the read loop until the peer
// goes away. The write side is a single pump goroutine per client.
func (s *Server) HandleWS(c *gin.Context) {
	userID, err := Verify(s.authOpts, bearerToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[ws] upgrade error: %v", err)
		return
	}

	connID := ids.GenerateString()
	client := NewClient(connID, userID, ws, s.cfg.SendQueueSize)
	s.clients.Add(client)

	ctx := c.Request.Context()
	if err := s.hub.OnConnect(ctx, connID, userID); err != nil {
		logger.Errorf("[ws] register failed conn=%s user=%s err=%v", connID, userID, err)
		s.clients.Remove(connID)
		client.Close()
		return
	}

	safe.SafeGo(client.writePump)
	client.Enqueue(BuildConnAck(connID, s.cfg.NodeID, userID))
	logger.Infof("[ws] connected conn=%s user=%s", connID, userID)

	s.readLoop(client)

	// teardown is symmetric with OnConnect: registry first, then transport
	s.hub.OnDisconnect(context.Background(), connID)
	s.clients.Remove(connID)
	client.Close()
	logger.Infof("[ws] disconnected conn=%s user=%s", connID, userID)
}

func (s *Server) readLoop(client *Client) {
	for {
		mt, data, err := client.WS.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[ws] peer closed conn=%s", client.ConnID)
			} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
				logger.Infof("[ws] read timeout conn=%s err=%v", client.ConnID, err)
			} else {
				logger.Infof("[ws] read err conn=%s err=%v", client.ConnID, err)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, err := ParseFrame(data)
		if err != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Infof("[ws] bad frame conn=%s err=%v sample=%q", client.ConnID, err, sample)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.disp.Dispatch(ctx, client, frame); err != nil {
			// validation errors bounce back to the sender; nothing mutated
			client.Enqueue(BuildErrorFrame(frame.Op, err))
		}
		cancel()
	}
}

func (s *Server) registerHandlers() {
	s.disp.Register(OpJoin, func(ctx context.Context, c *Client, f *Frame) error {
		return s.hub.JoinConversation(ctx, c.ConnID, f.ConversationID)
	})
	s.disp.Register(OpLeave, func(ctx context.Context, c *Client, f *Frame) error {
		s.hub.LeaveConversation(ctx, c.ConnID, f.ConversationID)
		return nil
	})
	s.disp.Register(OpTypingStart, func(ctx context.Context, c *Client, f *Frame) error {
		return s.hub.UserStartedTyping(ctx, f.ConversationID, c.UserID)
	})
	s.disp.Register(OpTypingStop, func(ctx context.Context, c *Client, f *Frame) error {
		return s.hub.UserStoppedTyping(ctx, f.ConversationID, c.UserID)
	})
	s.disp.Register(OpMessageSend, func(ctx context.Context, c *Client, f *Frame) error {
		if err := s.hub.requireParticipant(ctx, f.ConversationID, c.UserID); err != nil {
			return err
		}
		var p MessageSendPayload
		if len(f.Payload) > 0 {
			if err := json.Unmarshal(f.Payload, &p); err != nil {
				return err
			}
		}
		ts := f.Ts
		if ts == 0 {
			ts = time.Now().UnixMilli()
		}
		msg := presence.MessagePayload{
			ConversationID: f.ConversationID,
			SenderID:       c.UserID,
			Ts:             ts,
			Body:           json.RawMessage(p.Body),
		}
		if s.publisher != nil {
			return s.publisher.PublishMessageSent(ctx, msg)
		}
		return s.hub.MessageSent(ctx, f.ConversationID, msg)
	})
	s.disp.Register(OpMarkRead, func(ctx context.Context, c *Client, f *Frame) error {
		var p MarkReadPayload
		if len(f.Payload) > 0 {
			if err := json.Unmarshal(f.Payload, &p); err != nil {
				return err
			}
		}
		if p.Ts == 0 {
			p.Ts = time.Now().UnixMilli()
		}
		_, err := s.hub.MarkRead(ctx, f.ConversationID, c.UserID, p.Ts)
		return err
	})
}

func bearerToken(c *gin.Context) string {
	if t := c.Query("token"); t != "" {
		return t
	}
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
