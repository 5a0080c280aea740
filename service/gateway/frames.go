package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	errs "IMCore/tools/errs"
)

// Inbound operations. The client drives the session with these; everything
// the server pushes uses Event instead.
const (
	OpJoin        = "join"
	OpLeave       = "leave"
	OpTypingStart = "typing.start"
	OpTypingStop  = "typing.stop"
	OpMessageSend = "message.send"
	OpMarkRead    = "read.mark"
)

// Server-only frame types.
const (
	EventConnAck = "conn.ack"
	EventError   = "error"
)

// Frame is the JSON envelope on the websocket, both directions. Inbound
// frames carry Op; outbound frames carry Event.
type Frame struct {
	Op             string          `json:"op,omitempty"`
	Event          string          `json:"event,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Ts             int64           `json:"ts,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// MarkReadPayload is the body of a read.mark frame.
type MarkReadPayload struct {
	Ts int64 `json:"ts"`
}

// MessageSendPayload is the body of a message.send frame; the gateway does
// not interpret the message body, it belongs to the application service.
type MessageSendPayload struct {
	Body json.RawMessage `json:"body"`
}

func ParseFrame(raw []byte) (*Frame, error) {
	f := &Frame{}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, fmt.Errorf("unmarshal frame failed: %w", err)
	}
	if f.Op == "" {
		return nil, errs.ErrInvalidArgument.WrapMsg("frame op missing")
	}
	return f, nil
}

// BuildEventFrame wraps an event payload for the wire.
func BuildEventFrame(event, conversationID string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload failed: %w", event, err)
	}
	return json.Marshal(&Frame{
		Event:          event,
		ConversationID: conversationID,
		Ts:             time.Now().UnixMilli(),
		Payload:        body,
	})
}

// ---- server acks ----

type connAckPayload struct {
	ConnID string `json:"conn_id"`
	NodeID string `json:"node_id"`
	UserID string `json:"user_id"`
}

func BuildConnAck(connID, nodeID, userID string) []byte {
	b, _ := BuildEventFrame(EventConnAck, "", connAckPayload{
		ConnID: connID,
		NodeID: nodeID,
		UserID: userID,
	})
	return b
}

type errorPayload struct {
	Op   string `json:"op"`
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// BuildErrorFrame surfaces a validation failure for the offending op.
func BuildErrorFrame(op string, err error) []byte {
	pe := errorPayload{Op: op, Code: errs.CodeInternal, Msg: "internal error"}
	var codeErr *errs.CodeError
	if errors.As(err, &codeErr) {
		pe.Code = codeErr.Code
		pe.Msg = codeErr.Msg
	}
	b, _ := BuildEventFrame(EventError, "", pe)
	return b
}
