package gateway

import (
	"context"

	errs "IMCore/tools/errs"
)

// HandlerFunc processes one inbound frame for a live client.
type HandlerFunc func(ctx context.Context, c *Client, f *Frame) error

type Dispatcher struct {
	handlers map[string]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

func (d *Dispatcher) Register(op string, h HandlerFunc) { d.handlers[op] = h }

func (d *Dispatcher) Dispatch(ctx context.Context, c *Client, f *Frame) error {
	h, ok := d.handlers[f.Op]
	if !ok {
		return errs.ErrInvalidArgument.WrapMsg("no handler for op", "op", f.Op)
	}
	return h(ctx, c, f)
}
