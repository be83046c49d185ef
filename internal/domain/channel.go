package domain

import "context"

// Handler processes one inbound message and returns the reply text.
// An empty reply with a nil error means "do not reply".
type Handler interface {
	Handle(ctx context.Context, msg InboundMessage) (string, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, msg InboundMessage) (string, error)

func (f HandlerFunc) Handle(ctx context.Context, msg InboundMessage) (string, error) {
	return f(ctx, msg)
}
