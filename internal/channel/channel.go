package channel

import (
	"context"

	"habitvoice/internal/bus"
)

// Channel is one way utterances reach the gateway and replies leave it.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(reply bus.OutboundReply) error
}

// BaseChannel carries the pieces every channel shares: its name, the bus,
// and an optional sender allow-list.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowFrom map[string]bool
}

func NewBaseChannel(name string, b *bus.MessageBus, allowFrom []string) BaseChannel {
	var allowed map[string]bool
	if len(allowFrom) > 0 {
		allowed = make(map[string]bool, len(allowFrom))
		for _, id := range allowFrom {
			allowed[id] = true
		}
	}
	return BaseChannel{name: name, bus: b, allowFrom: allowed}
}

func (c *BaseChannel) Name() string {
	return c.name
}

// IsAllowed reports whether a sender may use this channel. An empty
// allow-list admits everyone.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if c.allowFrom == nil {
		return true
	}
	return c.allowFrom[senderID]
}

func (c *BaseChannel) Bus() *bus.MessageBus {
	return c.bus
}
