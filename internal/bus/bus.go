package bus

import (
	"context"
	"sync"
	"time"
)

// Utterance sources as reported by channels.
const (
	SourceText  = "text"
	SourceVoice = "voice"
)

// InboundUtterance is one unit of raw user input arriving from a channel.
// Voice notes carry the raw audio; the gateway transcribes them before
// interpretation.
type InboundUtterance struct {
	Channel    string
	SenderID   string
	ChatID     string
	Text       string
	Source     string
	Audio      []byte
	AudioMIME  string
	ReceivedAt time.Time
	Metadata   map[string]any
}

func (u *InboundUtterance) SessionKey() string {
	return u.Channel + ":" + u.ChatID
}

// OutboundReply is a rendered response on its way back to a channel.
type OutboundReply struct {
	Channel string
	ChatID  string
	Content string
}

// MessageBus decouples channels from the gateway. Channels push inbound
// utterances; the gateway pushes replies, which are dispatched to the
// subscriber registered for the reply's channel.
type MessageBus struct {
	Inbound  chan InboundUtterance
	Outbound chan OutboundReply

	mu          sync.RWMutex
	subscribers map[string]func(OutboundReply)
}

func NewMessageBus(bufSize int) *MessageBus {
	return &MessageBus{
		Inbound:     make(chan InboundUtterance, bufSize),
		Outbound:    make(chan OutboundReply, bufSize),
		subscribers: make(map[string]func(OutboundReply)),
	}
}

// SubscribeOutbound registers the delivery function for a channel name.
// Replies addressed to an unknown channel are dropped.
func (b *MessageBus) SubscribeOutbound(channel string, fn func(OutboundReply)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[channel] = fn
}

// DispatchOutbound drains the outbound queue until ctx is cancelled.
func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case reply := <-b.Outbound:
			b.mu.RLock()
			fn := b.subscribers[reply.Channel]
			b.mu.RUnlock()
			if fn != nil {
				fn(reply)
			}
		case <-ctx.Done():
			return
		}
	}
}
