// Package channels connects chat platforms (Telegram, Discord) to the router.
// A channel turns platform updates into bus.InboundMessage values and delivers
// bus.OutboundMessage replies; the Manager paces and routes those replies.
package channels

import (
	"context"
	"sync/atomic"

	"github.com/nextlevelbuilder/hamdam/internal/bus"
)

// Channel is one platform connection.
type Channel interface {
	// Name returns the channel identifier ("telegram", "discord").
	Name() string

	// Start begins receiving messages. It returns once the connection is up;
	// receiving continues in the background until Stop or ctx is done.
	Start(ctx context.Context) error

	// Stop shuts the connection down.
	Stop(ctx context.Context) error

	// Send delivers a reply or plain message.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	// SendTyping shows the platform's typing indicator in chatID.
	SendTyping(ctx context.Context, chatID string) error

	IsRunning() bool
}

// InboundHandler receives every accepted message. Implementations must not
// block the receive loop; the router dispatches onto its own goroutine.
type InboundHandler func(ctx context.Context, msg bus.InboundMessage)

// BaseChannel provides shared functionality for channel implementations.
// Channel implementations should embed this struct.
type BaseChannel struct {
	name    string
	handler InboundHandler
	running atomic.Bool
}

// NewBaseChannel creates a BaseChannel forwarding to handler.
func NewBaseChannel(name string, handler InboundHandler) *BaseChannel {
	return &BaseChannel{name: name, handler: handler}
}

func (c *BaseChannel) Name() string { return c.name }

func (c *BaseChannel) IsRunning() bool { return c.running.Load() }

func (c *BaseChannel) SetRunning(running bool) { c.running.Store(running) }

// HandleMessage stamps the channel name and forwards msg. Empty texts are dropped.
func (c *BaseChannel) HandleMessage(ctx context.Context, msg bus.InboundMessage) {
	if msg.Content == "" || c.handler == nil {
		return
	}
	msg.Channel = c.name
	c.handler(ctx, msg)
}
