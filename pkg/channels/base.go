package channels

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tinyland-inc/gsbridge/pkg/bus"
	"github.com/tinyland-inc/gsbridge/pkg/logger"
	"github.com/tinyland-inc/gsbridge/pkg/segment"
)

// Channel is one platform account the bridge can receive from and deliver to.
type Channel interface {
	Name() string
	SelfID() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SendGroupMessage(ctx context.Context, target string, content []segment.Segment, replyRoot string) error
	SendPrivateMessage(ctx context.Context, target string, content []segment.Segment) error
	IsRunning() bool
	IsAllowed(senderID string) bool
}

// BaseChannelOption is a functional option for configuring a BaseChannel.
type BaseChannelOption func(*BaseChannel)

// WithSelfID sets the bot account id up front for platforms that know it
// before connecting.
func WithSelfID(id string) BaseChannelOption {
	return func(c *BaseChannel) { c.selfID = id }
}

type BaseChannel struct {
	bus       *bus.MessageBus
	running   atomic.Bool
	name      string
	allowList []string

	mu     sync.RWMutex
	selfID string
}

func NewBaseChannel(name string, msgBus *bus.MessageBus, allowList []string, opts ...BaseChannelOption) *BaseChannel {
	bc := &BaseChannel{
		bus:       msgBus,
		name:      name,
		allowList: allowList,
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) SelfID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selfID
}

func (c *BaseChannel) SetSelfID(id string) {
	c.mu.Lock()
	c.selfID = id
	c.mu.Unlock()
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

func (c *BaseChannel) SetRunning(running bool) {
	c.running.Store(running)
}

// IsAllowed matches senderID against the allow list. Entries may be a bare
// id, an "@username" or the compound "id|username" form.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	idPart, userPart, _ := strings.Cut(senderID, "|")
	for _, allowed := range c.allowList {
		trimmed := strings.TrimPrefix(allowed, "@")
		allowedID, allowedUser, _ := strings.Cut(trimmed, "|")

		if senderID == allowed || senderID == trimmed ||
			idPart == trimmed || idPart == allowedID ||
			(allowedUser != "" && senderID == allowedUser) ||
			(userPart != "" && (userPart == trimmed || userPart == allowedUser)) {
			return true
		}
	}
	return false
}

// HandleMessage stamps msg with this channel's identity and publishes it to
// the bus if the sender is allowed. senderKey is what the allow list is
// checked against.
func (c *BaseChannel) HandleMessage(ctx context.Context, senderKey string, msg bus.InboundMessage) {
	if !c.IsAllowed(senderKey) {
		logger.DebugCF(c.name, "Sender not in allow list", map[string]any{"sender": senderKey})
		return
	}
	if len(msg.Elements) == 0 {
		return
	}

	msg.Channel = c.name
	msg.SelfID = c.SelfID()
	if err := c.bus.PublishInbound(ctx, msg); err != nil {
		logger.WarnCF(c.name, "Failed to publish inbound message", map[string]any{"error": err.Error()})
	}
}
