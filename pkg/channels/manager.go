package channels

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tinyland-inc/gsbridge/pkg/bus"
	"github.com/tinyland-inc/gsbridge/pkg/config"
	"github.com/tinyland-inc/gsbridge/pkg/logger"
)

// ErrUnknownChannel is returned when an outbound message names a platform
// that has no registered channel.
var ErrUnknownChannel = errors.New("unknown channel")

// Manager owns the platform channels and delivers outbound messages to them.
type Manager struct {
	channels map[string]Channel
	bus      *bus.MessageBus
	mu       sync.RWMutex
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// NewManager builds a channel for every platform enabled in cfg.
func NewManager(cfg *config.Config, msgBus *bus.MessageBus) (*Manager, error) {
	m := &Manager{
		channels: make(map[string]Channel),
		bus:      msgBus,
	}

	if cfg.Channels.Discord.Enabled {
		ch, err := NewDiscordChannel(cfg.Channels.Discord, msgBus)
		if err != nil {
			return nil, fmt.Errorf("discord: %w", err)
		}
		m.Register(ch)
	}
	if cfg.Channels.Telegram.Enabled {
		ch, err := NewTelegramChannel(cfg.Channels.Telegram, msgBus)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		m.Register(ch)
	}
	if cfg.Channels.Slack.Enabled {
		ch, err := NewSlackChannel(cfg.Channels.Slack, msgBus)
		if err != nil {
			return nil, fmt.Errorf("slack: %w", err)
		}
		m.Register(ch)
	}

	return m, nil
}

func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

func (m *Manager) GetEnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasBot reports whether a running channel serves platform with account selfID.
func (m *Manager) HasBot(platform, selfID string) bool {
	ch, ok := m.GetChannel(platform)
	if !ok || !ch.IsRunning() {
		return false
	}
	return ch.SelfID() == selfID
}

// StartAll starts every channel and the outbound dispatcher. A channel that
// fails to start is logged and left stopped.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	channels := make([]Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		channels = append(channels, ch)
	}
	m.mu.RUnlock()

	started := 0
	for _, ch := range channels {
		if err := ch.Start(ctx); err != nil {
			logger.ErrorCF("channels", "Failed to start channel", map[string]any{
				"channel": ch.Name(),
				"error":   err.Error(),
			})
			continue
		}
		started++
		logger.InfoCF("channels", "Channel started", map[string]any{
			"channel": ch.Name(),
			"self_id": ch.SelfID(),
		})
	}
	if len(channels) > 0 && started == 0 {
		return errors.New("no channel could be started")
	}

	dispatchCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.dispatchOutbound(dispatchCtx)
	}()
	return nil
}

func (m *Manager) StopAll(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	m.mu.RLock()
	defer m.mu.RUnlock()
	var errs []error
	for name, ch := range m.channels {
		if err := ch.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) dispatchOutbound(ctx context.Context) {
	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		if err := m.Dispatch(ctx, msg); err != nil {
			logger.ErrorCF("channels", "Delivery failed", map[string]any{
				"channel": msg.Channel,
				"chat_id": msg.ChatID,
				"error":   err.Error(),
			})
		}
	}
}

// Dispatch delivers one outbound message to its channel.
func (m *Manager) Dispatch(ctx context.Context, msg bus.OutboundMessage) error {
	ch, ok := m.GetChannel(msg.Channel)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, msg.Channel)
	}
	if msg.Peer.Kind == bus.PeerDirect {
		return ch.SendPrivateMessage(ctx, msg.ChatID, msg.Content)
	}
	return ch.SendGroupMessage(ctx, msg.ChatID, msg.Content, msg.ReplyRoot)
}
