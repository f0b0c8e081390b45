// Package bridge wires platform channels to the core: sessions from the bus
// are encoded and sent, and core envelopes are routed back to the
// conversations that should receive them.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tinyland-inc/gsbridge/pkg/assets"
	"github.com/tinyland-inc/gsbridge/pkg/bus"
	"github.com/tinyland-inc/gsbridge/pkg/config"
	"github.com/tinyland-inc/gsbridge/pkg/core"
	"github.com/tinyland-inc/gsbridge/pkg/correlation"
	"github.com/tinyland-inc/gsbridge/pkg/fetch"
	"github.com/tinyland-inc/gsbridge/pkg/gscore"
	"github.com/tinyland-inc/gsbridge/pkg/logger"
	"github.com/tinyland-inc/gsbridge/pkg/router"
	"github.com/tinyland-inc/gsbridge/pkg/segment"
	"github.com/tinyland-inc/gsbridge/pkg/transcode"
)

type Option func(*options)

type options struct {
	coreOpts []core.Option
	clock    func() time.Time
}

// WithCoreOptions passes options through to the core client.
func WithCoreOptions(opts ...core.Option) Option {
	return func(o *options) { o.coreOpts = append(o.coreOpts, opts...) }
}

// WithClock sets the clock used for asset names.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// Bridge owns the process-lifetime state of one core connection.
type Bridge struct {
	bus        *bus.MessageBus
	state      *correlation.State
	transcoder *transcode.Transcoder
	client     *core.Client
	router     *router.Router
	assets     *assets.Store
	janitor    *assets.Janitor
	dev        bool

	send func(gscore.MessageSend) error

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New builds a bridge from cfg. bots reports which platform accounts can
// deliver; authority may be nil.
func New(cfg *config.Config, msgBus *bus.MessageBus, bots router.Bots, authority transcode.AuthorityStore, opts ...Option) (*Bridge, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var storeOpts []assets.StoreOption
	if o.clock != nil {
		storeOpts = append(storeOpts, assets.WithClock(o.clock))
	}
	store := assets.NewStore(cfg.Assets.ImageDir, cfg.Assets.FileDir, cfg.Render.PublicURL, storeOpts...)

	var janitor *assets.Janitor
	if cfg.Assets.MaxAgeHours > 0 {
		j, err := assets.NewJanitor(store, cfg.Assets.CleanupSchedule, time.Duration(cfg.Assets.MaxAgeHours)*time.Hour)
		if err != nil {
			return nil, fmt.Errorf("asset janitor: %w", err)
		}
		janitor = j
	}

	fetcher := fetch.New(time.Duration(cfg.Assets.FetchTimeout)*time.Second, cfg.Assets.MaxFetchBytes)
	codec := transcode.NewCodec(transcode.Options{
		ImgType:       cfg.Render.ImgType,
		FigureSupport: cfg.Render.FigureSupport,
		NodeNickname:  cfg.Render.NodeNickname,
	}, store, fetcher)
	transcoder := transcode.NewTranscoder(codec, authority)
	state := correlation.NewState(cfg.Core.ReplyTimeout())

	b := &Bridge{
		bus:        msgBus,
		state:      state,
		transcoder: transcoder,
		assets:     store,
		janitor:    janitor,
		dev:        cfg.Render.Dev,
		ctx:        context.Background(),
	}
	b.router = router.New(router.Options{
		FigureSupport:    cfg.Render.FigureSupport,
		Passive:          cfg.Render.Passive,
		UseLastMessageID: cfg.Render.UseLastMessageID,
		Dev:              cfg.Render.Dev,
	}, transcoder, state, bots, msgBus)
	b.client = core.NewClient(core.Config{
		URL:               cfg.Core.WebSocketURL(),
		ReconnectInterval: cfg.Core.ReconnectInterval(),
		Dev:               cfg.Render.Dev,
	}, b.onEnvelope, o.coreOpts...)
	b.send = b.client.Send

	return b, nil
}

// Assets returns the store that inline core payloads are written to.
func (b *Bridge) Assets() *assets.Store { return b.assets }

// State returns the correlation registry and last-message-id table.
func (b *Bridge) State() *correlation.State { return b.state }

// IsReady reports whether the core connection is up.
func (b *Bridge) IsReady() bool { return b.client.IsConnected() }

// Start connects to the core and consumes platform messages from the bus
// until Stop is called or ctx is done.
func (b *Bridge) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.ctx, b.cancel = ctx, cancel
	b.mu.Unlock()

	b.client.Start(ctx)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.consume(ctx)
	}()

	if b.janitor != nil {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.janitor.Run(ctx)
		}()
	}

	logger.InfoCF("bridge", "Bridge started", map[string]any{"core": b.client.URL()})
}

// Stop disposes the core connection and expires pending correlations. It is
// safe to call more than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		cancel := b.cancel
		b.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		b.client.Dispose()
		b.state.Close()
		b.wg.Wait()
		logger.InfoC("bridge", "Bridge stopped")
	})
}

func (b *Bridge) consume(ctx context.Context) {
	for {
		msg, ok := b.bus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		if err := b.HandleMessage(ctx, msg); err != nil {
			logger.WarnCF("bridge", "Failed to forward message to core", map[string]any{
				"channel":    msg.Channel,
				"chat_id":    msg.ChatID,
				"message_id": msg.MessageID,
				"error":      err.Error(),
			})
		}
	}
}

// HandleMessage sends one platform session to the core and registers a
// correlation so the reply lands back in the same conversation.
func (b *Bridge) HandleMessage(ctx context.Context, msg bus.InboundMessage) error {
	if b.dev {
		logger.DebugCF("bridge", "Session", map[string]any{
			"channel":    msg.Channel,
			"self_id":    msg.SelfID,
			"sender_id":  msg.SenderID,
			"chat_id":    msg.ChatID,
			"message_id": msg.MessageID,
			"content":    segment.PlainText(msg.Elements),
		})
	}

	frame := b.transcoder.Encode(ctx, msg)
	if err := b.send(frame); err != nil {
		return fmt.Errorf("send to core: %w", err)
	}

	key := frame.GroupID
	if key == "" {
		key = frame.UserID
	}
	b.state.LastIDs.Set(key, msg.MessageID)

	if msg.MessageID == "" {
		return nil
	}
	w := b.state.Registry.Register(msg.MessageID, refFor(msg))
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.awaitReply(b.context(), w)
	}()
	return nil
}

func refFor(msg bus.InboundMessage) correlation.Ref {
	return correlation.Ref{
		Channel:   msg.Channel,
		SelfID:    msg.SelfID,
		ChatID:    msg.ChatID,
		GuildID:   msg.GuildID,
		UserID:    msg.SenderID,
		MessageID: msg.MessageID,
		Direct:    msg.IsPrivate(),
	}
}

func (b *Bridge) awaitReply(ctx context.Context, w *correlation.Waiter) {
	content, err := w.Wait(ctx)
	if err != nil {
		if errors.Is(err, correlation.ErrExpired) && b.dev {
			logger.DebugCF("bridge", "Correlation expired", map[string]any{"message_id": w.ID})
		}
		return
	}
	if err := b.bus.PublishOutbound(ctx, ReplyTo(w.Ref, content)); err != nil {
		logger.WarnCF("bridge", "Failed to deliver correlated reply", map[string]any{
			"message_id": w.ID,
			"error":      err.Error(),
		})
	}
}

// ReplyTo addresses content to the conversation ref came from.
func ReplyTo(ref correlation.Ref, content []segment.Segment) bus.OutboundMessage {
	out := bus.OutboundMessage{
		Channel: ref.Channel,
		SelfID:  ref.SelfID,
		Content: content,
	}
	if ref.Direct {
		out.Peer = bus.Peer{Kind: bus.PeerDirect, ID: ref.UserID}
		out.ChatID = ref.UserID
		return out
	}
	out.Peer = bus.Peer{Kind: bus.PeerGroup, ID: ref.ChatID}
	out.ChatID = ref.ChatID
	out.ReplyRoot = ref.ChatID
	return out
}

func (b *Bridge) onEnvelope(env gscore.MessageReceive) {
	if err := b.router.Route(b.context(), env); err != nil {
		if errors.Is(err, router.ErrNoBot) {
			logger.DebugCF("bridge", "No bot for envelope", map[string]any{
				"bot_id":      env.BotID,
				"bot_self_id": env.BotSelfID,
			})
			return
		}
		logger.WarnCF("bridge", "Routing failed", map[string]any{
			"target_type": env.TargetType,
			"target_id":   env.Target(),
			"error":       err.Error(),
		})
	}
}

func (b *Bridge) context() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctx
}
