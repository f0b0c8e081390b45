// Package router decides where each rendered core envelope goes: to a
// pending correlation or to the conversation named by its target.
package router

import (
	"context"
	"errors"

	"github.com/tinyland-inc/gsbridge/pkg/bus"
	"github.com/tinyland-inc/gsbridge/pkg/correlation"
	"github.com/tinyland-inc/gsbridge/pkg/gscore"
	"github.com/tinyland-inc/gsbridge/pkg/logger"
	"github.com/tinyland-inc/gsbridge/pkg/segment"
	"github.com/tinyland-inc/gsbridge/pkg/transcode"
)

// ErrNoBot is returned when no registered platform account matches an
// envelope's bot_id and bot_self_id.
var ErrNoBot = errors.New("no bot for envelope")

// Bots reports which platform accounts can deliver messages.
type Bots interface {
	HasBot(platform, selfID string) bool
}

type Publisher interface {
	PublishOutbound(ctx context.Context, msg bus.OutboundMessage) error
}

type Options struct {
	FigureSupport    bool
	Passive          bool
	UseLastMessageID bool
	Dev              bool
}

type Router struct {
	opts       Options
	transcoder *transcode.Transcoder
	state      *correlation.State
	bots       Bots
	out        Publisher
}

func New(opts Options, transcoder *transcode.Transcoder, state *correlation.State, bots Bots, out Publisher) *Router {
	return &Router{
		opts:       opts,
		transcoder: transcoder,
		state:      state,
		bots:       bots,
		out:        out,
	}
}

// Route handles one envelope. Callers log the error; nothing it returns
// should stop the connection.
func (r *Router) Route(ctx context.Context, env gscore.MessageReceive) error {
	if env.IsLog() {
		return nil
	}
	if r.opts.Dev {
		logger.DebugCF("router", "Routing envelope", map[string]any{
			"bot_id":      env.BotID,
			"bot_self_id": env.BotSelfID,
			"target_type": env.TargetType,
			"target_id":   env.Target(),
			"msg_id":      env.MsgID,
			"elements":    len(env.Content),
		})
	}
	if r.bots != nil && !r.bots.HasBot(env.BotID, env.BotSelfID) {
		return ErrNoBot
	}

	rendered := r.transcoder.Decode(env)
	if len(rendered) == 0 {
		return nil
	}

	msgID := env.MsgID
	if msgID == "" && r.opts.UseLastMessageID {
		if id, ok := r.state.LastIDs.Get(env.Target()); ok {
			msgID = id
		}
	}

	if r.opts.FigureSupport {
		return r.routeAggregate(ctx, env, msgID, rendered)
	}
	return r.routePerElement(ctx, env, msgID, rendered)
}

func (r *Router) routeAggregate(ctx context.Context, env gscore.MessageReceive, msgID string, rendered []segment.Segment) error {
	content := r.wrap(rendered, msgID)
	if msgID != "" && r.state.Registry.Resolve(msgID, content) {
		return nil
	}
	return r.deliver(ctx, env, content)
}

func (r *Router) routePerElement(ctx context.Context, env gscore.MessageReceive, msgID string, rendered []segment.Segment) error {
	if msgID != "" && r.state.Registry.Resolve(msgID, r.wrap(rendered, msgID)) {
		return nil
	}
	var errs []error
	for _, seg := range rendered {
		if err := r.deliver(ctx, env, r.wrap([]segment.Segment{seg}, msgID)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Router) wrap(segs []segment.Segment, msgID string) []segment.Segment {
	if msgID != "" && r.opts.Passive {
		return transcode.WrapPassive(segs, msgID)
	}
	return segs
}

// Target computes the outbound destination for env, or ok=false for target
// kinds that are not delivered.
func Target(env gscore.MessageReceive) (bus.OutboundMessage, bool) {
	out := bus.OutboundMessage{Channel: env.BotID, SelfID: env.BotSelfID}
	target := env.Target()
	switch env.TargetType {
	case gscore.KindGroup:
		out.Peer = bus.Peer{Kind: bus.PeerGroup, ID: target}
		out.ChatID = target
		out.ReplyRoot = target
	case gscore.KindDirect:
		out.Peer = bus.Peer{Kind: bus.PeerDirect, ID: target}
		out.ChatID = target
	case gscore.KindChannel:
		id, ok := transcode.FindChannelID(env)
		if !ok {
			id = target
		}
		out.Peer = bus.Peer{Kind: bus.PeerChannel, ID: id}
		out.ChatID = id
		out.ReplyRoot = target
	default:
		return bus.OutboundMessage{}, false
	}
	return out, true
}

func (r *Router) deliver(ctx context.Context, env gscore.MessageReceive, content []segment.Segment) error {
	out, ok := Target(env)
	if !ok {
		logger.WarnCF("router", "Unsupported target type", map[string]any{
			"target_type": env.TargetType,
			"target_id":   env.Target(),
		})
		return nil
	}
	out.Content = content
	return r.out.PublishOutbound(ctx, out)
}
