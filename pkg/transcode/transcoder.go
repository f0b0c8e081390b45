package transcode

import (
	"context"

	"github.com/tinyland-inc/gsbridge/pkg/bus"
	"github.com/tinyland-inc/gsbridge/pkg/gscore"
	"github.com/tinyland-inc/gsbridge/pkg/logger"
	"github.com/tinyland-inc/gsbridge/pkg/segment"
)

// Permission levels understood by the core. Lower is more privileged.
const (
	PermissionOwner   = 2
	PermissionAdmin   = 3
	PermissionDefault = 6
	minPermission     = 1
	authorityFloor    = 4
)

// AuthorityStore looks up a user's platform authority level.
type AuthorityStore interface {
	Authority(ctx context.Context, platform, userID string) (level int, ok bool, err error)
}

// Transcoder builds whole envelopes on top of a Codec.
type Transcoder struct {
	codec     *Codec
	authority AuthorityStore
}

// NewTranscoder returns a Transcoder. authority may be nil.
func NewTranscoder(codec *Codec, authority AuthorityStore) *Transcoder {
	return &Transcoder{codec: codec, authority: authority}
}

func (t *Transcoder) Codec() *Codec { return t.codec }

// Encode builds the frame sent to the core for one platform message.
func (t *Transcoder) Encode(ctx context.Context, msg bus.InboundMessage) gscore.MessageSend {
	out := gscore.MessageSend{
		BotID:     msg.Channel,
		BotSelfID: msg.SelfID,
		MsgID:     msg.MessageID,
		UserType:  UserType(msg),
		UserID:    msg.SenderID,
		UserPM:    t.Permission(ctx, msg),
		Content:   t.encodeContent(ctx, msg.Elements),
	}
	if !msg.IsPrivate() {
		out.GroupID = msg.ChatID
	}
	return out
}

func (t *Transcoder) encodeContent(ctx context.Context, segs []segment.Segment) []gscore.Element {
	content := make([]gscore.Element, 0, len(segs))
	for _, seg := range segs {
		el, ok, err := t.codec.ToWire(ctx, seg)
		if err != nil {
			logger.ErrorCF("transcode", "Failed to encode element", map[string]any{
				"type":  seg.Type,
				"error": err.Error(),
			})
			continue
		}
		if ok {
			content = append(content, el)
		}
	}
	return content
}

// UserType derives the conversation kind reported to the core.
func UserType(msg bus.InboundMessage) string {
	if msg.SubSubtype != "" {
		switch msg.Subtype {
		case "group":
			return gscore.KindGroup
		case "private":
			return gscore.KindDirect
		case "channel":
			return gscore.KindChannel
		case "sub_channel":
			return gscore.KindSubChannel
		}
		if msg.HasChannel {
			return gscore.KindChannel
		}
		return gscore.KindUnknown
	}

	if msg.HasChannel && msg.ChannelType != nil {
		switch *msg.ChannelType {
		case 0:
			return gscore.KindChannel
		case 1:
			return gscore.KindDirect
		default:
			return gscore.KindChannel
		}
	}
	return gscore.KindUnknown
}

// Permission derives user_pm for the sender of msg.
func (t *Transcoder) Permission(ctx context.Context, msg bus.InboundMessage) int {
	if t.authority != nil {
		level, ok, err := t.authority.Authority(ctx, msg.Channel, msg.SenderID)
		if err != nil {
			logger.WarnCF("transcode", "Authority lookup failed", map[string]any{
				"platform": msg.Channel,
				"user_id":  msg.SenderID,
				"error":    err.Error(),
			})
		} else if ok && level >= authorityFloor {
			return max(PermissionDefault-level, minPermission)
		}
	}

	if !msg.IsPrivate() {
		return PermissionDefault
	}
	switch {
	case msg.HasRole("admin"):
		return PermissionAdmin
	case msg.HasRole("owner"):
		return PermissionOwner
	default:
		return PermissionDefault
	}
}

// Decode renders every element of env. Elements that fail are logged and
// skipped; the rest are still rendered.
func (t *Transcoder) Decode(env gscore.MessageReceive) []segment.Segment {
	var segs []segment.Segment
	for _, el := range env.Content {
		rendered, err := t.codec.FromWire(el, env.MsgID)
		if err != nil {
			logger.ErrorCF("transcode", "Failed to decode element", map[string]any{
				"type":   el.Type,
				"msg_id": env.MsgID,
				"error":  err.Error(),
			})
			continue
		}
		segs = append(segs, rendered...)
	}
	return segs
}

// WrapPassive prepends the passive reply marker for messageID.
func WrapPassive(segs []segment.Segment, messageID string) []segment.Segment {
	out := make([]segment.Segment, 0, len(segs)+1)
	out = append(out, segment.Passive(messageID))
	return append(out, segs...)
}

// FindChannelID returns the data of the first group element in env.
func FindChannelID(env gscore.MessageReceive) (string, bool) {
	for _, el := range env.Content {
		if el.Type != gscore.ElementGroup {
			continue
		}
		id, err := el.Text()
		if err != nil || id == "" {
			return "", false
		}
		return id, true
	}
	return "", false
}
