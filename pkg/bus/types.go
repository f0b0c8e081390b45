package bus

import (
	"strings"

	"github.com/tinyland-inc/gsbridge/pkg/segment"
)

// Peer identifies the conversation a message belongs to.
type Peer struct {
	Kind string `json:"kind"` // "direct" | "group" | "channel" | ""
	ID   string `json:"id"`
}

const (
	PeerDirect  = "direct"
	PeerGroup   = "group"
	PeerChannel = "channel"
)

// InboundMessage is one platform session event headed for the core.
type InboundMessage struct {
	Channel   string `json:"channel"`  // platform name, sent as bot_id
	SelfID    string `json:"self_id"`  // bot account id, sent as bot_self_id
	SenderID  string `json:"sender_id"`
	ChatID    string `json:"chat_id"`  // channel id; "private:<id>" for direct chats on some platforms
	GuildID   string `json:"guild_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Peer      Peer   `json:"peer"`

	// Subtype and SubSubtype describe the conversation when the platform
	// reports one (group, private, channel, sub_channel).
	Subtype    string `json:"subtype,omitempty"`
	SubSubtype string `json:"sub_subtype,omitempty"`
	// ChannelType is the raw numeric channel type if the platform exposes one.
	ChannelType *int `json:"channel_type,omitempty"`
	HasChannel  bool `json:"has_channel,omitempty"`

	Roles    []string          `json:"roles,omitempty"`
	Elements []segment.Segment `json:"elements"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IsPrivate reports whether the message came from a one-to-one conversation.
func (m InboundMessage) IsPrivate() bool {
	return m.Peer.Kind == PeerDirect || m.Subtype == "private" || strings.HasPrefix(m.ChatID, "private:")
}

// HasRole reports whether the sender holds role.
func (m InboundMessage) HasRole(role string) bool {
	for _, r := range m.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// OutboundMessage is rendered content headed for a platform conversation.
type OutboundMessage struct {
	Channel   string            `json:"channel"`
	SelfID    string            `json:"self_id"`
	Peer      Peer              `json:"peer"`
	ChatID    string            `json:"chat_id"`
	ReplyRoot string            `json:"reply_root,omitempty"`
	Content   []segment.Segment `json:"content"`
}
