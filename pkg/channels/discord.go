package channels

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/tinyland-inc/gsbridge/pkg/bus"
	"github.com/tinyland-inc/gsbridge/pkg/config"
	"github.com/tinyland-inc/gsbridge/pkg/logger"
	"github.com/tinyland-inc/gsbridge/pkg/segment"
)

var discordMention = regexp.MustCompile(`<@!?(\d+)>`)

type DiscordChannel struct {
	*BaseChannel
	session *discordgo.Session
	remove  func()
}

func NewDiscordChannel(cfg config.DiscordConfig, msgBus *bus.MessageBus) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", msgBus, cfg.AllowFrom),
		session:     session,
	}, nil
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	c.remove = c.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		c.handleMessage(ctx, s, m)
	})
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	me, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot user: %w", err)
	}
	c.SetSelfID(me.ID)
	c.SetRunning(true)
	return nil
}

func (c *DiscordChannel) Stop(context.Context) error {
	if !c.IsRunning() {
		return nil
	}
	c.SetRunning(false)
	if c.remove != nil {
		c.remove()
	}
	return c.session.Close()
}

func (c *DiscordChannel) handleMessage(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.SelfID() || m.Author.Bot {
		return
	}

	var channelType *int
	if ch, err := s.State.Channel(m.ChannelID); err == nil {
		t := int(ch.Type)
		channelType = &t
	} else if m.GuildID == "" {
		t := int(discordgo.ChannelTypeDM)
		channelType = &t
	}

	msg := discordInbound(m.Message, channelType)
	c.HandleMessage(ctx, m.Author.ID+"|"+m.Author.Username, msg)
}

// discordInbound converts a Discord message. channelType is the raw channel
// type, 0 for guild text and 1 for DMs.
func discordInbound(m *discordgo.Message, channelType *int) bus.InboundMessage {
	msg := bus.InboundMessage{
		SenderID:    m.Author.ID,
		MessageID:   m.ID,
		GuildID:     m.GuildID,
		ChannelType: channelType,
		HasChannel:  true,
	}
	if m.GuildID == "" {
		msg.ChatID = "private:" + m.Author.ID
		msg.Peer = bus.Peer{Kind: bus.PeerDirect, ID: m.Author.ID}
	} else {
		msg.ChatID = m.ChannelID
		msg.Peer = bus.Peer{Kind: bus.PeerChannel, ID: m.ChannelID}
	}

	if m.MessageReference != nil && m.MessageReference.MessageID != "" {
		msg.Elements = append(msg.Elements, segment.Quote(m.MessageReference.MessageID))
	}
	msg.Elements = append(msg.Elements, ParseMentions(m.Content, discordMention)...)
	for _, a := range m.Attachments {
		if strings.HasPrefix(a.ContentType, "image/") {
			msg.Elements = append(msg.Elements, segment.Image(segment.TypeImg, a.URL))
		} else {
			msg.Elements = append(msg.Elements, segment.File(a.Filename, a.URL))
		}
	}
	return msg
}

func (c *DiscordChannel) SendGroupMessage(ctx context.Context, target string, content []segment.Segment, _ string) error {
	return c.send(ctx, target, content)
}

func (c *DiscordChannel) SendPrivateMessage(ctx context.Context, target string, content []segment.Segment) error {
	dm, err := c.session.UserChannelCreate(target, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open discord dm: %w", err)
	}
	return c.send(ctx, dm.ID, content)
}

func (c *DiscordChannel) send(ctx context.Context, channelID string, content []segment.Segment) error {
	r := Render(content, func(id string) string { return "<@" + id + ">" })
	if r.Empty() {
		return nil
	}

	data, closeFiles := discordMessage(r, channelID)
	defer closeFiles()

	if _, err := c.session.ChannelMessageSendComplex(channelID, data, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send discord message: %w", err)
	}
	return nil
}

// discordMessage builds the send payload. Local files are opened and must be
// closed with the returned func after sending.
func discordMessage(r Rendered, channelID string) (*discordgo.MessageSend, func()) {
	data := &discordgo.MessageSend{Content: r.Text}

	replyTo := r.ReplyTo
	if replyTo == "" {
		replyTo = r.QuoteID
	}
	if replyTo != "" {
		data.Reference = &discordgo.MessageReference{MessageID: replyTo, ChannelID: channelID}
	}

	for _, u := range r.Images {
		data.Embeds = append(data.Embeds, &discordgo.MessageEmbed{Image: &discordgo.MessageEmbedImage{URL: u}})
	}

	var opened []*os.File
	for _, f := range r.Files {
		if f.Location == "" {
			data.Content = strings.TrimSpace(data.Content + "\n" + f.URL)
			continue
		}
		file, err := os.Open(f.Location)
		if err != nil {
			logger.WarnCF("discord", "Cannot attach file", map[string]any{"location": f.Location, "error": err.Error()})
			continue
		}
		opened = append(opened, file)
		name := f.Name
		if name == "" {
			name = filepath.Base(f.Location)
		}
		data.Files = append(data.Files, &discordgo.File{Name: name, Reader: file})
	}

	return data, func() {
		for _, f := range opened {
			f.Close()
		}
	}
}
