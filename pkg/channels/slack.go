package channels

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/tinyland-inc/gsbridge/pkg/bus"
	"github.com/tinyland-inc/gsbridge/pkg/config"
	"github.com/tinyland-inc/gsbridge/pkg/logger"
	"github.com/tinyland-inc/gsbridge/pkg/segment"
)

var slackMention = regexp.MustCompile(`<@([A-Z0-9]+)(?:\|[^>]*)?>`)

type SlackChannel struct {
	*BaseChannel
	api    *slack.Client
	socket *socketmode.Client
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSlackChannel(cfg config.SlackConfig, msgBus *bus.MessageBus) (*SlackChannel, error) {
	if !strings.HasPrefix(cfg.AppToken, "xapp-") {
		return nil, fmt.Errorf("slack app_token must start with xapp-")
	}
	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
	return &SlackChannel{
		BaseChannel: NewBaseChannel("slack", msgBus, cfg.AllowFrom),
		api:         api,
		socket:      socketmode.New(api),
	}, nil
}

func (c *SlackChannel) Start(ctx context.Context) error {
	auth, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	c.SetSelfID(auth.UserID)

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.SetRunning(true)

	go func() {
		if err := c.socket.RunContext(runCtx); err != nil && runCtx.Err() == nil {
			logger.ErrorCF("slack", "Socket mode stopped", map[string]any{"error": err.Error()})
		}
	}()
	go func() {
		defer close(c.done)
		c.consume(runCtx)
	}()
	return nil
}

func (c *SlackChannel) Stop(context.Context) error {
	if !c.IsRunning() {
		return nil
	}
	c.SetRunning(false)
	c.cancel()
	<-c.done
	return nil
}

func (c *SlackChannel) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-c.socket.Events:
			if !ok {
				return
			}
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			if evt.Request != nil {
				c.socket.Ack(*evt.Request)
			}
			if apiEvent.Type != slackevents.CallbackEvent {
				continue
			}
			if m, ok := apiEvent.InnerEvent.Data.(*slackevents.MessageEvent); ok {
				c.handleMessage(ctx, m)
			}
		}
	}
}

func (c *SlackChannel) handleMessage(ctx context.Context, m *slackevents.MessageEvent) {
	if m.BotID != "" || m.User == "" || m.User == c.SelfID() || m.SubType != "" {
		return
	}
	c.HandleMessage(ctx, m.User, slackInbound(m))
}

func slackInbound(m *slackevents.MessageEvent) bus.InboundMessage {
	msg := bus.InboundMessage{
		SenderID:   m.User,
		MessageID:  m.TimeStamp,
		SubSubtype: m.ChannelType,
		HasChannel: true,
		Elements:   ParseMentions(m.Text, slackMention),
	}
	if m.ChannelType == "im" {
		msg.ChatID = "private:" + m.User
		msg.Subtype = "private"
		msg.Peer = bus.Peer{Kind: bus.PeerDirect, ID: m.User}
	} else {
		msg.ChatID = m.Channel
		msg.Subtype = "group"
		msg.Peer = bus.Peer{Kind: bus.PeerGroup, ID: m.Channel}
	}
	if m.ThreadTimeStamp != "" && m.ThreadTimeStamp != m.TimeStamp {
		msg.Metadata = map[string]string{"thread_ts": m.ThreadTimeStamp}
	}
	return msg
}

func (c *SlackChannel) SendGroupMessage(ctx context.Context, target string, content []segment.Segment, _ string) error {
	return c.send(ctx, target, content)
}

func (c *SlackChannel) SendPrivateMessage(ctx context.Context, target string, content []segment.Segment) error {
	ch, _, _, err := c.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{strings.TrimPrefix(target, "private:")},
	})
	if err != nil {
		return fmt.Errorf("open slack dm: %w", err)
	}
	return c.send(ctx, ch.ID, content)
}

func (c *SlackChannel) send(ctx context.Context, channelID string, content []segment.Segment) error {
	r := Render(content, func(id string) string { return "<@" + id + ">" })
	if r.Empty() {
		return nil
	}

	// Passive ids are message timestamps, which Slack threads under.
	opts := slackOptions(r)
	if len(opts) > 0 {
		if _, _, err := c.api.PostMessageContext(ctx, channelID, opts...); err != nil {
			return fmt.Errorf("post slack message: %w", err)
		}
	}

	for _, f := range r.Files {
		if f.Location == "" {
			continue
		}
		info, err := os.Stat(f.Location)
		if err != nil {
			logger.WarnCF("slack", "Cannot attach file", map[string]any{"location": f.Location, "error": err.Error()})
			continue
		}
		if _, err := c.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
			Channel:         channelID,
			File:            f.Location,
			Filename:        f.Name,
			FileSize:        int(info.Size()),
			ThreadTimestamp: r.ReplyTo,
		}); err != nil {
			return fmt.Errorf("upload slack file: %w", err)
		}
	}
	return nil
}

func slackOptions(r Rendered) []slack.MsgOption {
	text := r.Text
	for _, f := range r.Files {
		if f.Location == "" && f.URL != "" {
			text = strings.TrimSpace(text + "\n" + f.URL)
		}
	}

	var blocks []slack.Block
	if text != "" {
		blocks = append(blocks, slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil))
	}
	for _, u := range r.Images {
		blocks = append(blocks, slack.NewImageBlock(u, "image", "", nil))
	}
	if len(blocks) == 0 {
		return nil
	}

	opts := []slack.MsgOption{slack.MsgOptionText(text, false), slack.MsgOptionBlocks(blocks...)}
	if r.ReplyTo != "" {
		opts = append(opts, slack.MsgOptionTS(r.ReplyTo))
	}
	return opts
}
