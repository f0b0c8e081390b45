package channels

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/mymmrac/telego"

	"github.com/tinyland-inc/gsbridge/pkg/bus"
	"github.com/tinyland-inc/gsbridge/pkg/config"
	"github.com/tinyland-inc/gsbridge/pkg/logger"
	"github.com/tinyland-inc/gsbridge/pkg/segment"
)

type TelegramChannel struct {
	*BaseChannel
	bot    *telego.Bot
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTelegramChannel(cfg config.TelegramConfig, msgBus *bus.MessageBus) (*TelegramChannel, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramChannel{
		BaseChannel: NewBaseChannel("telegram", msgBus, cfg.AllowFrom),
		bot:         bot,
	}, nil
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	c.SetSelfID(strconv.FormatInt(me.ID, 10))

	pollCtx, cancel := context.WithCancel(ctx)
	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("start telegram polling: %w", err)
	}
	c.cancel = cancel
	c.done = make(chan struct{})
	c.SetRunning(true)

	go func() {
		defer close(c.done)
		for update := range updates {
			if update.Message != nil {
				c.handleMessage(pollCtx, update.Message)
			}
		}
	}()
	return nil
}

func (c *TelegramChannel) Stop(context.Context) error {
	if !c.IsRunning() {
		return nil
	}
	c.SetRunning(false)
	c.cancel()
	<-c.done
	return nil
}

func (c *TelegramChannel) handleMessage(ctx context.Context, m *telego.Message) {
	if m.From == nil || m.From.IsBot {
		return
	}
	msg := telegramInbound(m)
	for i, el := range msg.Elements {
		if el.Type == segment.TypeImg && strings.HasPrefix(el.Attr("src"), "file_id:") {
			url, err := c.fileURL(ctx, strings.TrimPrefix(el.Attr("src"), "file_id:"))
			if err != nil {
				logger.WarnCF("telegram", "Cannot resolve photo", map[string]any{"error": err.Error()})
				continue
			}
			msg.Elements[i] = segment.Image(segment.TypeImg, url)
		}
		if el.Type == segment.TypeFile && strings.HasPrefix(el.Attr("url"), "file_id:") {
			url, err := c.fileURL(ctx, strings.TrimPrefix(el.Attr("url"), "file_id:"))
			if err != nil {
				logger.WarnCF("telegram", "Cannot resolve document", map[string]any{"error": err.Error()})
				continue
			}
			msg.Elements[i] = segment.File(el.Attr("name"), url)
		}
	}
	c.HandleMessage(ctx, strconv.FormatInt(m.From.ID, 10)+"|"+m.From.Username, msg)
}

func (c *TelegramChannel) fileURL(ctx context.Context, fileID string) (string, error) {
	f, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return "", err
	}
	return c.bot.FileDownloadURL(f.FilePath), nil
}

// telegramInbound converts a Telegram message. Photos and documents carry a
// "file_id:" placeholder until the download URL is resolved.
func telegramInbound(m *telego.Message) bus.InboundMessage {
	chatID := strconv.FormatInt(m.Chat.ID, 10)
	senderID := strconv.FormatInt(m.From.ID, 10)
	msg := bus.InboundMessage{
		SenderID:   senderID,
		MessageID:  strconv.Itoa(m.MessageID),
		SubSubtype: m.Chat.Type,
		HasChannel: true,
	}
	if m.Chat.Type == telego.ChatTypePrivate {
		msg.ChatID = "private:" + senderID
		msg.Subtype = "private"
		msg.Peer = bus.Peer{Kind: bus.PeerDirect, ID: senderID}
	} else {
		msg.ChatID = chatID
		msg.GuildID = chatID
		msg.Subtype = "group"
		msg.Peer = bus.Peer{Kind: bus.PeerGroup, ID: chatID}
	}

	if m.ReplyToMessage != nil {
		msg.Elements = append(msg.Elements, segment.Quote(strconv.Itoa(m.ReplyToMessage.MessageID)))
	}

	text, entities := m.Text, m.Entities
	if text == "" {
		text, entities = m.Caption, m.CaptionEntities
	}
	msg.Elements = append(msg.Elements, telegramText(text, entities)...)

	if len(m.Photo) > 0 {
		largest := m.Photo[len(m.Photo)-1]
		msg.Elements = append(msg.Elements, segment.Image(segment.TypeImg, "file_id:"+largest.FileID))
	}
	if m.Document != nil {
		msg.Elements = append(msg.Elements, segment.File(m.Document.FileName, "file_id:"+m.Document.FileID))
	}
	return msg
}

// telegramText splits text on text_mention entities. Offsets are in UTF-16
// code units.
func telegramText(text string, entities []telego.MessageEntity) []segment.Segment {
	if text == "" {
		return nil
	}
	units := utf16.Encode([]rune(text))
	var segs []segment.Segment
	last := 0
	for _, e := range entities {
		if e.Type != telego.EntityTypeTextMention || e.User == nil {
			continue
		}
		if e.Offset < last || e.Offset+e.Length > len(units) {
			continue
		}
		if e.Offset > last {
			segs = append(segs, segment.Text(string(utf16.Decode(units[last:e.Offset]))))
		}
		segs = append(segs, segment.At(strconv.FormatInt(e.User.ID, 10)))
		last = e.Offset + e.Length
	}
	if last < len(units) {
		segs = append(segs, segment.Text(string(utf16.Decode(units[last:]))))
	}
	return segs
}

func (c *TelegramChannel) SendGroupMessage(ctx context.Context, target string, content []segment.Segment, _ string) error {
	return c.send(ctx, target, content)
}

func (c *TelegramChannel) SendPrivateMessage(ctx context.Context, target string, content []segment.Segment) error {
	return c.send(ctx, strings.TrimPrefix(target, "private:"), content)
}

func (c *TelegramChannel) send(ctx context.Context, target string, content []segment.Segment) error {
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram chat id %q: %w", target, err)
	}
	r := Render(content, nil)
	if r.Empty() {
		return nil
	}
	chat := telego.ChatID{ID: chatID}
	reply := telegramReply(r)

	if r.Text != "" {
		if _, err := c.bot.SendMessage(ctx, &telego.SendMessageParams{
			ChatID:          chat,
			Text:            r.Text,
			ReplyParameters: reply,
		}); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	for _, u := range r.Images {
		if _, err := c.bot.SendPhoto(ctx, &telego.SendPhotoParams{
			ChatID:          chat,
			Photo:           telego.InputFile{URL: u},
			ReplyParameters: reply,
		}); err != nil {
			return fmt.Errorf("send telegram photo: %w", err)
		}
	}
	for _, f := range r.Files {
		if err := c.sendDocument(ctx, chat, f, reply); err != nil {
			return err
		}
	}
	return nil
}

func (c *TelegramChannel) sendDocument(ctx context.Context, chat telego.ChatID, f Attachment, reply *telego.ReplyParameters) error {
	input := telego.InputFile{URL: f.URL}
	if f.Location != "" {
		file, err := os.Open(f.Location)
		if err != nil {
			return fmt.Errorf("open attachment: %w", err)
		}
		defer file.Close()
		input = telego.InputFile{File: file}
	}
	if _, err := c.bot.SendDocument(ctx, &telego.SendDocumentParams{
		ChatID:          chat,
		Document:        input,
		Caption:         f.Name,
		ReplyParameters: reply,
	}); err != nil {
		return fmt.Errorf("send telegram document: %w", err)
	}
	return nil
}

func telegramReply(r Rendered) *telego.ReplyParameters {
	id := r.ReplyTo
	if id == "" {
		id = r.QuoteID
	}
	n, err := strconv.Atoi(id)
	if err != nil || n == 0 {
		return nil
	}
	return &telego.ReplyParameters{MessageID: n, AllowSendingWithoutReply: true}
}
