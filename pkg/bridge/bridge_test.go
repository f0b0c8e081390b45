package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/gsbridge/pkg/bus"
	"github.com/tinyland-inc/gsbridge/pkg/config"
	"github.com/tinyland-inc/gsbridge/pkg/correlation"
	"github.com/tinyland-inc/gsbridge/pkg/gscore"
	"github.com/tinyland-inc/gsbridge/pkg/segment"
)

type fakeBots map[string]bool

func (f fakeBots) HasBot(platform, selfID string) bool { return f[platform+":"+selfID] }

type sendRecorder struct {
	mu   sync.Mutex
	sent []gscore.MessageSend
	err  error
}

func (r *sendRecorder) Send(msg gscore.MessageSend) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Assets.ImageDir = t.TempDir()
	cfg.Assets.FileDir = t.TempDir()
	cfg.Core.ReconnectIntervalMS = 50
	return cfg
}

func newTestBridge(t *testing.T, cfg *config.Config) (*Bridge, *bus.MessageBus, *sendRecorder) {
	t.Helper()
	mb := bus.NewMessageBus(8)
	t.Cleanup(mb.Close)
	b, err := New(cfg, mb, fakeBots{"discord:bot": true}, nil)
	require.NoError(t, err)
	t.Cleanup(b.Stop)
	rec := &sendRecorder{}
	b.send = rec.Send
	return b, mb, rec
}

func groupMessage(id string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:   "discord",
		SelfID:    "bot",
		SenderID:  "u1",
		ChatID:    "c1",
		GuildID:   "g1",
		MessageID: id,
		Peer:      bus.Peer{Kind: bus.PeerChannel, ID: "c1"},
		Subtype:   "group",
		Elements:  []segment.Segment{segment.Text("/gs help")},
	}
}

func consumeOutbound(t *testing.T, mb *bus.MessageBus) bus.OutboundMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, ok := mb.SubscribeOutbound(ctx)
	require.True(t, ok, "timed out waiting for outbound message")
	return msg
}

func TestBridge_HandleMessageRegistersCorrelation(t *testing.T) {
	b, mb, rec := newTestBridge(t, testConfig(t))

	require.NoError(t, b.HandleMessage(context.Background(), groupMessage("m1")))

	require.Len(t, rec.sent, 1)
	frame := rec.sent[0]
	assert.Equal(t, "discord", frame.BotID)
	assert.Equal(t, "m1", frame.MsgID)
	assert.Equal(t, "c1", frame.GroupID)
	assert.True(t, b.State().Registry.Has("m1"))
	id, ok := b.State().LastIDs.Get("c1")
	require.True(t, ok)
	assert.Equal(t, "m1", id)

	// The reply targets a different conversation but is correlated by id.
	target := "elsewhere"
	b.onEnvelope(gscore.MessageReceive{
		BotID:      "discord",
		BotSelfID:  "bot",
		MsgID:      "m1",
		TargetType: gscore.KindGroup,
		TargetID:   &target,
		Content:    []gscore.Element{gscore.NewElement(gscore.ElementText, "ok")},
	})

	out := consumeOutbound(t, mb)
	assert.Equal(t, "c1", out.ChatID)
	assert.Equal(t, bus.PeerGroup, out.Peer.Kind)
	require.Len(t, out.Content, 2)
	assert.Equal(t, segment.TypePassive, out.Content[0].Type)
	assert.Equal(t, "m1", out.Content[0].Attr("messageId"))
	assert.Equal(t, "ok", segment.PlainText(out.Content))
	assert.False(t, b.State().Registry.Has("m1"))
}

func TestBridge_HandleMessageDirectKey(t *testing.T) {
	b, _, rec := newTestBridge(t, testConfig(t))

	msg := bus.InboundMessage{
		Channel:    "discord",
		SelfID:     "bot",
		SenderID:   "u7",
		ChatID:     "private:u7",
		MessageID:  "d1",
		Peer:       bus.Peer{Kind: bus.PeerDirect, ID: "u7"},
		Subtype:    "private",
		SubSubtype: "private",
		Elements:   []segment.Segment{segment.Text("hi")},
	}
	require.NoError(t, b.HandleMessage(context.Background(), msg))

	require.Len(t, rec.sent, 1)
	assert.Empty(t, rec.sent[0].GroupID)
	assert.Equal(t, gscore.KindDirect, rec.sent[0].UserType)
	id, ok := b.State().LastIDs.Get("u7")
	require.True(t, ok)
	assert.Equal(t, "d1", id)
}

func TestBridge_HandleMessageSendError(t *testing.T) {
	b, _, rec := newTestBridge(t, testConfig(t))
	rec.err = errors.New("socket gone")

	err := b.HandleMessage(context.Background(), groupMessage("m2"))
	require.Error(t, err)
	assert.False(t, b.State().Registry.Has("m2"))
	_, ok := b.State().LastIDs.Get("c1")
	assert.False(t, ok)
}

func TestBridge_LastMessageIDFallback(t *testing.T) {
	cfg := testConfig(t)
	cfg.Render.UseLastMessageID = true
	b, mb, _ := newTestBridge(t, cfg)

	require.NoError(t, b.HandleMessage(context.Background(), groupMessage("m3")))

	target := "c1"
	b.onEnvelope(gscore.MessageReceive{
		BotID:      "discord",
		BotSelfID:  "bot",
		TargetType: gscore.KindGroup,
		TargetID:   &target,
		Content:    []gscore.Element{gscore.NewElement(gscore.ElementText, "later")},
	})

	out := consumeOutbound(t, mb)
	require.NotEmpty(t, out.Content)
	assert.Equal(t, "m3", out.Content[0].Attr("messageId"))
}

func TestBridge_UnknownBotIsDropped(t *testing.T) {
	b, mb, _ := newTestBridge(t, testConfig(t))

	target := "c1"
	b.onEnvelope(gscore.MessageReceive{
		BotID:      "telegram",
		BotSelfID:  "other",
		TargetType: gscore.KindGroup,
		TargetID:   &target,
		Content:    []gscore.Element{gscore.NewElement(gscore.ElementText, "x")},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, ok := mb.SubscribeOutbound(ctx)
	assert.False(t, ok)
}

func TestReplyTo(t *testing.T) {
	content := []segment.Segment{segment.Text("x")}

	direct := ReplyTo(correlation.Ref{Channel: "slack", SelfID: "B", UserID: "U1", ChatID: "private:U1", Direct: true}, content)
	assert.Equal(t, bus.PeerDirect, direct.Peer.Kind)
	assert.Equal(t, "U1", direct.ChatID)
	assert.Empty(t, direct.ReplyRoot)

	group := ReplyTo(correlation.Ref{Channel: "slack", SelfID: "B", UserID: "U1", ChatID: "C1"}, content)
	assert.Equal(t, bus.PeerGroup, group.Peer.Kind)
	assert.Equal(t, "C1", group.ChatID)
	assert.Equal(t, "C1", group.ReplyRoot)
	assert.Equal(t, content, group.Content)
}

func TestNew_InvalidCleanupSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Assets.CleanupSchedule = "not a cron"
	_, err := New(cfg, bus.NewMessageBus(1), nil, nil)
	assert.Error(t, err)
}

// TestBridge_EndToEnd runs the bridge against a websocket server standing in
// for the core.
func TestBridge_EndToEnd(t *testing.T) {
	received := make(chan gscore.MessageSend, 4)
	conns := make(chan *websocket.Conn, 4)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg gscore.MessageSend
			if json.Unmarshal(data, &msg) == nil {
				received <- msg
			}
		}
	}))
	defer server.Close()

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.Core.Host = u.Hostname()
	cfg.Core.Port = port

	mb := bus.NewMessageBus(8)
	defer mb.Close()
	b, err := New(cfg, mb, fakeBots{"discord:bot": true}, nil)
	require.NoError(t, err)

	b.Start(context.Background())
	defer b.Stop()

	var conn *websocket.Conn
	select {
	case conn = <-conns:
	case <-time.After(2 * time.Second):
		t.Fatal("bridge never connected")
	}
	assert.Eventually(t, b.IsReady, time.Second, 10*time.Millisecond)

	require.NoError(t, mb.PublishInbound(context.Background(), groupMessage("e1")))

	var frame gscore.MessageSend
	select {
	case frame = <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("core never received the frame")
	}
	assert.Equal(t, "e1", frame.MsgID)
	assert.Equal(t, "bot", frame.BotSelfID)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"bot_id":"discord","bot_self_id":"bot","content":[{"type":"log_INFO","data":"ignored"}]}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"bot_id":"discord","bot_self_id":"bot","msg_id":"e1","target_type":"group","target_id":"c1","content":[{"type":"text","data":"pong"}]}`)))

	out := consumeOutbound(t, mb)
	assert.Equal(t, "discord", out.Channel)
	assert.Equal(t, "c1", out.ChatID)
	assert.Equal(t, "pong", segment.PlainText(out.Content))

	b.Stop()
	b.Stop()
	assert.False(t, b.IsReady())
}
