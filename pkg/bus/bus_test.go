package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tinyland-inc/gsbridge/pkg/segment"
)

func TestMessageBus_RoundTrip(t *testing.T) {
	mb := NewMessageBus(1)
	defer mb.Close()
	ctx := context.Background()

	in := InboundMessage{Channel: "discord", ChatID: "c1", Elements: []segment.Segment{segment.Text("hi")}}
	if err := mb.PublishInbound(ctx, in); err != nil {
		t.Fatalf("PublishInbound() error: %v", err)
	}
	got, ok := mb.ConsumeInbound(ctx)
	if !ok || got.ChatID != "c1" {
		t.Errorf("ConsumeInbound() = %+v, %v", got, ok)
	}

	out := OutboundMessage{Channel: "discord", ChatID: "c1"}
	if err := mb.PublishOutbound(ctx, out); err != nil {
		t.Fatalf("PublishOutbound() error: %v", err)
	}
	if got, ok := mb.SubscribeOutbound(ctx); !ok || got.ChatID != "c1" {
		t.Errorf("SubscribeOutbound() = %+v, %v", got, ok)
	}
}

func TestMessageBus_Closed(t *testing.T) {
	mb := NewMessageBus(0)
	mb.Close()
	mb.Close()

	if err := mb.PublishInbound(context.Background(), InboundMessage{}); !errors.Is(err, ErrBusClosed) {
		t.Errorf("PublishInbound() error = %v, want ErrBusClosed", err)
	}
	if err := mb.PublishOutbound(context.Background(), OutboundMessage{}); !errors.Is(err, ErrBusClosed) {
		t.Errorf("PublishOutbound() error = %v, want ErrBusClosed", err)
	}
	if _, ok := mb.ConsumeInbound(context.Background()); ok {
		t.Error("ConsumeInbound() on closed bus returned ok")
	}
}

func TestMessageBus_ContextCancel(t *testing.T) {
	mb := NewMessageBus(1)
	defer mb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := mb.PublishOutbound(ctx, OutboundMessage{}); err != nil {
		t.Fatal(err)
	}
	// Buffer is full; the second publish waits for the deadline.
	if err := mb.PublishOutbound(ctx, OutboundMessage{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded", err)
	}
}

func TestInboundMessage_IsPrivate(t *testing.T) {
	tests := []struct {
		name string
		msg  InboundMessage
		want bool
	}{
		{"direct peer", InboundMessage{Peer: Peer{Kind: PeerDirect}}, true},
		{"private subtype", InboundMessage{Subtype: "private"}, true},
		{"private chat id", InboundMessage{ChatID: "private:42"}, true},
		{"group", InboundMessage{Peer: Peer{Kind: PeerGroup}, ChatID: "g1", Subtype: "group"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.IsPrivate(); got != tt.want {
				t.Errorf("IsPrivate() = %v, want %v", got, tt.want)
			}
		})
	}
}
