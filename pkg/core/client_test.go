package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tinyland-inc/gsbridge/pkg/gscore"
)

// fakeCore is a websocket server standing in for the core.
type fakeCore struct {
	t        *testing.T
	server   *httptest.Server
	received chan gscore.MessageSend
	conns    chan *websocket.Conn
	paths    chan string
}

func newFakeCore(t *testing.T) *fakeCore {
	t.Helper()
	fc := &fakeCore{
		t:        t,
		received: make(chan gscore.MessageSend, 8),
		conns:    make(chan *websocket.Conn, 8),
		paths:    make(chan string, 8),
	}
	upgrader := websocket.Upgrader{}
	fc.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fc.paths <- r.URL.Path
		fc.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg gscore.MessageSend
			if err := json.Unmarshal(data, &msg); err == nil {
				fc.received <- msg
			}
		}
	}))
	t.Cleanup(fc.server.Close)
	return fc
}

func (fc *fakeCore) url(path string) string {
	return "ws" + strings.TrimPrefix(fc.server.URL, "http") + path
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting")
	}
	var zero T
	return zero
}

func TestClient_SendAndReceive(t *testing.T) {
	fc := newFakeCore(t)
	routed := make(chan gscore.MessageReceive, 4)
	connected := make(chan struct{}, 1)

	c := NewClient(Config{URL: fc.url("/ws/koishi")}, func(msg gscore.MessageReceive) {
		routed <- msg
	}, WithEventHandler(func(ev Event) {
		if ev.Kind == EventConnected {
			connected <- struct{}{}
		}
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Dispose()

	if path := waitFor(t, fc.paths); path != "/ws/koishi" {
		t.Errorf("path = %q", path)
	}
	server := waitFor(t, fc.conns)
	waitFor(t, connected)

	if err := c.Send(gscore.MessageSend{BotID: "discord", MsgID: "m1", Content: []gscore.Element{}}); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if got := waitFor(t, fc.received); got.MsgID != "m1" {
		t.Errorf("core received %+v", got)
	}

	frames := []string{
		`{"bot_id":"koishi","target_id":null,"content":[{"type":"log_INFO","data":"core started"}]}`,
		`not json`,
		`{"bot_id":"discord","bot_self_id":"1","target_type":"group","target_id":"g1","content":[{"type":"text","data":"hi"}]}`,
	}
	for _, f := range frames {
		if err := server.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			t.Fatal(err)
		}
	}

	got := waitFor(t, routed)
	if got.Target() != "g1" {
		t.Errorf("routed target = %q, want g1", got.Target())
	}
	select {
	case extra := <-routed:
		t.Errorf("log or malformed frame was routed: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
	if c.State() != StateConnected {
		t.Errorf("state = %v, want connected after bad frame", c.State())
	}
}

type failingDialer struct {
	dials chan struct{}
}

func (d *failingDialer) DialContext(context.Context, string) (Conn, error) {
	d.dials <- struct{}{}
	return nil, errors.New("connection refused")
}

type manualTimer struct {
	scheduled chan time.Duration
	fire      chan time.Time
}

func newManualTimer() *manualTimer {
	return &manualTimer{scheduled: make(chan time.Duration, 8), fire: make(chan time.Time)}
}

func (m *manualTimer) After(d time.Duration) <-chan time.Time {
	m.scheduled <- d
	return m.fire
}

func TestClient_ReconnectsAfterInterval(t *testing.T) {
	dialer := &failingDialer{dials: make(chan struct{}, 8)}
	timer := newManualTimer()
	interval := 5 * time.Second

	c := NewClient(Config{URL: "ws://core/ws/koishi", ReconnectInterval: interval}, nil,
		WithDialer(dialer), WithAfter(timer.After))
	done := make(chan struct{})
	go func() {
		c.Run(context.Background())
		close(done)
	}()

	for i := 0; i < 3; i++ {
		waitFor(t, dialer.dials)
		if d := waitFor(t, timer.scheduled); d != interval {
			t.Fatalf("retry %d scheduled after %v, want %v", i, d, interval)
		}
		timer.fire <- time.Now()
	}
	waitFor(t, dialer.dials)
	waitFor(t, timer.scheduled)

	c.Dispose()
	waitFor(t, done)

	select {
	case <-dialer.dials:
		t.Error("dial attempted after dispose")
	default:
	}
	if c.Attempts() != 4 {
		t.Errorf("attempts = %d, want 4", c.Attempts())
	}
	if c.State() != StateDisposed {
		t.Errorf("state = %v, want disposed", c.State())
	}
}

type fakeConn struct {
	mu     sync.Mutex
	closed bool
	reads  chan []byte
}

func newFakeConn() *fakeConn { return &fakeConn{reads: make(chan []byte)} }

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	data, ok := <-f.reads
	if !ok {
		return 0, nil, errors.New("use of closed connection")
	}
	return websocket.TextMessage, data, nil
}

func (f *fakeConn) WriteMessage(int, []byte) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.reads)
	}
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type blockingDialer struct {
	started chan struct{}
	release chan struct{}
	conn    *fakeConn
}

func (d *blockingDialer) DialContext(context.Context, string) (Conn, error) {
	close(d.started)
	<-d.release
	return d.conn, nil
}

func TestClient_DisposeDuringDial(t *testing.T) {
	dialer := &blockingDialer{started: make(chan struct{}), release: make(chan struct{}), conn: newFakeConn()}
	timer := newManualTimer()
	c := NewClient(Config{URL: "ws://core"}, nil, WithDialer(dialer), WithAfter(timer.After))

	done := make(chan struct{})
	go func() {
		c.Run(context.Background())
		close(done)
	}()

	waitFor(t, dialer.started)
	c.Dispose()
	close(dialer.release)
	waitFor(t, done)

	if !dialer.conn.isClosed() {
		t.Error("connection opened after dispose was not closed")
	}
	select {
	case <-timer.scheduled:
		t.Error("reconnect scheduled after dispose")
	default:
	}
}

type oneConnDialer struct {
	conns chan *fakeConn
}

func (d *oneConnDialer) DialContext(context.Context, string) (Conn, error) {
	conn := newFakeConn()
	d.conns <- conn
	return conn, nil
}

func TestClient_CloseSchedulesReconnect(t *testing.T) {
	dialer := &oneConnDialer{conns: make(chan *fakeConn, 4)}
	timer := newManualTimer()
	var mu sync.Mutex
	var kinds []EventKind
	c := NewClient(Config{URL: "ws://core", ReconnectInterval: time.Second}, nil,
		WithDialer(dialer), WithAfter(timer.After), WithEventHandler(func(ev Event) {
			mu.Lock()
			kinds = append(kinds, ev.Kind)
			mu.Unlock()
		}))
	done := make(chan struct{})
	go func() {
		c.Run(context.Background())
		close(done)
	}()

	first := waitFor(t, dialer.conns)
	first.Close()
	if d := waitFor(t, timer.scheduled); d != time.Second {
		t.Errorf("scheduled %v, want 1s", d)
	}
	timer.fire <- time.Now()
	waitFor(t, dialer.conns)

	c.Dispose()
	waitFor(t, done)

	mu.Lock()
	defer mu.Unlock()
	want := []EventKind{EventConnected, EventError, EventClosed, EventReconnecting, EventConnected}
	for i, k := range want {
		if i >= len(kinds) || kinds[i] != k {
			t.Fatalf("events = %v, want prefix %v", kinds, want)
		}
	}
}

func TestClient_SendErrors(t *testing.T) {
	c := NewClient(Config{URL: "ws://core"}, nil)
	if err := c.Send(gscore.MessageSend{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() before connect = %v, want ErrNotConnected", err)
	}
	c.Dispose()
	c.Dispose()
	if err := c.Send(gscore.MessageSend{}); !errors.Is(err, ErrDisposed) {
		t.Errorf("Send() after dispose = %v, want ErrDisposed", err)
	}
}

func TestClient_ContextCancelDisposes(t *testing.T) {
	dialer := &failingDialer{dials: make(chan struct{}, 8)}
	timer := newManualTimer()
	c := NewClient(Config{URL: "ws://core"}, nil, WithDialer(dialer), WithAfter(timer.After))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	waitFor(t, dialer.dials)
	cancel()
	waitFor(t, done)
	if c.State() != StateDisposed {
		t.Errorf("state = %v, want disposed", c.State())
	}
}

func TestState_String(t *testing.T) {
	if StateConnected.String() != "connected" || State(42).String() != "state(42)" {
		t.Error("unexpected State strings")
	}
}
