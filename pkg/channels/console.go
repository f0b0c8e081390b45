package channels

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"github.com/tinyland-inc/gsbridge/pkg/bus"
	"github.com/tinyland-inc/gsbridge/pkg/segment"
)

const (
	consoleSelfID = "console"
	consoleUserID = "console-user"
)

// ConsoleChannel is a local terminal conversation, useful for talking to
// the core without a chat platform.
type ConsoleChannel struct {
	*BaseChannel
	out    io.Writer
	outMu  sync.Mutex
	rl     *readline.Instance
	done   chan struct{}
	onExit func()
}

type ConsoleOption func(*ConsoleChannel)

// WithConsoleOutput writes replies to w instead of the terminal.
func WithConsoleOutput(w io.Writer) ConsoleOption {
	return func(c *ConsoleChannel) { c.out = w }
}

// WithExitHandler is called when the user quits the prompt.
func WithExitHandler(fn func()) ConsoleOption {
	return func(c *ConsoleChannel) { c.onExit = fn }
}

func NewConsoleChannel(msgBus *bus.MessageBus, opts ...ConsoleOption) *ConsoleChannel {
	c := &ConsoleChannel{
		BaseChannel: NewBaseChannel("console", msgBus, nil, WithSelfID(consoleSelfID)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ConsoleChannel) Start(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".gsbridge_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	c.rl = rl
	if c.out == nil {
		c.out = rl.Stdout()
	}
	c.done = make(chan struct{})
	c.SetRunning(true)

	go c.readLoop(ctx)
	return nil
}

func (c *ConsoleChannel) readLoop(ctx context.Context) {
	defer close(c.done)
	for {
		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				c.exit()
				return
			}
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			c.exit()
			return
		}
		c.Submit(ctx, input)
	}
}

func (c *ConsoleChannel) exit() {
	if c.onExit != nil {
		c.onExit()
	}
}

func (c *ConsoleChannel) Stop(context.Context) error {
	if !c.IsRunning() {
		return nil
	}
	c.SetRunning(false)
	err := c.rl.Close()
	<-c.done
	return err
}

// Submit sends one line to the core as the console user.
func (c *ConsoleChannel) Submit(ctx context.Context, line string) {
	c.HandleMessage(ctx, consoleUserID, consoleInbound(line))
}

func consoleInbound(line string) bus.InboundMessage {
	return bus.InboundMessage{
		SenderID:   consoleUserID,
		ChatID:     "private:" + consoleUserID,
		MessageID:  uuid.NewString(),
		Peer:       bus.Peer{Kind: bus.PeerDirect, ID: consoleUserID},
		Subtype:    "private",
		SubSubtype: "private",
		Roles:      []string{"owner"},
		Elements:   []segment.Segment{segment.Text(line)},
	}
}

func (c *ConsoleChannel) SendGroupMessage(_ context.Context, _ string, content []segment.Segment, _ string) error {
	return c.print(content)
}

func (c *ConsoleChannel) SendPrivateMessage(_ context.Context, _ string, content []segment.Segment) error {
	return c.print(content)
}

func (c *ConsoleChannel) print(content []segment.Segment) error {
	out := c.out
	if out == nil {
		out = os.Stdout
	}
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, err := io.WriteString(out, FormatConsole(Render(content, nil)))
	return err
}

// FormatConsole renders r as terminal text.
func FormatConsole(r Rendered) string {
	var b strings.Builder
	if r.Text != "" {
		b.WriteString(r.Text)
		b.WriteString("\n")
	}
	for _, u := range r.Images {
		fmt.Fprintf(&b, "[image] %s\n", u)
	}
	for _, f := range r.Files {
		where := f.Location
		if where == "" {
			where = f.URL
		}
		fmt.Fprintf(&b, "[file] %s %s\n", f.Name, where)
	}
	return b.String()
}
