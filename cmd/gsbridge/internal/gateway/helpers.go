package gateway

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tinyland-inc/gsbridge/cmd/gsbridge/internal"
	"github.com/tinyland-inc/gsbridge/pkg/bridge"
	"github.com/tinyland-inc/gsbridge/pkg/bus"
	"github.com/tinyland-inc/gsbridge/pkg/channels"
	"github.com/tinyland-inc/gsbridge/pkg/health"
	"github.com/tinyland-inc/gsbridge/pkg/logger"
)

// Options selects how the gateway runs.
type Options struct {
	Debug bool
	// Console adds an interactive terminal channel.
	Console bool
}

// Run starts the bridge with every enabled channel and blocks until
// interrupted.
func Run(opts Options) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if opts.Debug {
		cfg.Render.Dev = true
	}
	if cfg.Render.Dev {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}

	store, closeStore := internal.OpenAuthority(cfg)
	defer closeStore()

	msgBus := bus.NewMessageBus(0)
	defer msgBus.Close()

	channelManager, err := channels.NewManager(cfg, msgBus)
	if err != nil {
		return fmt.Errorf("error creating channel manager: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if opts.Console {
		channelManager.Register(channels.NewConsoleChannel(msgBus, channels.WithExitHandler(cancel)))
	}
	if len(channelManager.GetEnabledChannels()) == 0 {
		fmt.Println("⚠ No channels enabled, core replies have nowhere to go")
	}

	b, err := bridge.New(cfg, msgBus, channelManager, store)
	if err != nil {
		return fmt.Errorf("error creating bridge: %w", err)
	}

	if err := channelManager.StartAll(ctx); err != nil {
		fmt.Printf("Error starting channels: %v\n", err)
	}

	healthServer := health.NewServer(cfg.Gateway.Host, cfg.Gateway.Port,
		health.WithReadyCheck(b.IsReady),
		health.WithAssets(b.Assets()),
	)
	if err := healthServer.Start(); err != nil {
		fmt.Printf("Warning: HTTP server failed to start: %v\n", err)
	} else {
		fmt.Printf("✓ Health endpoints available at http://%s:%d/health and /ready\n", cfg.Gateway.Host, cfg.Gateway.Port)
	}

	b.Start(ctx)
	fmt.Printf("✓ Connecting to core at %s\n", cfg.Core.WebSocketURL())

	<-ctx.Done()

	fmt.Println("\nShutting down...")
	b.Stop()
	healthServer.Stop(context.Background())
	channelManager.StopAll(context.Background())
	fmt.Println("✓ Gateway stopped")

	return nil
}
