package status

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/gsbridge/cmd/gsbridge/internal"
	"github.com/tinyland-inc/gsbridge/pkg/config"
)

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Aliases: []string{"s"},
		Short:   "Show resolved configuration",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := internal.GetConfigPath()
			cfg, err := internal.LoadConfig()
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			printStatus(cmd.OutOrStdout(), path, cfg)
			return nil
		},
	}
}

func printStatus(w io.Writer, path string, cfg *config.Config) {
	fmt.Fprintf(w, "%s gsbridge Status\n", internal.Logo)
	fmt.Fprintf(w, "Version: %s\n\n", internal.FormatVersion())

	if _, err := os.Stat(path); err == nil {
		fmt.Fprintln(w, "Config:", path, "✓")
	} else {
		fmt.Fprintln(w, "Config:", path, "✗ (using defaults)")
	}

	fmt.Fprintln(w, "\nCore:")
	fmt.Fprintf(w, "  WebSocket: %s\n", cfg.Core.WebSocketURL())
	fmt.Fprintf(w, "  Web console: %s\n", cfg.Core.HTTPURL())
	fmt.Fprintf(w, "  Reconnect interval: %s\n", cfg.Core.ReconnectInterval())
	fmt.Fprintf(w, "  Reply window: %s\n", cfg.Core.ReplyTimeout())

	fmt.Fprintln(w, "\nRendering:")
	fmt.Fprintf(w, "  figure_support: %v\n", cfg.Render.FigureSupport)
	fmt.Fprintf(w, "  img_type: %s\n", cfg.Render.ImgType)
	fmt.Fprintf(w, "  passive: %v\n", cfg.Render.Passive)
	fmt.Fprintf(w, "  use_last_message_id: %v\n", cfg.Render.UseLastMessageID)
	fmt.Fprintf(w, "  public_url: %s\n", cfg.Render.PublicURL)

	fmt.Fprintln(w, "\nChannels:")
	fmt.Fprintf(w, "  Discord: %s\n", enabled(cfg.Channels.Discord.Enabled))
	fmt.Fprintf(w, "  Telegram: %s\n", enabled(cfg.Channels.Telegram.Enabled))
	fmt.Fprintf(w, "  Slack: %s\n", enabled(cfg.Channels.Slack.Enabled))

	fmt.Fprintln(w, "\nAuthority:")
	fmt.Fprintf(w, "  Database: %s\n", cfg.AuthorityDBPath())
	fmt.Fprintf(w, "  Static users: %d\n", len(cfg.Authority.Users))
}

func enabled(on bool) string {
	if on {
		return "✓"
	}
	return "not enabled"
}
