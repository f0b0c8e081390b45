package console

import (
	"github.com/spf13/cobra"

	"github.com/tinyland-inc/gsbridge/cmd/gsbridge/internal/gateway"
)

func NewConsoleCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Talk to the core from an interactive terminal",
		Long: `Runs the gateway with an extra console channel. Lines typed at the prompt
are sent to the core as private messages from the console owner, and replies
are printed back. Type exit or press Ctrl+C to quit.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return gateway.Run(gateway.Options{Debug: debug, Console: true})
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}
