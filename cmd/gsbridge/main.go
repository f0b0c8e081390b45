// gsbridge - connects chat platforms to a gsuid-core server
// Based on PicoClaw: https://github.com/sipeed/picoclaw
// License: MIT
//
// Copyright (c) 2026 gsbridge contributors

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/gsbridge/cmd/gsbridge/internal"
	"github.com/tinyland-inc/gsbridge/cmd/gsbridge/internal/authority"
	"github.com/tinyland-inc/gsbridge/cmd/gsbridge/internal/console"
	"github.com/tinyland-inc/gsbridge/cmd/gsbridge/internal/gateway"
	"github.com/tinyland-inc/gsbridge/cmd/gsbridge/internal/status"
	"github.com/tinyland-inc/gsbridge/cmd/gsbridge/internal/version"
)

func NewGsbridgeCommand() *cobra.Command {
	short := fmt.Sprintf("%s gsbridge - chat bridge for gsuid-core v%s\n\n", internal.Logo, internal.GetVersion())

	var configPath string
	cmd := &cobra.Command{
		Use:     "gsbridge",
		Short:   short,
		Example: "gsbridge gateway",
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if configPath != "" {
				internal.SetConfigPath(configPath)
			}
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Config file path (default: ~/.gsbridge/config.json)")

	cmd.AddCommand(
		gateway.NewGatewayCommand(),
		console.NewConsoleCommand(),
		status.NewStatusCommand(),
		authority.NewAuthorityCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewGsbridgeCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
