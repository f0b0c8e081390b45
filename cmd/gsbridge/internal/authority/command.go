package authority

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/gsbridge/cmd/gsbridge/internal"
	"github.com/tinyland-inc/gsbridge/pkg/authority"
)

func NewAuthorityCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "authority",
		Short: "Manage user authority levels",
		Long: `Authority levels decide the permission a user is reported with. A level of
4 or more maps to permission 6 minus the level, so higher authority means a
lower, more privileged permission number.`,
		Example: `  gsbridge authority set discord 123456789 5
  gsbridge authority get discord 123456789
  gsbridge authority list
  gsbridge authority delete discord 123456789`,
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "",
		"Authority database path (default: authority.db_path from config)")

	open := func() (*authority.SQLiteStore, error) {
		path := dbPath
		if path == "" {
			cfg, err := internal.LoadConfig()
			if err != nil {
				return nil, fmt.Errorf("error loading config: %w", err)
			}
			path = cfg.AuthorityDBPath()
		}
		return authority.OpenSQLite(path)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <platform> <user_id>",
			Short: "Show a user's authority level",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := open()
				if err != nil {
					return err
				}
				defer store.Close()
				return getCmd(cmd, store, args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "set <platform> <user_id> <level>",
			Short: "Set a user's authority level",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				level, err := strconv.Atoi(args[2])
				if err != nil || level < 0 {
					return fmt.Errorf("invalid level %q", args[2])
				}
				store, err := open()
				if err != nil {
					return err
				}
				defer store.Close()
				if err := store.Set(cmd.Context(), args[0], args[1], level); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %s:%s authority set to %d\n", args[0], args[1], level)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <platform> <user_id>",
			Short: "Remove a user's authority level",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := open()
				if err != nil {
					return err
				}
				defer store.Close()
				if err := store.Delete(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %s:%s removed\n", args[0], args[1])
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List every stored authority level",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				store, err := open()
				if err != nil {
					return err
				}
				defer store.Close()
				records, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				printRecords(cmd.OutOrStdout(), records)
				return nil
			},
		},
	)

	return cmd
}

func getCmd(cmd *cobra.Command, store authority.Store, platform, userID string) error {
	level, ok, err := store.Authority(cmd.Context(), platform, userID)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(cmd.OutOrStdout(), "%s:%s has no authority set\n", platform, userID)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s:%s authority %d\n", platform, userID, level)
	return nil
}

func printRecords(w io.Writer, records []authority.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No authority levels stored.")
		return
	}
	for _, r := range records {
		fmt.Fprintf(w, "  %s:%s  %d\n", r.Platform, r.UserID, r.Authority)
	}
}
