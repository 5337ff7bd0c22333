package commands

import (
	"context"
	"strconv"

	"github.com/bryanchriswhite/hopper/internal/api"
	"github.com/bryanchriswhite/hopper/internal/candidate"
	"github.com/bryanchriswhite/hopper/internal/daemon"
	herrors "github.com/bryanchriswhite/hopper/internal/errors"
	"github.com/spf13/cobra"
)

var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Show or hide the launcher",
	Long: `Show the launcher in the mode it was last opened in, or hide it if it
is already visible. Bind this to a key in your compositor.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return send(cmd, api.Request{Command: api.CmdToggle})
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the launcher",
	Example: `  # Open the application launcher
  hopper show

  # Open the window switcher
  hopper show --mode windows`,
	Args: cobra.NoArgs,
	RunE: runShow,
}

var hideCmd = &cobra.Command{
	Use:   "hide",
	Short: "Hide the launcher",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return send(cmd, api.Request{Command: api.CmdHide})
	},
}

var quitCmd = &cobra.Command{
	Use:   "quit",
	Short: "Stop the daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return send(cmd, api.Request{Command: api.CmdQuit})
	},
}

var rescanCmd = &cobra.Command{
	Use:   "rescan",
	Short: "Re-read installed applications",
	Long: `Ask the daemon to re-read desktop entries. The daemon also does this on
its own when the applications directories change, unless desktop.watch is
disabled.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return send(cmd, api.Request{Command: api.CmdRescan})
	},
}

// The rendering layer normally drives these over the stream; they are
// exposed for scripting and debugging.

var queryCmd = &cobra.Command{
	Use:    "query TEXT",
	Short:  "Set the search query",
	Hidden: true,
	Args:   cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := ""
		if len(args) == 1 {
			text = args[0]
		}
		return send(cmd, api.Request{Command: api.CmdQuery, Text: text})
	},
}

var selectCmd = &cobra.Command{
	Use:    "select DELTA",
	Short:  "Move the selection",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		delta, err := strconv.Atoi(args[0])
		if err != nil {
			return herrors.Newf(herrors.ErrCodeInvalidCommand, "invalid delta %q", args[0])
		}
		return send(cmd, api.Request{Command: api.CmdSelect, Delta: delta})
	},
}

var activateCmd = &cobra.Command{
	Use:    "activate",
	Short:  "Launch or focus the selected result",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return send(cmd, api.Request{Command: api.CmdActivate})
	},
}

var (
	showMode   string
	printState bool
)

func init() {
	for _, c := range []*cobra.Command{toggleCmd, showCmd, hideCmd, quitCmd, rescanCmd, queryCmd, selectCmd, activateCmd} {
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{toggleCmd, showCmd, queryCmd, selectCmd, activateCmd} {
		c.Flags().BoolVarP(&printState, "print", "p", false, "print the resulting state")
	}

	showCmd.Flags().StringVarP(&showMode, "mode", "m", "apps", "mode to open (apps or windows)")
}

func runShow(cmd *cobra.Command, args []string) error {
	if _, err := candidate.ParseMode(showMode); err != nil {
		return herrors.Wrap(err, herrors.ErrCodeInvalidCommand, "invalid --mode")
	}
	return send(cmd, api.Request{Command: api.CmdShow, Mode: showMode})
}

// send delivers one command to the daemon, optionally printing the state
func send(cmd *cobra.Command, req api.Request) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	snap, err := client.Send(context.Background(), req)
	if err != nil {
		return err
	}
	if printState {
		return printSnapshot(cmd.OutOrStdout(), snap, "table")
	}
	return nil
}

// sendStatus fetches the state without changing it
func sendStatus() (daemon.Snapshot, error) {
	client, err := newClient()
	if err != nil {
		return daemon.Snapshot{}, err
	}
	return client.Send(context.Background(), api.Request{Command: api.CmdStatus})
}
