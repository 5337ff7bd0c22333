package commands

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/bryanchriswhite/hopper/internal/daemon"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon state",
	Long: `Show whether the launcher is visible, the active mode and query, and the
current results. Exits with status 3 when the daemon is not running.`,
	Example: `  # Human readable summary
  hopper status

  # Full state as JSON
  hopper status --format json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var statusFormat string

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusFormat, "format", "f", "table", "output format (table or json)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if statusFormat != "table" && statusFormat != "json" {
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", statusFormat)
	}
	snap, err := sendStatus()
	if err != nil {
		return err
	}
	return printSnapshot(cmd.OutOrStdout(), snap, statusFormat)
}

func printSnapshot(out io.Writer, snap daemon.Snapshot, format string) error {
	if format == "json" {
		return writeJSON(out, snap)
	}

	visible := "hidden"
	if snap.Visible {
		visible = color.GreenString("visible")
	}
	fmt.Fprintf(out, "State:    %s\n", visible)
	fmt.Fprintf(out, "Mode:     %s\n", snap.Mode)
	fmt.Fprintf(out, "Backend:  %s\n", snap.Backend)
	if snap.Query != "" {
		fmt.Fprintf(out, "Query:    %q\n", snap.Query)
	}
	if snap.Loading {
		fmt.Fprintln(out, "Loading:  yes")
	}
	if snap.Notice != "" {
		fmt.Fprintf(out, "Notice:   %s\n", color.YellowString(snap.Notice))
	}
	if len(snap.Results) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "\tNAME\tDESCRIPTION\tSCORE\tID")
	for i, r := range snap.Results {
		marker := " "
		if i == snap.Selected {
			marker = ">"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", marker, r.Name, r.Description, r.Score, r.ID)
	}
	return nil
}
