package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/bryanchriswhite/hopper/internal/candidate"
	"github.com/bryanchriswhite/hopper/internal/desktop"
	"github.com/bryanchriswhite/hopper/internal/search"
	"github.com/bryanchriswhite/hopper/internal/window"
	"github.com/spf13/cobra"
)

var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "List open windows",
	Long: `List the windows reported by the compositor, most recently used first.

This command talks to the compositor directly and does not need a running
daemon, which makes it useful for checking which backend is detected.`,
	Example: `  # List windows in table format (default)
  hopper windows

  # List windows in JSON format
  hopper windows --format json

  # Force a backend
  hopper windows --backend x11`,
	Args: cobra.NoArgs,
	RunE: runWindows,
}

var appsCmd = &cobra.Command{
	Use:   "apps [QUERY]",
	Short: "List installed applications",
	Long: `List the applications found in the desktop entry directories, in the
order the launcher would show them. With a query, only matches are listed,
ranked as the launcher ranks them.

This command reads the directories directly and does not need a running
daemon.`,
	Example: `  # List all applications
  hopper apps

  # Rank applications for a query
  hopper apps fire

  # Show the directories that are scanned
  hopper apps --dirs`,
	Args: cobra.MaximumNArgs(1),
	RunE: runApps,
}

var (
	listFormat  string
	listBackend string
	listDirs    bool
)

func init() {
	rootCmd.AddCommand(windowsCmd)
	rootCmd.AddCommand(appsCmd)

	windowsCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format (table or json)")
	windowsCmd.Flags().StringVar(&listBackend, "backend", "", "compositor backend (default from config)")
	appsCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format (table or json)")
	appsCmd.Flags().BoolVar(&listDirs, "dirs", false, "print the scanned directories instead")
}

func runWindows(cmd *cobra.Command, args []string) error {
	if err := checkFormat(); err != nil {
		return err
	}
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()

	preference := cfg.Backend
	if listBackend != "" {
		preference = listBackend
	}

	ctx := context.Background()
	mgr := window.NewManager(window.Detect(ctx, preference), cfg.Switcher.ListTimeout.Std(), cfg.Switcher.FocusTimeout.Std())
	defer mgr.Close()

	windows, err := mgr.ListWindows(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if listFormat == "json" {
		return writeJSON(out, windows)
	}

	fmt.Fprintf(out, "Backend: %s\n\n", mgr.Name())
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "ID\tTITLE\tAPP\tWORKSPACE\tFOCUSED")
	fmt.Fprintln(w, "--\t-----\t---\t---------\t-------")
	for _, win := range windows {
		focused := "No"
		if win.Focused {
			focused = "Yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", win.ID, truncate(win.Title, 60), win.AppID, win.Workspace, focused)
	}
	return nil
}

func runApps(cmd *cobra.Command, args []string) error {
	if err := checkFormat(); err != nil {
		return err
	}
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()

	index := desktop.NewIndex(desktop.ApplicationDirs(cfg.Desktop.ExtraDirs))
	out := cmd.OutOrStdout()
	if listDirs {
		for _, dir := range index.Dirs() {
			fmt.Fprintln(out, dir)
		}
		return nil
	}

	if _, err := index.Scan(context.Background()); err != nil {
		return err
	}

	store := candidate.NewStore(index, nil, nil, false)
	cands, _ := store.Rebuild(context.Background(), candidate.AppLauncher)

	query := ""
	if len(args) == 1 {
		query = args[0]
	}
	matches := search.Rank(query, cands, candidate.AppLauncher, cfg.Search.MaxResults)

	if listFormat == "json" {
		entries := make([]desktop.Entry, 0, len(matches))
		for _, m := range matches {
			entries = append(entries, *m.Candidate.App)
		}
		return writeJSON(out, entries)
	}
	return printAppsTable(out, matches, query != "")
}

func printAppsTable(out io.Writer, matches []search.Match, withScore bool) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	if withScore {
		fmt.Fprintln(w, "NAME\tID\tSCORE\tEXEC")
		fmt.Fprintln(w, "----\t--\t-----\t----")
	} else {
		fmt.Fprintln(w, "NAME\tID\tEXEC")
		fmt.Fprintln(w, "----\t--\t----")
	}
	for _, m := range matches {
		e := m.Candidate.App
		if withScore {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", e.Name, e.ID, m.Score, truncate(e.Exec, 50))
		} else {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.Name, e.ID, truncate(e.Exec, 50))
		}
	}
	return nil
}

func checkFormat() error {
	if listFormat != "table" && listFormat != "json" {
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", listFormat)
	}
	return nil
}

func writeJSON(out io.Writer, v interface{}) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
