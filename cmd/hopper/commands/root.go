package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/hopper/internal/api"
	"github.com/bryanchriswhite/hopper/internal/config"
	herrors "github.com/bryanchriswhite/hopper/internal/errors"
	"github.com/bryanchriswhite/hopper/internal/logger"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time with -ldflags "-X .../commands.version=..."
var version = "dev"

var (
	cfgFile string
	v       = viper.New()
	rootCmd = &cobra.Command{
		Use:   "hopper",
		Short: "hopper - application launcher and window switcher",
		Long: `hopper is a keyboard-driven application launcher and window switcher
for Linux desktops.

A long-running daemon indexes installed applications, talks to the
compositor and answers commands sent by this CLI over a unix socket.
Bind "hopper toggle" and "hopper show --mode windows" to keys in your
compositor to use it.

Supported compositors:
  • Hyprland (IPC socket)
  • KDE Plasma / KWin (D-Bus)
  • X11 window managers implementing EWMH`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initLogging,
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/hopper/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("socket", "", "daemon socket path")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "force human readable console logs")

	// Bind flags to viper
	v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	v.BindPFlag("socket_path", rootCmd.PersistentFlags().Lookup("socket"))
}

// loadConfig reads the config file with flag and environment overrides applied
func loadConfig() (*config.Manager, error) {
	mgr, err := config.NewManager(cfgFile, v)
	if err != nil {
		return nil, herrors.Wrap(err, herrors.ErrCodeConfigInvalid, "failed to load config")
	}
	return mgr, nil
}

func initLogging(cmd *cobra.Command, args []string) error {
	mgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := mgr.Get()

	pretty, _ := cmd.Flags().GetBool("log-pretty")
	opts := logger.Options{Level: cfg.LogLevel, Pretty: pretty}
	// only the daemon writes to the log file
	if cmd.Name() == "daemon" {
		opts.File = cfg.LogFile
	}
	return logger.Init(opts)
}

// newClient returns a client for the configured daemon socket
func newClient() (*api.Client, error) {
	mgr, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg := mgr.Get()
	return api.NewClient(cfg.ResolvedSocketPath(), cfg.Client.DialTimeout.Std(), cfg.Client.Timeout.Std()), nil
}

// Execute runs the root command and exits with a status that tells
// scripts whether the daemon was already running or not running at all
func Execute() {
	err := rootCmd.Execute()
	logger.Close()
	if err != nil {
		red := color.New(color.FgRed, color.Bold)
		red.Fprint(os.Stderr, "Error: ")
		fmt.Fprintln(os.Stderr, herrors.Message(err))
		if code := herrors.GetCode(err); code != "" {
			color.New(color.Faint).Fprintf(os.Stderr, "(%s)\n", code)
		}
		os.Exit(herrors.ExitCode(err))
	}
}
