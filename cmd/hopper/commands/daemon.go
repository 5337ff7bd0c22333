package commands

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/hopper/internal/api"
	"github.com/bryanchriswhite/hopper/internal/candidate"
	"github.com/bryanchriswhite/hopper/internal/daemon"
	"github.com/bryanchriswhite/hopper/internal/desktop"
	"github.com/bryanchriswhite/hopper/internal/history"
	"github.com/bryanchriswhite/hopper/internal/logger"
	"github.com/bryanchriswhite/hopper/internal/notify"
	"github.com/bryanchriswhite/hopper/internal/window"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	Aliases: []string{"serve"},
	Short:   "Start the hopper daemon",
	Long: `Start the hopper daemon in the foreground.

The daemon indexes desktop entries, detects the compositor and listens on a
unix socket for commands from the CLI. Only one daemon may run per socket;
a second one exits with status 2.`,
	Example: `  # Start with defaults
  hopper daemon

  # Force a compositor backend
  hopper daemon --backend kwin

  # Start with debug logging
  hopper daemon --log-level debug`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().String("backend", "", "compositor backend (auto, hyprland, kwin, x11, none)")
	v.BindPFlag("backend", daemonCmd.Flags().Lookup("backend"))
}

func runDaemon(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("main")

	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	log.Info().Str("config", configMgr.GetConfigPath()).Str("version", version).Msg("Starting hopper")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Take the socket first so a second daemon fails before doing any work
	ln, err := api.Listen(cfg.ResolvedSocketPath())
	if err != nil {
		return err
	}
	defer ln.Close()

	index := desktop.NewIndex(desktop.ApplicationDirs(cfg.Desktop.ExtraDirs))
	entries, err := index.Scan(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Initial desktop entry scan incomplete")
	}
	log.Debug().Int("entries", len(entries)).Strs("dirs", index.Dirs()).Msg("Application directories scanned")

	backend := window.Detect(ctx, cfg.Backend)
	windows := window.NewManager(backend, cfg.Switcher.ListTimeout.Std(), cfg.Switcher.FocusTimeout.Std())
	defer windows.Close()

	var (
		weights  candidate.WeightSource
		recorder daemon.Recorder
	)
	if cfg.Frequency.Enabled {
		h := history.Open(cfg.ResolvedFrequencyPath())
		weights, recorder = h, h
	}

	notifier := notify.New(cfg.Notifications)
	if closer, ok := notifier.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	d := daemon.New(daemon.Deps{
		Store:      candidate.NewStore(index, windows, weights, cfg.Switcher.ExcludeFocused),
		Index:      index,
		Windows:    windows,
		Launcher:   desktop.NewExecLauncher(cfg.ResolvedTerminal()),
		History:    recorder,
		Notifier:   notifier,
		Backend:    windows.Name(),
		MaxResults: cfg.Search.MaxResults,
	})

	if cfg.Desktop.Watch {
		watcher, err := desktop.NewWatcher(index.Dirs(), cfg.Desktop.Debounce.Std(), d.RequestRescan)
		if err != nil {
			log.Warn().Err(err).Msg("Desktop entry watching disabled")
		} else {
			defer watcher.Close()
			go watcher.Run(ctx)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	server := api.NewServer(d, version)

	var wg conc.WaitGroup
	var serveErr error
	wg.Go(func() {
		serveErr = server.Serve(runCtx, ln)
	})

	log.Info().Str("socket", cfg.ResolvedSocketPath()).Str("backend", windows.Name()).Msg("hopper is running")

	runErr := d.Run(runCtx)
	cancel()
	wg.Wait()

	log.Info().Msg("Shut down")
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return serveErr
}
