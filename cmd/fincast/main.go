package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/kvasir-media/fincast/internal/autoplay"
	"github.com/kvasir-media/fincast/internal/bridge"
	"github.com/kvasir-media/fincast/internal/bridge/mpv"
	"github.com/kvasir-media/fincast/internal/config"
	"github.com/kvasir-media/fincast/internal/jellyfin"
	"github.com/kvasir-media/fincast/internal/pip"
	"github.com/kvasir-media/fincast/internal/playback"
	"github.com/kvasir-media/fincast/internal/remote"
	"github.com/kvasir-media/fincast/internal/report"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	cfgFile   string
	logLevel  string
	debugMode bool

	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fincast",
	Short: "Jellyfin desktop playback client",
	Long: `fincast plays video from a Jellyfin server through mpv.

It resumes where you left off, reports watch progress back to the server,
auto-plays the next episode, and can be remote-controlled from other
Jellyfin clients.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "init" && cmd.Parent() != nil && cmd.Parent().Name() == "config" {
			return nil
		}

		if err := config.InitializeDirs(); err != nil {
			return fmt.Errorf("initialize directories: %w", err)
		}

		loaded, viperInst, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded

		if debugMode {
			cfg.Logging.Level = "debug"
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		logger, err = config.InitLogger(&cfg.Logging)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}

		// Log level follows edits to the config file without a restart.
		config.Watch(viperInst, func(fresh *config.Config) {
			config.SetLogLevel(fresh.Logging.Level)
			logger.Info("configuration reloaded", "log_level", fresh.Logging.Level)
		})

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/fincast/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging and verbose mpv output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(playCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fincast version %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := cfgFile
		if configPath == "" {
			configPath = filepath.Join(config.GetConfigDir(), "config.yaml")
		}
		if err := config.SaveDefaultConfig(configPath); err != nil {
			return err
		}
		fmt.Printf("Default configuration written to %s\n", configPath)
		fmt.Println("Set server.url, server.token and server.user_id before playing.")
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Server:         %s\n", cfg.Server.URL)
		fmt.Printf("User:           %s\n", cfg.Server.UserID)
		fmt.Printf("Device name:    %s\n", cfg.Server.DeviceName)
		fmt.Printf("Autoplay:       %v\n", cfg.Playback.Autoplay)
		fmt.Printf("Remote control: %v\n", cfg.Playback.RemoteControl)
		fmt.Printf("Log level:      %s\n", cfg.Logging.Level)
		fmt.Printf("Log file:       %s\n", cfg.Logging.File)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Display configuration file path",
	Run: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			fmt.Println(cfgFile)
			return
		}
		fmt.Println(filepath.Join(config.GetConfigDir(), "config.yaml"))
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the server library",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newServerClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		query := args[0]
		items, err := client.Search(ctx, query, 50)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		ranked := rankItems(query, items)
		if len(ranked) == 0 {
			fmt.Println("No results.")
			return nil
		}

		for _, item := range ranked {
			line := fmt.Sprintf("%s  %s (%s)", item.ID, item.Name, item.Type)
			if item.UserData != nil && item.UserData.LastPlayedDate != nil {
				line += fmt.Sprintf("  watched %s", humanize.Time(*item.UserData.LastPlayedDate))
			}
			fmt.Println(line)
		}
		return nil
	},
}

var playCmd = &cobra.Command{
	Use:   "play [item-id]",
	Short: "Play an item from the server",
	Long: `Play an item by its server id, or find one with --query.

Playback resumes from the saved position unless the item is effectively
finished, in which case it restarts from the beginning.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query, _ := cmd.Flags().GetString("query")
		if len(args) == 0 && query == "" {
			return errors.New("pass an item id or --query")
		}

		client, err := newServerClient()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var itemID string
		if len(args) > 0 {
			itemID = args[0]
		} else {
			itemID, err = resolveQuery(ctx, client, query)
			if err != nil {
				return err
			}
		}

		item, err := client.Item(ctx, itemID)
		if err != nil {
			return fmt.Errorf("fetch item: %w", err)
		}

		return runPlayback(ctx, stop, client, item)
	},
}

func init() {
	playCmd.Flags().String("query", "", "search the library and play the best match")
}

// newServerClient validates the server settings and builds the API client.
func newServerClient() (*jellyfin.Client, error) {
	if cfg.Server.URL == "" || cfg.Server.Token == "" || cfg.Server.UserID == "" {
		return nil, errors.New("server.url, server.token and server.user_id must be set; run 'fincast config init'")
	}
	deviceID, err := config.DeviceID()
	if err != nil {
		return nil, err
	}
	return jellyfin.NewClient(jellyfin.ClientConfig{
		BaseURL:    cfg.Server.URL,
		Token:      cfg.Server.Token,
		UserID:     cfg.Server.UserID,
		DeviceID:   deviceID,
		DeviceName: cfg.Server.DeviceName,
		Version:    version,
	}, logger), nil
}

// rankItems orders search results by fuzzy match quality against the query.
// Items the matcher rejects entirely keep their server order at the end.
func rankItems(query string, items []jellyfin.Item) []jellyfin.Item {
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.Name
	}
	matches := fuzzy.Find(query, names)

	seen := make(map[int]bool, len(matches))
	ranked := make([]jellyfin.Item, 0, len(items))
	for _, m := range matches {
		ranked = append(ranked, items[m.Index])
		seen[m.Index] = true
	}
	for i, item := range items {
		if !seen[i] {
			ranked = append(ranked, item)
		}
	}
	return ranked
}

func resolveQuery(ctx context.Context, client *jellyfin.Client, query string) (string, error) {
	items, err := client.Search(ctx, query, 20)
	if err != nil {
		return "", fmt.Errorf("search: %w", err)
	}
	ranked := rankItems(query, items)
	if len(ranked) == 0 {
		return "", fmt.Errorf("nothing found for %q", query)
	}
	best := ranked[0]
	logger.Info("query resolved", "query", query, "item", best.Name, "id", best.ID)
	return best.ID, nil
}

// controlsProxy breaks the construction cycle between the pip coordinator
// and the controller: pip needs pause control, the controller needs the pip
// window for teardown.
type controlsProxy struct {
	ctrl *playback.Controller
}

func (p *controlsProxy) TogglePause(ctx context.Context) error {
	if p.ctrl == nil {
		return nil
	}
	return p.ctrl.TogglePause(ctx)
}

// runPlayback wires the whole session together and blocks until playback
// finishes or the process is signalled.
func runPlayback(ctx context.Context, stop context.CancelFunc, client *jellyfin.Client, item *jellyfin.Item) error {
	player, err := mpv.New(mpv.Options{
		LoadUserConfig: cfg.Player.LoadUserConfig,
		Fullscreen:     cfg.Player.Fullscreen,
		Debug:          debugMode,
		ExtraArgs:      cfg.Player.ExtraArgs,
	}, logger)
	if err != nil {
		return err
	}
	if err := player.Start(ctx); err != nil {
		return err
	}
	defer player.Close()

	store := playback.NewStore()
	reporter := report.NewReporter(client, logger)

	proxy := &controlsProxy{}
	pipCoord := pip.NewCoordinator(player, proxy, logger)
	pipCoord.Attach(store)
	defer pipCoord.Close()

	var controller *playback.Controller
	var coordinator *autoplay.Coordinator

	coordinator = autoplay.NewCoordinator(logger, func(next *jellyfin.Item) {
		go func() {
			logger.Info("advancing to next episode", "item", next.Name, "id", next.ID)
			if err := loadItem(ctx, controller, client, coordinator, next); err != nil {
				logger.Error("autoplay load failed", "error", err)
				stop()
			}
		}()
	})

	controller = playback.NewController(playback.ControllerConfig{
		Bridge:      player,
		Store:       store,
		Reporter:    reporter,
		Catalog:     client,
		Pip:         pipCoord,
		Logger:      logger,
		LoadTimeout: time.Duration(cfg.Playback.LoadTimeoutSeconds) * time.Second,
		OnError: func(err error) {
			logger.Error("playback error", "error", err)
			stop()
		},
		OnEnded: func(reason int) {
			coordinator.HandleEndOfFile(reason)
			if reason != bridge.EOFNatural {
				stop()
				return
			}
			// Give autoplay a moment to start the next load; if nothing
			// did, the session is over.
			time.AfterFunc(time.Second, func() {
				phase := controller.Phase()
				if phase == playback.PhaseEnded || phase == playback.PhaseIdle {
					stop()
				}
			})
		},
	})
	proxy.ctrl = controller

	storeSub := store.Subscribe(func(s playback.State) {
		coordinator.Observe(s)
	})
	defer storeSub.Cancel()

	if cfg.Playback.RemoteControl {
		session := remote.New(client, controller, logger)
		defer session.Close()
		go func() {
			if err := session.Run(ctx); err != nil {
				logger.Warn("remote control session ended", "error", err)
			}
		}()
	}

	if err := loadItem(ctx, controller, client, coordinator, item); err != nil {
		return err
	}

	<-ctx.Done()
	controller.Unload(context.Background())
	return nil
}

// loadItem starts playback of an item and, for episodes, resolves the next
// episode in the background so the autoplay prompt has something to offer.
func loadItem(ctx context.Context, controller *playback.Controller, client *jellyfin.Client, coordinator *autoplay.Coordinator, item *jellyfin.Item) error {
	if err := controller.Load(ctx, item); err != nil {
		return fmt.Errorf("load %s: %w", item.ID, err)
	}
	coordinator.SetItem(item)

	if cfg.Playback.Autoplay && item.IsEpisode() {
		go func() {
			next, err := client.NextUp(ctx, item.SeriesID, item.ID)
			if err != nil {
				logger.Warn("next-up lookup failed", "item", item.ID, "error", err)
				coordinator.SetNextUp(item.ID, nil)
				return
			}
			coordinator.SetNextUp(item.ID, next)
		}()
	}
	return nil
}
