// pedropost rotates through a list of post ideas, turns each one into post
// text and an illustration with a generative model, and publishes the result
// to X on a fixed interval.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/soypete/pedropost/pkg/config"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	ideasFile  string
	verbose    bool

	// Root command flags
	once        bool
	interval    time.Duration
	metricsAddr string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pedropost",
		Short: "Post generated content from a rotating list of ideas",
		Long: `pedropost picks the next idea from the ideas file, asks the model for
post text and an image prompt, renders the image and publishes both to X.

Without --once it repeats forever, pausing for the configured interval after
every successful post. Any failure stops the bot with a non-zero exit.

Examples:
  # Publish a single post and exit
  pedropost --once

  # Post every 90 minutes using a custom ideas file
  pedropost --ideas ./ideas.json --interval 90m`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          runBot,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (default: .pedropost.{json,yaml} in . or $HOME)")
	rootCmd.PersistentFlags().StringVar(&ideasFile, "ideas", "", "Path to the ideas file (overrides IDEAS_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.Flags().BoolVar(&once, "once", false, "Run a single cycle and exit")
	rootCmd.Flags().DurationVar(&interval, "interval", 0, "Pause between successful posts (overrides POST_INTERVAL)")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")

	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

// loadConfig reads the config file (or the default locations) and applies
// the command line overrides.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configFile != "" {
		cfg, err = config.Load(configFile)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}

	if ideasFile != "" {
		cfg.Ideas.File = ideasFile
	}
	if interval > 0 {
		cfg.SetInterval(interval)
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	if verbose {
		cfg.Debug.LogLevel = "debug"
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("Shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
