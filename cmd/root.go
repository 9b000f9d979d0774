// Package cmd defines and implements the CLI commands for the chromecrawl
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/openclaw/chromecrawl/internal/config"
	"github.com/openclaw/chromecrawl/internal/logging"
)

// cli holds the services shared by all subcommands, built once in the root
// command's PersistentPreRunE.
type cli struct {
	viper  *viper.Viper
	cfg    config.Config
	logger *zap.Logger

	cfgFile string
	verbose bool
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	c := &cli{viper: viper.New()}

	cmd := &cobra.Command{
		Use:   "chromecrawl",
		Short: "Batch article crawler driven through a local Chrome debugging session",
		Long: `chromecrawl walks a list of article URLs through an already-running
Chrome instance exposed over its remote debugging port, extracts each page's
content to disk, and keeps a resumable manifest so interrupted sessions pick
up exactly where they left off.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default ./chromecrawl.yaml or $HOME/.chromecrawl/)")
	cmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newCrawlCmd(c))
	cmd.AddCommand(newStatsCmd(c))
	cmd.AddCommand(newRetryCmd(c))

	return cmd
}

// setup loads configuration and builds the logger. Flag overrides are
// applied by each subcommand before reading c.cfg fields.
func (c *cli) setup(cmd *cobra.Command) error {
	if err := config.Init(c.viper, c.cfgFile, nil); err != nil {
		return err
	}
	if c.verbose {
		c.viper.Set("log.verbose", true)
	}
	applyFlagOverrides(cmd, c.viper)

	cfg, err := config.Load(c.viper)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c.cfg = cfg

	logger, err := logging.NewWithFile(cfg.Verbose, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	c.logger = logger
	return nil
}

// Execute is the main entry point. It installs signal-driven cancellation so
// an interrupted session still saves its ledger before exiting.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
