// Package cli implements the topiccache command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/topiccache/internal/config"
)

var (
	cfgFile string
	verbose bool
)

// version is set at build time with -ldflags "-X ...cli.version=v1.2.3".
var version = "0.1.0-dev"

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "topiccache",
	Short: "A discovery topic index for publish/subscribe middleware",
	Long: `topiccache tracks which participants publish or subscribe to which
topics and types, and answers endpoint count queries over HTTP.

Participants announce and withdraw endpoints over a WebSocket at
/api/realtime; counts and snapshots are served under /api.

Start the server:
  topiccache serve

Count publishers of a topic on a running server:
  topiccache count /chatter`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := config.DefaultLogLevel
		if verbose {
			level = "debug"
		}
		setupLogging(os.Stderr, config.LoggingConfig{Level: level, Format: config.DefaultLogFormat})
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./topiccache.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// setupLogging installs the global zerolog logger for cfg. --verbose always
// wins over the configured level.
func setupLogging(out io.Writer, cfg config.LoggingConfig) {
	var output io.Writer = zerolog.ConsoleWriter{Out: out}
	if cfg.Format == "json" {
		output = out
	}

	applyLogLevel(cfg.Level)

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
}

func applyLogLevel(level string) {
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}

	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

func loadConfig() (*config.Config, error) {
	return config.Load(config.LoadOptions{ConfigFile: cfgFile})
}

// Version returns the version string.
func Version() string {
	return fmt.Sprintf("topiccache version %s", version)
}
