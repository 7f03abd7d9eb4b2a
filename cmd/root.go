package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/audiolibrelab/dualcap/internal/config"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "dualcap",
	Short: "Dual-stream audio recorder for system and microphone audio",
	Long: `DualCap records what the system is playing and what the microphone
hears at the same time, aligned onto a common clock, into a single
stereo WAV file with the microphone on the left channel and the
system mix on the right.

Recordings can be driven from the command line or over the HTTP
control API started with 'dualcap serve'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(verboseLevel)

		// Use the default config path when present; built-in defaults
		// otherwise.
		if cfgFile == "" {
			defaultPath := os.ExpandEnv("$HOME/.config/dualcap.yaml")
			if _, err := os.Stat(defaultPath); err == nil {
				cfgFile = defaultPath
			}
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/dualcap.yaml)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	slog.SetDefault(slog.New(handler))
}
