package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/audiolibrelab/dualcap/internal/service"
)

var recordCmd = &cobra.Command{
	Use:   "record [session-id]",
	Short: "Record system and microphone audio until interrupted",
	Long: `Record system playback and microphone input simultaneously into a
stereo WAV file. Recording runs until Ctrl+C. Without a session id a
timestamp is used, e.g. session_20260830_153000_audio.wav.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var sessionID string
		if len(args) == 1 {
			sessionID = args[0]
		}

		if outputDir, _ := cmd.Flags().GetString("output"); outputDir != "" {
			cfg.Output.Directory = outputDir
		}

		svc := service.New(cfg, prometheus.DefaultRegisterer)
		if err := svc.StartRecording(sessionID); err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}

		slog.Info("Recording... Press Ctrl+C to stop")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		slog.Info("Stopping recording...")
		if err := svc.StopRecording(); err != nil {
			return fmt.Errorf("failed to stop recording: %w", err)
		}
		return nil
	},
}

func init() {
	recordCmd.Flags().StringP("output", "o", "", "output directory (overrides config)")
}
