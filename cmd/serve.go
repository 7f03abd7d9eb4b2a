package cmd

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/audiolibrelab/dualcap/internal/server"
	"github.com/audiolibrelab/dualcap/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP control and status server",
	Long: `Start the HTTP API for controlling recordings remotely:

  POST /record/start   start a session ({"session_id": "..."} optional)
  POST /record/stop    stop the active session
  GET  /status         session state, position and levels
  GET  /devices        available capture devices
  GET  /healthz        liveness probe
  GET  /metrics        Prometheus metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Server.Port = port
		}

		svc := service.New(cfg, prometheus.DefaultRegisterer)
		srv := server.New(svc, cfg)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "listen port (overrides config)")
}
