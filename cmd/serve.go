package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"docscan/internal/logger"
	"docscan/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scan session HTTP API",
	Long: `Serve scan sessions over HTTP. Uploads are scanned in the background;
clients poll GET /v1/scans/{id} for progress and the result.

Configuration:
  SERVER_HOST, SERVER_PORT                         - listen address (default 0.0.0.0:8080)
  SERVER_RATE_LIMIT_RPS, SERVER_RATE_LIMIT_BURST   - per-client token bucket`,
	Example: `  docscan serve
  SERVER_PORT=9000 docscan serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (overrides SERVER_HOST and SERVER_PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")
	cfg := loadConfig(log)

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.Addr()
	}

	orchestrator, closeBackends := createOrchestrator(cfg, log)
	defer closeBackends()

	serverConfig := server.DefaultConfig()
	serverConfig.RateLimitRPS = cfg.ServerRateLimitRPS
	serverConfig.RateLimitBurst = cfg.ServerRateLimitBurst

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.New(orchestrator, serverConfig).ListenAndServe(ctx, addr)
}
