package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/coach-pulse/internal/httpapi"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the admin HTTP API",
	Long: `Serve the admin HTTP API:

  GET /admin/attention             RED/AMBER/GREEN attention queue
  GET /admin/overview              cached insights and platform counters
  GET /admin/trends/:metric        trend series (?window=7d|14d|30d|90d)
  GET /healthz                     liveness

The server shuts down gracefully on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Attention == nil || Insights == nil || Trends == nil {
			return fmt.Errorf("engine services not initialized")
		}

		addr := serveAddr
		if addr == "" {
			addr = ServerAddr
		}
		if addr == "" {
			addr = ":8080"
		}

		gin.SetMode(gin.ReleaseMode)
		srv := httpapi.NewServer(Attention, Insights, Trends)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Fprintf(cmd.OutOrStdout(), "Serving admin API on %s\n", addr)
		return srv.ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (defaults to server.addr from .pulseconfig)")
	rootCmd.AddCommand(serveCmd)
}
