package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"igstories/pkg/server"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the engine over HTTP",
	Long: `Serve the story engine over HTTP.

Routes:
  GET  /api/captcha                      issue a challenge
  POST /api/captcha/verify               answer it and clear rate limit escalation
  GET  /api/stories/:handle[?refresh=1]  resolve active stories
  GET  /api/stories/:handle/:id/download download one story
  GET  /healthz                          liveness
  GET  /metrics                          Prometheus metrics

Story routes are rate limited per client IP.`,
	Example: `  igstories serve --addr :9000`,
	Args:    cobra.NoArgs,
	RunE:    runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
}

func runServe(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(cfg, log)
	if err != nil {
		return err
	}
	eng.start()

	srv := server.New(cfg.Server, eng.orch, eng.downloadLimiter, eng.captcha, log)
	srv.OnShutdown(eng.stop)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printer.Logo()
	printer.Success("Listening on %s", cfg.Server.Addr)
	return srv.Run(ctx)
}
