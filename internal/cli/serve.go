package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ppiankov/alma/internal/api"
	"github.com/ppiankov/alma/internal/logger"
	"github.com/ppiankov/alma/internal/scheduler"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin API and, when enabled, the scheduler",
	Long: `Serve exposes the queue, processing and merge operations over HTTP:

  GET    /queue           list links with status and type counts
  POST   /queue           enqueue links
  PATCH  /queue           approve, reject, reset or re-pend links
  POST   /process         run one batch, or one link by id
  POST   /merge           run the merge job (409 if one is running)
  GET    /status          queue health and recent activity
  GET    /interventions   list knowledge base records
  GET    /health, /metrics`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "listen address (overrides server.address)")
	serveCmd.Flags().Bool("schedule", false, "run the cron scheduler (overrides scheduler.enabled)")
	_ = viper.BindPFlag("server.address", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("scheduler.enabled", serveCmd.Flags().Lookup("schedule"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Scheduler.Enabled {
		sched, err := scheduler.New(a.cfg.Scheduler, a.cfg.Pipeline.BatchSize, a.processor, a.merger, a.log)
		if err != nil {
			return err
		}
		sched.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := sched.Stop(stopCtx); err != nil {
				a.log.Warn("Scheduler did not stop cleanly", logger.Error(err))
			}
		}()
	}

	h := api.NewHandler(a.queue(), a.processor, a.merger, a.store, a.metrics)
	return api.NewServer(a.cfg.Server, h, a.log).Run(ctx)
}
