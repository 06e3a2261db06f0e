package cli

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	metricsListen   string
	metricsInterval time.Duration
)

// metricsCmd groups Prometheus commands
var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Expose pipeline metrics",
}

var metricsServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve Prometheus metrics and run periodic health checks",
	Long: `Serve exposes /metrics and runs the pipeline health checks on an interval,
keeping the queue depth and disambiguation backlog gauges current.

Example:
  rollcall metrics serve --listen :9464 --interval 1m`,
	Args: cobra.NoArgs,
	RunE: runMetricsServe,
}

func init() {
	rootCmd.AddCommand(metricsCmd)
	metricsCmd.AddCommand(metricsServeCmd)

	metricsServeCmd.Flags().StringVar(&metricsListen, "listen", "", "listen address (default: metrics.listen)")
	metricsServeCmd.Flags().DurationVar(&metricsInterval, "interval", time.Minute, "health check interval")
}

func runMetricsServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	listen := metricsListen
	if listen == "" {
		listen = a.cfg.Metrics.Listen
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serveUntilDone(ctx, srv) })
	g.Go(func() error {
		ticker := time.NewTicker(metricsInterval)
		defer ticker.Stop()
		for {
			report, err := a.health.Check(ctx)
			if err != nil && ctx.Err() == nil {
				a.logger.Warn("Health check failed", "error", err)
			} else if len(report.Raised) > 0 {
				a.logger.Warn("Pipeline alerts raised", "count", len(report.Raised))
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	a.logger.Info("Serving metrics", "listen", listen, "interval", metricsInterval)
	return g.Wait()
}
