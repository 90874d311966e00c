package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-credits/app/service"
	"github.com/vibast-solutions/ms-go-credits/config"
)

var (
	workerMode bool
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Surface rejected provider deliveries for operator review",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"rejected_sweep",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.SweepInterval },
			func(s *service.FulfillmentService, ctx context.Context) error {
				return s.RunRejectedSweepBatch(ctx)
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(s *service.FulfillmentService, ctx context.Context) error,
) {
	cfg, fulfillmentService, cleanup := mustCreateFulfillmentService()
	defer cleanup()

	if workerMode {
		runWorker(name, intervalResolver(cfg), fulfillmentService, fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(fulfillmentService, ctx) })
}

func runWorker(
	name string,
	interval time.Duration,
	fulfillmentService *service.FulfillmentService,
	fn func(s *service.FulfillmentService, ctx context.Context) error,
) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runJob(name, func() error { return fn(fulfillmentService, ctx) })

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(fulfillmentService, ctx) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}
