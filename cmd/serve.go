package cmd

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vibast-solutions/ms-go-credits/app/catalog"
	"github.com/vibast-solutions/ms-go-credits/app/controller"
	"github.com/vibast-solutions/ms-go-credits/app/provider"
	"github.com/vibast-solutions/ms-go-credits/app/repository"
	"github.com/vibast-solutions/ms-go-credits/app/service"
	"github.com/vibast-solutions/ms-go-credits/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the HTTP server handling provider webhooks and balance queries.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, fulfillmentService, cleanup := mustCreateFulfillmentService()
	defer cleanup()

	creditsController := controller.NewCreditsController(fulfillmentService)
	e := setupHTTPServer(creditsController)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}

	logrus.Info("Server stopped")
}

func setupHTTPServer(creditsController *controller.CreditsController) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	e.GET("/health", creditsController.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	webhooks := e.Group("/webhooks/providers")
	webhooks.POST("/:provider", creditsController.HandleProviderWebhook)

	balances := e.Group("/balances")
	balances.GET("/:user_id", creditsController.GetBalance)
	balances.GET("/:user_id/grants", creditsController.ListGrants)

	e.POST("/accounts", creditsController.CreateAccount)

	return e
}

func mustCreateFulfillmentService() (*config.Config, *service.FulfillmentService, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	creditCatalog, err := catalog.New(cfg.Catalog.ProductCredits)
	if err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to build product-credit catalog")
	}

	ledgerRepo := repository.NewLedgerRepository(db)
	balanceRepo := repository.NewBalanceRepository(db)
	grantRepo := repository.NewGrantRepository(db)
	deliveryRepo := repository.NewWebhookDeliveryRepository(db)

	polarProvider := provider.NewPolarProvider(provider.PolarConfig{
		WebhookSecret:             cfg.Polar.WebhookSecret,
		SignatureToleranceSeconds: cfg.Polar.SignatureToleranceSeconds,
	})

	providerRegistry := provider.NewRegistry(polarProvider)
	fulfillmentService := service.NewFulfillmentService(
		ledgerRepo,
		balanceRepo,
		grantRepo,
		deliveryRepo,
		providerRegistry,
		creditCatalog,
		cfg.Jobs,
	)

	cleanup := func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return cfg, fulfillmentService, cleanup
}
