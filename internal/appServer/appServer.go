package appServer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/schatha/stamford-parking-system-sub001/config"
	repository "github.com/schatha/stamford-parking-system-sub001/internal/database/postgres"
	"github.com/schatha/stamford-parking-system-sub001/internal/database/redisStore"
	"github.com/schatha/stamford-parking-system-sub001/internal/pkg/pricing"
	"github.com/schatha/stamford-parking-system-sub001/internal/pkg/restriction"
	"github.com/schatha/stamford-parking-system-sub001/internal/service"
	"github.com/schatha/stamford-parking-system-sub001/internal/transport"
	"github.com/schatha/stamford-parking-system-sub001/internal/worker"
	"github.com/schatha/stamford-parking-system-sub001/pkg/broker"
	"github.com/schatha/stamford-parking-system-sub001/pkg/payment"
	"github.com/schatha/stamford-parking-system-sub001/pkg/postgres"
	"github.com/schatha/stamford-parking-system-sub001/pkg/redis"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 15 * time.Second

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags),
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func NewServer(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	db, err := postgres.NewPostgresDB(&cfg.Database)
	if err != nil {
		logrus.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := postgres.RunMigrations(db); err != nil {
		logrus.Fatalf("Failed to run migrations: %v", err)
	}

	zoneRepo := repository.NewZoneRepository(db)
	vehicleRepo := repository.NewVehicleRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)

	redisClient, err := redis.NewRedisClient(&cfg.Redis)
	if err != nil {
		logrus.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	webhookEvents := redisStore.NewWebhookEventStore(redisClient, cfg.Redis.WebhookEventTTL)

	if cfg.Stripe.SecretKey == "" {
		logrus.Warn("Stripe secret key not provided, payment calls will fail")
	}
	gateway := payment.NewStripeGateway(&cfg.Stripe)

	publisher, err := broker.New(&cfg.Events)
	if err != nil {
		logrus.Errorf("Failed to initialize %s event publisher: %v. Continuing without events...", cfg.Events.Driver, err)
		publisher = broker.NewNoopPublisher()
	}
	defer publisher.Close()
	deadLetters := redisStore.NewEventDeadLetterStore(redisClient, cfg.Events.DeadLetterKey)
	publisher = broker.WithDeadLetter(publisher, deadLetters)

	policy, err := pricingPolicy(&cfg.Pricing)
	if err != nil {
		logrus.Fatalf("Invalid pricing configuration: %v", err)
	}
	calculator := pricing.NewCalculator(policy, pricing.DefaultRateTable())

	location, err := time.LoadLocation(cfg.Restrictions.Timezone)
	if err != nil {
		logrus.Fatalf("Invalid restrictions timezone %q: %v", cfg.Restrictions.Timezone, err)
	}
	evaluator := restriction.NewEvaluator(restriction.Config{
		Location:    location,
		WarningLead: cfg.Restrictions.WarningLead,
		MinGap:      cfg.Restrictions.MinGap,
	})

	zoneService := service.NewZoneService(zoneRepo, calculator, evaluator)
	sessionService := service.NewSessionService(
		sessionRepo,
		zoneRepo,
		vehicleRepo,
		transactionRepo,
		calculator,
		evaluator,
		gateway,
		publisher,
		service.SessionOptions{
			PendingGrace: cfg.Session.PendingGrace,
			ListLimit:    cfg.Session.ListLimit,
		},
	)
	paymentService := service.NewPaymentService(gateway, webhookEvents, sessionService)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweepWorker := worker.NewSessionSweepWorker(sessionService, cfg.Worker.SweepInterval)
	go sweepWorker.Start(ctx)

	if cfg.IsProduction() || cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := transport.InitRoutes(cfg, transport.Handlers{
		Zone:    transport.NewZoneHandler(zoneService),
		Session: transport.NewSessionHandler(sessionService),
		Admin:   transport.NewAdminHandler(sessionService, deadLetters),
		Webhook: transport.NewWebhookHandler(paymentService),
	})

	srv := new(Server)
	go func() {
		if err := srv.Run(cfg, router); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logrus.WithFields(logrus.Fields{
		"address": cfg.GetServerAddress(),
		"version": cfg.Server.AppVersion,
		"events":  cfg.Events.Driver,
	}).Print("App Started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logrus.Print("App Shutting Down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("error occured on server shutting down: %s", err.Error())
	}
}

func pricingPolicy(cfg *config.PricingConfig) (pricing.Policy, error) {
	var (
		policy pricing.Policy
		err    error
	)
	if policy.TaxRate, err = parseAmount("tax_rate", cfg.TaxRate); err != nil {
		return pricing.Policy{}, err
	}
	if policy.FeePercent, err = parseAmount("fee_percent", cfg.FeePercent); err != nil {
		return pricing.Policy{}, err
	}
	if policy.FeeFlat, err = parseAmount("fee_flat", cfg.FeeFlat); err != nil {
		return pricing.Policy{}, err
	}
	if policy.MinChargeableHours, err = parseAmount("min_chargeable_hours", cfg.MinChargeableHours); err != nil {
		return pricing.Policy{}, err
	}
	return policy, nil
}

func parseAmount(name, raw string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pricing.%s: %w", name, err)
	}
	if v.IsNegative() {
		return decimal.Zero, fmt.Errorf("pricing.%s must not be negative", name)
	}
	return v, nil
}
