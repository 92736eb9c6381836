package main

import (
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"potatoauth/internal/config"
	"potatoauth/internal/handlers"
	"potatoauth/internal/mail"
	"potatoauth/internal/metrics"
	"potatoauth/internal/repositories"
	"potatoauth/internal/services"
	"potatoauth/pkg/rabbitmq"
)

func main() {
	// --- Configuration ---
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// --- Database ---
	db, err := repositories.OpenDatabase(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	// --- Metrics ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry)

	// --- Mail ---
	notifier, closer, err := setupMail(cfg, m)
	if err != nil {
		log.Fatalf("Failed to set up mail transport: %v", err)
	}
	defer closer.Close()

	// --- Fiber App ---
	app, err := setupApp(cfg, db, notifier, m, registry, logger.New())
	if err != nil {
		log.Fatalf("Failed to set up application: %v", err)
	}

	log.Printf("Starting server on port %s", cfg.AppPort)

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(cfg.AppPort); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Printf("Error during Fiber shutdown: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	log.Println("Server gracefully stopped")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// setupMail builds the notifier for the configured transport. In queue mode the
// returned notifier publishes to RabbitMQ and an in-process worker delivers over SMTP.
func setupMail(cfg *config.Config, m *metrics.Metrics) (services.Notifier, io.Closer, error) {
	sender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		TLS:      cfg.SMTPTLS,
	})
	if err != nil {
		return nil, nil, err
	}
	direct := mail.NewDirectNotifier(mail.NewRenderer(), sender, m)
	if cfg.MailTransport == config.MailTransportSMTP {
		return direct, nopCloser{}, nil
	}

	mqClient, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL, Queues: []string{cfg.EmailQueue}})
	if err != nil {
		return nil, nil, err
	}
	log.Println("Starting RabbitMQ consumer for emails...")
	if err := mail.NewWorker(direct).Start(mqClient, cfg.EmailQueue); err != nil {
		mqClient.Close()
		return nil, nil, err
	}
	return mail.NewQueueNotifier(mqClient, cfg.EmailQueue), mqClient, nil
}

// setupApp wires repositories, services and handlers into a Fiber app with /metrics.
func setupApp(cfg *config.Config, db *gorm.DB, notifier services.Notifier, m *metrics.Metrics, gatherer prometheus.Gatherer, middlewares ...fiber.Handler) (*fiber.App, error) {
	issuer := services.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	authService, err := services.NewAuthService(
		repositories.NewGORMUserRepository(db),
		repositories.NewGORMTokenRepository(db),
		issuer,
		notifier,
		services.Config{ResetTokenTTL: cfg.ResetTokenTTL, BaseURL: cfg.BaseURL},
	)
	if err != nil {
		return nil, err
	}
	authService.WithMetrics(m)

	app := handlers.NewApp(handlers.NewAuthHandler(authService), cfg.APIPrefix, middlewares...)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return app, nil
}
