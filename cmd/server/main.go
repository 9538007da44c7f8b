package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/flexprice/ebilling/internal/api"
	"github.com/flexprice/ebilling/internal/api/cron"
	v1 "github.com/flexprice/ebilling/internal/api/v1"
	"github.com/flexprice/ebilling/internal/cache"
	"github.com/flexprice/ebilling/internal/config"
	"github.com/flexprice/ebilling/internal/integration/matias"
	"github.com/flexprice/ebilling/internal/logger"
	"github.com/flexprice/ebilling/internal/metrics"
	"github.com/flexprice/ebilling/internal/postgres"
	"github.com/flexprice/ebilling/internal/publisher"
	"github.com/flexprice/ebilling/internal/pubsub"
	"github.com/flexprice/ebilling/internal/pubsub/kafka"
	"github.com/flexprice/ebilling/internal/pubsub/memory"
	"github.com/flexprice/ebilling/internal/rbac"
	"github.com/flexprice/ebilling/internal/repository"
	"github.com/flexprice/ebilling/internal/s3"
	"github.com/flexprice/ebilling/internal/security"
	"github.com/flexprice/ebilling/internal/sentry"
	"github.com/flexprice/ebilling/internal/service"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/flexprice/ebilling/internal/validator"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			// Validator
			validator.NewValidator,

			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Monitoring
			sentry.NewSentryService,
			metrics.New,

			// Cache
			cache.Initialize,

			// Postgres
			postgres.NewDB,
			provideDBClient,

			// Credential vault
			security.NewEncryptionService,

			// Artifact archive
			s3.NewService,

			// Event Publisher
			providePubSub,
			publisher.NewEventPublisher,

			// Access control
			rbac.NewRBACService,

			// Repositories
			repository.NewIntegrationConfigRepository,
			repository.NewDocumentRepository,
			repository.NewDocumentFileRepository,
			repository.NewPackageRepository,
			repository.NewSubscriptionRepository,
			repository.NewUsageRepository,
			repository.NewCreditRepository,
			repository.NewAlertRepository,
			repository.NewAuditRepository,

			// Provider clients
			matias.NewFactory,
		),
	)

	// Service layer
	opts = append(opts,
		fx.Provide(
			service.NewServiceParams,

			service.NewAuditService,
			service.NewAlertService,
			service.NewUsageService,
			service.NewDocumentService,
			service.NewIntegrationService,
		),
	)

	// API
	opts = append(opts,
		fx.Provide(
			provideHandlers,
			api.NewRouter,
		),
		fx.Invoke(
			sentry.RegisterHooks,
			startServer,
		),
	)

	app := fx.New(opts...)
	app.Run()
}

func provideDBClient(db *postgres.DB) postgres.IClient {
	return db
}

func providePubSub(cfg *config.Configuration, log *logger.Logger) (pubsub.PubSub, error) {
	switch cfg.Events.PubSub {
	case types.KafkaPubSub:
		return kafka.NewPubSub(cfg, log)
	default:
		return memory.NewPubSub(log), nil
	}
}

func provideHandlers(
	logger *logger.Logger,
	db *postgres.DB,
	integrationService service.IntegrationService,
	documentService service.DocumentService,
	usageService service.UsageService,
	alertService service.AlertService,
	auditService service.AuditService,
) api.Handlers {
	return api.Handlers{
		Health:       v1.NewHealthHandler(db, logger),
		Integration:  v1.NewIntegrationHandler(integrationService, logger),
		Document:     v1.NewDocumentHandler(documentService, logger),
		Usage:        v1.NewUsageHandler(usageService, logger),
		Alert:        v1.NewAlertHandler(alertService, logger),
		Audit:        v1.NewAuditHandler(auditService, logger),
		CronDocument: cron.NewDocumentHandler(documentService, logger),
	}
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	db *postgres.DB,
	ps pubsub.PubSub,
	eventPublisher publisher.EventPublisher,
	log *logger.Logger,
) {
	mode := cfg.Deployment.Mode
	if mode == "" {
		mode = types.ModeLocal
	}

	switch mode {
	case types.ModeLocal:
		startAPIServer(lc, r, cfg, log)
		startEventLogger(lc, ps, cfg, log)
	case types.ModeAPI:
		startAPIServer(lc, r, cfg, log)
	default:
		log.Fatalf("Unknown deployment mode: %s", mode)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := eventPublisher.Close(); err != nil {
				log.Errorw("failed to close event publisher", "error", err)
			}
			db.Close()
			return nil
		},
	})
}

func startAPIServer(
	lc fx.Lifecycle,
	r *gin.Engine,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting API server", "address", cfg.Server.Address)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down server")
			return srv.Shutdown(ctx)
		},
	})
}

// startEventLogger tails the event topic so local runs show what was published
func startEventLogger(
	lc fx.Lifecycle,
	ps pubsub.PubSub,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			messages, err := ps.Subscribe(ctx, cfg.Events.Topic)
			if err != nil {
				return err
			}
			go func() {
				for msg := range messages {
					log.Debugw("event published",
						"message_id", msg.UUID,
						"tenant_id", msg.Metadata.Get("tenant_id"),
						"payload", string(msg.Payload),
					)
					msg.Ack()
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
