package api

import (
	"github.com/flexprice/ebilling/internal/api/cron"
	v1 "github.com/flexprice/ebilling/internal/api/v1"
	"github.com/flexprice/ebilling/internal/config"
	"github.com/flexprice/ebilling/internal/logger"
	"github.com/flexprice/ebilling/internal/metrics"
	"github.com/flexprice/ebilling/internal/rbac"
	"github.com/flexprice/ebilling/internal/rest/middleware"
	"github.com/flexprice/ebilling/internal/sentry"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Health      *v1.HealthHandler
	Integration *v1.IntegrationHandler
	Document    *v1.DocumentHandler
	Usage       *v1.UsageHandler
	Alert       *v1.AlertHandler
	Audit       *v1.AuditHandler

	CronDocument *cron.DocumentHandler
}

func NewRouter(
	handlers Handlers,
	cfg *config.Configuration,
	logger *logger.Logger,
	rbacService *rbac.RBACService,
	sentryService *sentry.Service,
	m *metrics.Metrics,
) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware,
		middleware.CORSMiddleware(cfg),
		middleware.SentryMiddleware(cfg),
		m.Middleware(),
		middleware.ErrorHandler(sentryService, logger),
	)

	router.GET("/health", handlers.Health.Health)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	perm := middleware.NewPermissionMiddleware(rbacService, logger)

	v1Group := router.Group("/v1")

	private := v1Group.Group("/")
	private.Use(middleware.AuthenticateMiddleware(cfg, logger))

	matias := private.Group("/matias")
	{
		matias.GET("/config", perm.RequirePermission(rbac.EntityIntegration, rbac.ActionRead), handlers.Integration.GetConfig)
		matias.POST("/config", perm.RequirePermission(rbac.EntityIntegration, rbac.ActionWrite), handlers.Integration.SaveConfig)
		matias.POST("/test-connection", perm.RequirePermission(rbac.EntityIntegration, rbac.ActionTest), handlers.Integration.TestConnection)
		matias.POST("/test-connection/platform", perm.RequirePermission(rbac.EntityIntegration, rbac.ActionTest), handlers.Integration.TestPlatformConnection)
		matias.GET("/status", perm.RequirePermission(rbac.EntityIntegration, rbac.ActionRead), handlers.Integration.GetStatus)
		matias.GET("/documents/last", perm.RequirePermission(rbac.EntityIntegration, rbac.ActionRead), handlers.Integration.GetLastDocument)
	}

	ebilling := private.Group("/ebilling")
	{
		documents := ebilling.Group("/documents")
		documents.GET("", perm.RequirePermission(rbac.EntityDocument, rbac.ActionRead), handlers.Document.ListDocuments)
		documents.POST("", perm.RequirePermission(rbac.EntityDocument, rbac.ActionSubmit), handlers.Document.CreateDocument)
		documents.GET("/:id", perm.RequirePermission(rbac.EntityDocument, rbac.ActionRead), handlers.Document.GetDocument)
		documents.POST("/:id/submit", perm.RequirePermission(rbac.EntityDocument, rbac.ActionSubmit), handlers.Document.SubmitDocument)
		documents.POST("/:id/retry", perm.RequirePermission(rbac.EntityDocument, rbac.ActionRetry), handlers.Document.RetryDocument)
		documents.GET("/:id/pdf", perm.RequirePermission(rbac.EntityDocument, rbac.ActionDownload), handlers.Document.DownloadPDF)
		documents.GET("/:id/attached", perm.RequirePermission(rbac.EntityDocument, rbac.ActionDownload), handlers.Document.DownloadAttached)

		packages := ebilling.Group("/packages")
		packages.GET("", perm.RequirePermission(rbac.EntityPackage, rbac.ActionRead), handlers.Usage.ListPackages)
		packages.POST("", perm.RequirePermission(rbac.EntityPackage, rbac.ActionWrite), handlers.Usage.CreatePackage)
		packages.GET("/:id", perm.RequirePermission(rbac.EntityPackage, rbac.ActionRead), handlers.Usage.GetPackage)

		alerts := ebilling.Group("/alerts")
		alerts.GET("", perm.RequirePermission(rbac.EntityAlert, rbac.ActionRead), handlers.Alert.ListAlerts)
		alerts.POST("/:id/acknowledge", perm.RequirePermission(rbac.EntityAlert, rbac.ActionWrite), handlers.Alert.AcknowledgeAlert)

		ebilling.GET("/audit-logs", perm.RequirePermission(rbac.EntityAudit, rbac.ActionRead), handlers.Audit.ListAuditLogs)
	}

	tenants := private.Group("/tenants/:id/ebilling")
	{
		tenants.POST("/subscription/assign", perm.RequirePermission(rbac.EntitySubscription, rbac.ActionWrite), handlers.Usage.AssignPackage)
		tenants.GET("/usage", perm.RequirePermission(rbac.EntitySubscription, rbac.ActionRead), handlers.Usage.GetUsage)
		tenants.POST("/credits", perm.RequirePermission(rbac.EntityCredit, rbac.ActionWrite), handlers.Usage.ApplyCredit)
		tenants.GET("/credits", perm.RequirePermission(rbac.EntityCredit, rbac.ActionRead), handlers.Usage.ListCredits)
	}

	// scheduler endpoints authenticate with the cron key, not an operator token
	cronGroup := v1Group.Group("/cron")
	cronGroup.Use(middleware.CronAuthMiddleware(cfg, logger))
	{
		docs := cronGroup.Group("/ebilling/documents")
		docs.POST("/reconcile", handlers.CronDocument.ReconcileDocuments)
		docs.POST("/resubmit", handlers.CronDocument.ResubmitDocuments)
	}

	return router
}
