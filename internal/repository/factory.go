package repository

import (
	"github.com/flexprice/ebilling/internal/domain/alert"
	"github.com/flexprice/ebilling/internal/domain/audit"
	"github.com/flexprice/ebilling/internal/domain/document"
	"github.com/flexprice/ebilling/internal/domain/ebillingpackage"
	"github.com/flexprice/ebilling/internal/domain/integrationconfig"
	"github.com/flexprice/ebilling/internal/domain/subscription"
	"github.com/flexprice/ebilling/internal/domain/usage"
	"github.com/flexprice/ebilling/internal/logger"
	"github.com/flexprice/ebilling/internal/postgres"
	postgresRepo "github.com/flexprice/ebilling/internal/repository/postgres"
)

func NewIntegrationConfigRepository(db *postgres.DB, logger *logger.Logger) integrationconfig.Repository {
	return postgresRepo.NewIntegrationConfigRepository(db, logger)
}

func NewDocumentRepository(db *postgres.DB, logger *logger.Logger) document.Repository {
	return postgresRepo.NewDocumentRepository(db, logger)
}

func NewDocumentFileRepository(db *postgres.DB, logger *logger.Logger) document.FileRepository {
	return postgresRepo.NewDocumentFileRepository(db, logger)
}

func NewPackageRepository(db *postgres.DB, logger *logger.Logger) ebillingpackage.Repository {
	return postgresRepo.NewPackageRepository(db, logger)
}

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return postgresRepo.NewSubscriptionRepository(db, logger)
}

func NewUsageRepository(db *postgres.DB, logger *logger.Logger) usage.Repository {
	return postgresRepo.NewUsageRepository(db, logger)
}

func NewCreditRepository(db *postgres.DB, logger *logger.Logger) usage.CreditRepository {
	return postgresRepo.NewCreditRepository(db, logger)
}

func NewAlertRepository(db *postgres.DB, logger *logger.Logger) alert.Repository {
	return postgresRepo.NewAlertRepository(db, logger)
}

func NewAuditRepository(db *postgres.DB, logger *logger.Logger) audit.Repository {
	return postgresRepo.NewAuditRepository(db, logger)
}
