package types

// AuditAction is the mutation recorded by an audit entry
type AuditAction string

const (
	AuditActionConfigCreate        AuditAction = "integration.config.create"
	AuditActionConfigUpdate        AuditAction = "integration.config.update"
	AuditActionTestConnection      AuditAction = "integration.test_connection"
	AuditActionDocumentRetry       AuditAction = "document.retry"
	AuditActionDocumentSubmit      AuditAction = "document.submit"
	AuditActionSubscriptionAssign  AuditAction = "subscription.assign"
	AuditActionSubscriptionChange  AuditAction = "subscription.change"
	AuditActionCreditApply         AuditAction = "credit.apply"
	AuditActionPackageCreate       AuditAction = "package.create"
	AuditActionAlertAcknowledge    AuditAction = "alert.acknowledge"
	AuditActionDocumentsReconciled AuditAction = "documents.reconcile"
)

// AuditEntity is the kind of entity an audit entry refers to
type AuditEntity string

const (
	AuditEntityIntegrationConfig AuditEntity = "integration_config"
	AuditEntityDocument          AuditEntity = "document"
	AuditEntitySubscription      AuditEntity = "subscription"
	AuditEntityCredit            AuditEntity = "credit"
	AuditEntityPackage           AuditEntity = "package"
	AuditEntityAlert             AuditEntity = "alert"
)

// AuditLogFilter filters audit entries
type AuditLogFilter struct {
	*QueryFilter
	TenantID   string      `json:"tenant_id,omitempty" form:"tenant_id"`
	Actor      string      `json:"actor,omitempty" form:"actor"`
	Action     AuditAction `json:"action,omitempty" form:"action"`
	EntityType AuditEntity `json:"entity_type,omitempty" form:"entity_type"`
	EntityID   string      `json:"entity_id,omitempty" form:"entity_id"`
}

func NewAuditLogFilter() *AuditLogFilter {
	return &AuditLogFilter{QueryFilter: NewDefaultQueryFilter()}
}
