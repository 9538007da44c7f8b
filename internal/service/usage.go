package service

import (
	"context"
	"fmt"
	"time"

	"github.com/flexprice/ebilling/internal/api/dto"
	"github.com/flexprice/ebilling/internal/cache"
	"github.com/flexprice/ebilling/internal/domain/ebillingpackage"
	"github.com/flexprice/ebilling/internal/domain/subscription"
	"github.com/flexprice/ebilling/internal/domain/usage"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

var (
	threshold70  = decimal.NewFromInt(70)
	threshold90  = decimal.NewFromInt(90)
	threshold100 = decimal.NewFromInt(100)
)

// UsageService is the document quota ledger
type UsageService interface {
	// IncrementUsage counts one document of kind against the tenant's active
	// period and raises at most one threshold alert. Tenants without a
	// subscription are unmetered and get an ErrNotFound error.
	IncrementUsage(ctx context.Context, tenantID string, kind types.DocumentKind) (*usage.Period, error)
	// CheckQuota previews the tenant's overage policy without holding quota
	CheckQuota(ctx context.Context, tenantID string) (*dto.QuotaDecision, error)
	// ReserveQuota holds one included document for a submission, or decides
	// per the overage policy when none remain. Every allowed metered decision
	// must be settled with CommitUsage or ReleaseQuota.
	ReserveQuota(ctx context.Context, tenantID string) (*dto.QuotaDecision, error)
	// ReleaseQuota returns a reservation after the submission failed
	ReleaseQuota(ctx context.Context, decision *dto.QuotaDecision) error
	// CommitUsage counts the submitted document against the decision's period
	CommitUsage(ctx context.Context, tenantID string, kind types.DocumentKind, decision *dto.QuotaDecision) (*usage.Period, error)
	AssignPackageToTenant(ctx context.Context, tenantID string, req *dto.AssignPackageRequest) (*dto.SubscriptionResponse, error)
	ApplyCredit(ctx context.Context, tenantID string, req *dto.ApplyCreditRequest) (*dto.CreditResponse, error)
	GetUsageSummary(ctx context.Context, tenantID string) (*dto.UsageSummaryResponse, error)
	GetSubscription(ctx context.Context, tenantID string) (*subscription.Subscription, error)
	ListCredits(ctx context.Context, filter *types.CreditFilter) (*dto.ListCreditsResponse, error)

	CreatePackage(ctx context.Context, req *dto.CreatePackageRequest) (*dto.PackageResponse, error)
	GetPackage(ctx context.Context, id string) (*dto.PackageResponse, error)
	ListPackages(ctx context.Context, filter *types.PackageFilter) (*dto.ListPackagesResponse, error)
}

type usageService struct {
	ServiceParams
}

func NewUsageService(params ServiceParams) UsageService {
	return &usageService{
		ServiceParams: params,
	}
}

func (s *usageService) IncrementUsage(ctx context.Context, tenantID string, kind types.DocumentKind) (*usage.Period, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	bucket := kind.UsageBucket()

	p, err := s.UsageRepo.Increment(ctx, tenantID, bucket, now)
	if ierr.IsNotFound(err) {
		// the cycle may have ended since the last count
		if _, err := s.rollover(ctx, tenantID, now); err != nil {
			return nil, err
		}
		p, err = s.UsageRepo.Increment(ctx, tenantID, bucket, now)
	}
	if err != nil {
		return nil, err
	}

	s.recordUsage(ctx, p, bucket)
	return p, nil
}

// recordUsage reports a counted document and raises its threshold alert
func (s *usageService) recordUsage(ctx context.Context, p *usage.Period, bucket types.UsageBucket) {
	s.Logger.Debugw("usage incremented",
		"tenant_id", p.TenantID,
		"bucket", bucket,
		"used_total", p.UsedTotal,
		"remaining_total", p.RemainingTotal,
	)
	s.Metrics.ObserveUsage(string(bucket))
	publishEvent(ctx, s.ServiceParams, types.NewEvent(types.EventUsageIncremented, p.TenantID, map[string]any{
		"usage_period_id": p.ID,
		"bucket":          bucket,
		"used_total":      p.UsedTotal,
		"remaining_total": p.RemainingTotal,
	}))

	s.raiseThresholdAlert(ctx, p)
}

// thresholdAlert maps usage to the single alert an increment may raise
func thresholdAlert(pct decimal.Decimal) (types.AlertType, bool) {
	switch {
	case pct.GreaterThanOrEqual(threshold100):
		return types.AlertTypeLimitReached, true
	case pct.GreaterThanOrEqual(threshold90):
		return types.AlertTypeThreshold90, true
	case pct.GreaterThanOrEqual(threshold70):
		return types.AlertTypeThreshold70, true
	default:
		return "", false
	}
}

func (s *usageService) raiseThresholdAlert(ctx context.Context, p *usage.Period) {
	pct := p.PercentUsed()
	alertType, ok := thresholdAlert(pct)
	if !ok {
		return
	}

	msg := fmt.Sprintf("%s%% of included documents used (%d/%d)",
		pct.Round(1).String(), p.UsedTotal, p.IncludedDocuments)
	if alertType == types.AlertTypeLimitReached {
		msg = fmt.Sprintf("Included documents exhausted (%d/%d)", p.UsedTotal, p.IncludedDocuments)
	}

	_, _, err := NewAlertService(s.ServiceParams).Raise(ctx, dto.RaiseAlertRequest{
		TenantID: p.TenantID,
		Type:     alertType,
		Message:  msg,
		Metadata: map[string]any{
			"usage_period_id":    p.ID,
			"used_total":         p.UsedTotal,
			"included_documents": p.IncludedDocuments,
			"percent_used":       pct.Round(2).String(),
		},
	})
	if err != nil {
		s.Logger.Errorw("failed to raise usage alert",
			"tenant_id", p.TenantID,
			"type", alertType,
			"error", err,
		)
	}
}

// activePeriod returns the period containing now, opening the next cycle of
// the tenant's subscription when the previous one has ended
func (s *usageService) activePeriod(ctx context.Context, tenantID string, now time.Time) (*usage.Period, error) {
	p, err := s.UsageRepo.GetActivePeriod(ctx, tenantID, now)
	if err == nil {
		return p, nil
	}
	if !ierr.IsNotFound(err) {
		return nil, err
	}
	return s.rollover(ctx, tenantID, now)
}

// rollover opens the period containing now. The subscription row lock
// serializes concurrent callers; a caller that waited finds the period the
// first one opened.
func (s *usageService) rollover(ctx context.Context, tenantID string, now time.Time) (*usage.Period, error) {
	var period *usage.Period
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		sub, err := s.SubscriptionRepo.GetForUpdate(ctx, tenantID)
		if err != nil {
			return err
		}
		if sub.CycleStart.After(now) {
			return ierr.NewErrorf("subscription for tenant %s starts at %s", tenantID, sub.CycleStart).
				WithHint("Usage period not started").
				Mark(ierr.ErrNotFound)
		}

		period, err = s.UsageRepo.GetActivePeriod(ctx, tenantID, now)
		if err == nil {
			return nil
		}
		if !ierr.IsNotFound(err) {
			return err
		}

		if !sub.CycleEnd.After(now) {
			sub.Advance(now)
			if err := s.SubscriptionRepo.UpdateCycle(ctx, sub.ID, sub.CycleStart, sub.CycleEnd); err != nil {
				return err
			}
		}
		if _, err := s.UsageRepo.ClosePeriods(ctx, tenantID, sub.CycleStart); err != nil {
			return err
		}

		period, err = s.UsageRepo.CreatePeriod(ctx, usage.NewPeriod(tenantID, sub.ID, sub.CycleStart, sub.CycleEnd, sub.IncludedDocuments))
		if err != nil {
			return err
		}

		s.Logger.Infow("opened usage period",
			"tenant_id", tenantID,
			"subscription_id", sub.ID,
			"period_start", period.PeriodStart,
			"period_end", period.PeriodEnd,
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return period, nil
}

func (s *usageService) CheckQuota(ctx context.Context, tenantID string) (*dto.QuotaDecision, error) {
	now := time.Now().UTC()

	p, err := s.activePeriod(ctx, tenantID, now)
	if ierr.IsNotFound(err) {
		return &dto.QuotaDecision{Metered: false, Allowed: true}, nil
	}
	if err != nil {
		return nil, err
	}

	sub, err := s.SubscriptionRepo.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	decision := &dto.QuotaDecision{
		Metered:   true,
		Allowed:   true,
		Remaining: p.RemainingTotal,
		Policy:    sub.OveragePolicy,
	}
	if p.RemainingTotal > 0 {
		return decision, nil
	}

	if sub.OveragePolicy == types.OveragePolicyBlock {
		decision.Allowed = false
		return decision, nil
	}
	decision.Overage = true
	return decision, nil
}

func (s *usageService) ReserveQuota(ctx context.Context, tenantID string) (*dto.QuotaDecision, error) {
	now := time.Now().UTC()

	p, err := s.activePeriod(ctx, tenantID, now)
	if ierr.IsNotFound(err) {
		return &dto.QuotaDecision{Metered: false, Allowed: true}, nil
	}
	if err != nil {
		return nil, err
	}

	sub, err := s.SubscriptionRepo.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	decision := &dto.QuotaDecision{
		Metered:  true,
		Allowed:  true,
		Policy:   sub.OveragePolicy,
		PeriodID: p.ID,
	}

	reserved, err := s.UsageRepo.Reserve(ctx, p.ID)
	if err == nil {
		decision.Reserved = true
		decision.Remaining = reserved.RemainingTotal
		return decision, nil
	}
	if !ierr.IsNotFound(err) {
		return nil, err
	}

	if sub.OveragePolicy == types.OveragePolicyBlock {
		decision.Allowed = false
		return decision, nil
	}
	decision.Overage = true
	return decision, nil
}

func (s *usageService) ReleaseQuota(ctx context.Context, decision *dto.QuotaDecision) error {
	if decision == nil || !decision.Reserved {
		return nil
	}
	if _, err := s.UsageRepo.AdjustRemaining(ctx, decision.PeriodID, 1); err != nil {
		return err
	}
	decision.Reserved = false
	return nil
}

func (s *usageService) CommitUsage(ctx context.Context, tenantID string, kind types.DocumentKind, decision *dto.QuotaDecision) (*usage.Period, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}
	if decision == nil || !decision.Metered || !decision.Allowed {
		return nil, ierr.NewErrorf("tenant %s has no quota decision to commit", tenantID).
			WithHint("Submission was not metered").
			Mark(ierr.ErrNotFound)
	}

	bucket := kind.UsageBucket()
	p, err := s.UsageRepo.Count(ctx, decision.PeriodID, bucket, !decision.Reserved)
	if err != nil {
		return nil, err
	}
	s.recordUsage(ctx, p, bucket)
	return p, nil
}

func (s *usageService) AssignPackageToTenant(ctx context.Context, tenantID string, req *dto.AssignPackageRequest) (*dto.SubscriptionResponse, error) {
	if tenantID == "" {
		return nil, ierr.NewError("tenant_id is required").
			WithHint("Tenant ID is required").
			Mark(ierr.ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	start := now
	if req.StartDate != nil {
		start = req.StartDate.UTC()
	}
	actor := types.GetActor(ctx)

	var resp *dto.SubscriptionResponse
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		pkgResp, err := s.GetPackage(ctx, req.PackageID)
		if err != nil {
			return err
		}
		pkg := pkgResp.Package

		sub := subscription.FromPackage(tenantID, pkg, start)
		sub.CreatedAt, sub.UpdatedAt = now, now
		sub.CreatedBy, sub.UpdatedBy = actor, actor

		created, err := s.SubscriptionRepo.Upsert(ctx, sub)
		if err != nil {
			return err
		}

		if _, err := s.UsageRepo.ClosePeriods(ctx, tenantID, lo.Latest(start, now)); err != nil {
			return err
		}

		fresh := usage.NewPeriod(tenantID, sub.ID, sub.CycleStart, sub.CycleEnd, sub.IncludedDocuments)
		period, err := s.UsageRepo.CreatePeriod(ctx, fresh)
		if err != nil {
			return err
		}
		if period.ID != fresh.ID {
			return ierr.NewError("usage period already exists for this start").
				WithHint("A usage period already starts at this date, pick another start date").
				WithReportableDetails(map[string]any{
					"tenant_id":  tenantID,
					"start_date": start,
				}).
				Mark(ierr.ErrAlreadyExists)
		}

		action := types.AuditActionSubscriptionAssign
		if !created {
			action = types.AuditActionSubscriptionChange
		}
		if _, err := NewAuditService(s.ServiceParams).Log(ctx, dto.AuditEntry{
			TenantID:   tenantID,
			Actor:      actor,
			Action:     action,
			EntityType: types.AuditEntitySubscription,
			EntityID:   sub.ID,
			Metadata: map[string]any{
				"package_id":         pkg.ID,
				"included_documents": sub.IncludedDocuments,
				"cycle_start":        sub.CycleStart,
				"cycle_end":          sub.CycleEnd,
			},
		}); err != nil {
			return err
		}

		resp = &dto.SubscriptionResponse{
			Subscription: sub,
			Period:       period,
			Replaced:     !created,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("assigned package to tenant",
		"tenant_id", tenantID,
		"package_id", req.PackageID,
		"replaced", resp.Replaced,
	)
	return resp, nil
}

func (s *usageService) ApplyCredit(ctx context.Context, tenantID string, req *dto.ApplyCreditRequest) (*dto.CreditResponse, error) {
	if tenantID == "" {
		return nil, ierr.NewError("tenant_id is required").
			WithHint("Tenant ID is required").
			Mark(ierr.ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	actor := types.GetActor(ctx)
	now := time.Now().UTC()

	var resp *dto.CreditResponse
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.activePeriod(ctx, tenantID, now)
		if err != nil {
			if ierr.IsNotFound(err) {
				return ierr.WithError(err).
					WithHint("Tenant has no active usage period, assign a package first").
					Mark(ierr.ErrInvalidOperation)
			}
			return err
		}

		c := &usage.Credit{
			ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CREDIT),
			TenantID:       tenantID,
			UsagePeriodID:  p.ID,
			DeltaDocuments: req.DeltaDocuments,
			Reason:         req.Reason,
			IssuedBy:       actor,
			CreatedAt:      now,
		}
		if err := s.CreditRepo.Create(ctx, c); err != nil {
			return err
		}

		p, err = s.UsageRepo.AdjustRemaining(ctx, p.ID, req.DeltaDocuments)
		if err != nil {
			return err
		}

		if _, err := NewAuditService(s.ServiceParams).Log(ctx, dto.AuditEntry{
			TenantID:   tenantID,
			Actor:      actor,
			Action:     types.AuditActionCreditApply,
			EntityType: types.AuditEntityCredit,
			EntityID:   c.ID,
			Metadata: map[string]any{
				"delta_documents": c.DeltaDocuments,
				"reason":          c.Reason,
				"usage_period_id": p.ID,
				"remaining_total": p.RemainingTotal,
			},
		}); err != nil {
			return err
		}

		resp = &dto.CreditResponse{Credit: c, Period: p}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *usageService) GetUsageSummary(ctx context.Context, tenantID string) (*dto.UsageSummaryResponse, error) {
	resp := &dto.UsageSummaryResponse{
		TenantID:      tenantID,
		PercentUsed:   decimal.Zero,
		OverageCharge: decimal.Zero,
	}

	sub, err := s.SubscriptionRepo.Get(ctx, tenantID)
	if ierr.IsNotFound(err) {
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	resp.Metered = true
	resp.Subscription = sub
	resp.Currency = sub.Currency

	p, err := s.UsageRepo.GetActivePeriod(ctx, tenantID, time.Now().UTC())
	if ierr.IsNotFound(err) {
		return resp, nil
	}
	if err != nil {
		return nil, err
	}

	resp.Period = p
	resp.PercentUsed = p.PercentUsed().Round(2)
	if sub.OveragePolicy == types.OveragePolicyAllowAndCharge {
		resp.OverageCharge = sub.OveragePrice.Mul(decimal.NewFromInt(int64(p.OverageDocuments)))
	}
	return resp, nil
}

func (s *usageService) GetSubscription(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	return s.SubscriptionRepo.Get(ctx, tenantID)
}

func (s *usageService) ListCredits(ctx context.Context, filter *types.CreditFilter) (*dto.ListCreditsResponse, error) {
	if filter == nil {
		filter = types.NewCreditFilter()
	}
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewDefaultQueryFilter()
	}
	if err := filter.QueryFilter.Validate(); err != nil {
		return nil, err
	}

	credits, total, err := s.CreditRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	resp := types.NewListResponse(credits, total, filter.GetLimit(), filter.GetOffset())
	return &resp, nil
}

func (s *usageService) CreatePackage(ctx context.Context, req *dto.CreatePackageRequest) (*dto.PackageResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	pkg := req.ToPackage(ctx)
	if err := pkg.Validate(); err != nil {
		return nil, err
	}

	if err := s.PackageRepo.Create(ctx, pkg); err != nil {
		return nil, err
	}

	if _, err := NewAuditService(s.ServiceParams).Log(ctx, dto.AuditEntry{
		TenantID:   lo.Ternary(pkg.TenantID != "", pkg.TenantID, types.DefaultTenantID),
		Action:     types.AuditActionPackageCreate,
		EntityType: types.AuditEntityPackage,
		EntityID:   pkg.ID,
		Metadata: map[string]any{
			"name":               pkg.Name,
			"included_documents": pkg.IncludedDocuments,
			"overage_policy":     pkg.OveragePolicy,
		},
	}); err != nil {
		s.Logger.Warnw("failed to audit package creation", "package_id", pkg.ID, "error", err)
	}

	return &dto.PackageResponse{Package: pkg}, nil
}

func (s *usageService) GetPackage(ctx context.Context, id string) (*dto.PackageResponse, error) {
	key := cache.GenerateKey(cache.PrefixPackage, id)
	if cached, ok := s.Cache.Get(ctx, key); ok {
		if pkg, ok := cached.(*ebillingpackage.Package); ok {
			return &dto.PackageResponse{Package: pkg}, nil
		}
	}

	pkg, err := s.PackageRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Cache.Set(ctx, key, pkg, 10*time.Minute)
	return &dto.PackageResponse{Package: pkg}, nil
}

func (s *usageService) ListPackages(ctx context.Context, filter *types.PackageFilter) (*dto.ListPackagesResponse, error) {
	if filter == nil {
		filter = types.NewPackageFilter()
	}
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewDefaultQueryFilter()
	}
	if err := filter.QueryFilter.Validate(); err != nil {
		return nil, err
	}

	pkgs, total, err := s.PackageRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := lo.Map(pkgs, func(p *ebillingpackage.Package, _ int) *dto.PackageResponse {
		return &dto.PackageResponse{Package: p}
	})
	resp := types.NewListResponse(items, total, filter.GetLimit(), filter.GetOffset())
	return &resp, nil
}
