package service

import (
	"context"
	"testing"

	"github.com/flexprice/ebilling/internal/api/dto"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/testutil"
	"github.com/flexprice/ebilling/internal/types"
	"github.com/stretchr/testify/suite"
)

type AlertServiceSuite struct {
	testutil.BaseServiceTestSuite
	service      AlertService
	auditService AuditService
}

func TestAlertService(t *testing.T) {
	suite.Run(t, new(AlertServiceSuite))
}

func (s *AlertServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	params := newTestServiceParams(&s.BaseServiceTestSuite)
	s.service = NewAlertService(params)
	s.auditService = NewAuditService(params)
}

func (s *AlertServiceSuite) raise(t types.AlertType) (bool, error) {
	_, raised, err := s.service.Raise(s.GetContext(), dto.RaiseAlertRequest{
		TenantID: testTenant,
		Type:     t,
		Message:  "usage at " + string(t),
	})
	return raised, err
}

func (s *AlertServiceSuite) TestRaiseDeduplicatesOpenAlerts() {
	raised, err := s.raise(types.AlertTypeThreshold90)
	s.Require().NoError(err)
	s.True(raised)

	raised, err = s.raise(types.AlertTypeThreshold90)
	s.Require().NoError(err)
	s.False(raised)

	raised, err = s.raise(types.AlertTypeAuthFailed)
	s.Require().NoError(err)
	s.True(raised)

	s.Len(s.GetPublisher().Events(types.EventAlertRaised), 2)
}

func (s *AlertServiceSuite) TestRaiseValidation() {
	_, err := s.raise("THRESHOLD_50")
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))

	_, _, err = s.service.Raise(s.GetContext(), dto.RaiseAlertRequest{Type: types.AlertTypeAuthFailed})
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *AlertServiceSuite) TestAcknowledgeExactlyOnce() {
	_, err := s.raise(types.AlertTypeLimitReached)
	s.Require().NoError(err)
	open := s.GetStores().AlertRepo.OfType(testTenant, types.AlertTypeLimitReached)
	s.Require().Len(open, 1)

	ctx := types.SetUserID(s.GetContext(), "operator_1")
	acked, err := s.service.Acknowledge(ctx, open[0].ID)
	s.Require().NoError(err)
	s.True(acked.IsAcknowledged())
	s.Equal("operator_1", acked.AcknowledgedBy)

	_, err = s.service.Acknowledge(ctx, open[0].ID)
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))

	_, err = s.service.Acknowledge(ctx, "ealert_missing")
	s.True(ierr.IsNotFound(err))

	logs, err := s.auditService.List(s.GetContext(), &types.AuditLogFilter{
		TenantID: testTenant,
		Action:   types.AuditActionAlertAcknowledge,
	})
	s.Require().NoError(err)
	s.Require().Len(logs.Items, 1)
	s.Equal("operator_1", logs.Items[0].Actor)

	// an acknowledged alert no longer blocks a new one
	raised, err := s.raise(types.AlertTypeLimitReached)
	s.Require().NoError(err)
	s.True(raised)
}

func (s *AlertServiceSuite) TestListFilters() {
	for _, t := range []types.AlertType{types.AlertTypeThreshold70, types.AlertTypeThreshold90, types.AlertTypeAuthFailed} {
		_, err := s.raise(t)
		s.Require().NoError(err)
	}

	filter := types.NewAlertFilter()
	filter.TenantID = testTenant
	filter.Types = []types.AlertType{types.AlertTypeAuthFailed}
	list, err := s.service.List(s.GetContext(), filter)
	s.Require().NoError(err)
	s.Len(list.Items, 1)

	all, err := s.service.List(s.GetContext(), nil)
	s.Require().NoError(err)
	s.Equal(3, all.Pagination.Total)

	_, err = s.service.List(s.GetContext(), &types.AlertFilter{Types: []types.AlertType{"BOGUS"}})
	s.True(ierr.IsValidation(err))
}

func (s *AlertServiceSuite) TestAuditLogDefaultsActor() {
	entry, err := s.auditService.Log(s.GetContext(), dto.AuditEntry{
		TenantID:   testTenant,
		Action:     types.AuditActionPackageCreate,
		EntityType: types.AuditEntityPackage,
		EntityID:   "epkg_1",
	})
	s.Require().NoError(err)
	s.Equal(types.DefaultUserID, entry.Actor)
	s.NotNil(entry.Metadata)
	s.Len(s.GetPublisher().Events(types.EventAuditLogged), 1)

	system, err := s.auditService.Log(context.Background(), dto.AuditEntry{
		TenantID: testTenant,
		Action:   types.AuditActionDocumentsReconciled,
	})
	s.Require().NoError(err)
	s.Equal(types.SystemActor, system.Actor)

	_, err = s.auditService.Log(s.GetContext(), dto.AuditEntry{TenantID: testTenant})
	s.True(ierr.IsValidation(err))
}

func (s *AlertServiceSuite) TestAuditEventPublishedAfterCommit() {
	entry := dto.AuditEntry{
		TenantID:   testTenant,
		Action:     types.AuditActionPackageCreate,
		EntityType: types.AuditEntityPackage,
		EntityID:   "epkg_1",
	}
	rollback := ierr.NewError("rolled back").Mark(ierr.ErrSystem)

	err := s.GetDB().WithTx(s.GetContext(), func(ctx context.Context) error {
		_, err := s.auditService.Log(ctx, entry)
		s.Require().NoError(err)
		s.Empty(s.GetPublisher().Events(types.EventAuditLogged), "published before commit")
		return rollback
	})
	s.Require().Error(err)
	s.Empty(s.GetPublisher().Events(types.EventAuditLogged))

	err = s.GetDB().WithTx(s.GetContext(), func(ctx context.Context) error {
		_, err := s.auditService.Log(ctx, entry)
		s.Require().NoError(err)
		s.Empty(s.GetPublisher().Events(types.EventAuditLogged))
		return nil
	})
	s.Require().NoError(err)
	s.Len(s.GetPublisher().Events(types.EventAuditLogged), 1)
}
