package rbac

import (
	"testing"

	"github.com/flexprice/ebilling/internal/config"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadRoles(t *testing.T) *RBACService {
	t.Helper()
	svc, err := NewRBACService(&config.Configuration{
		RBAC: config.RBACConfig{RolesConfigPath: "../../config/rbac/roles.json"},
	})
	require.NoError(t, err)
	return svc
}

func TestShippedRoles(t *testing.T) {
	svc := loadRoles(t)

	tests := []struct {
		role   string
		entity string
		action string
		want   bool
	}{
		{"superadmin", EntityAudit, ActionRead, true},
		{"superadmin", EntityIntegration, ActionWrite, true},
		{"supportagent", EntityIntegration, ActionTest, true},
		{"supportagent", EntityIntegration, ActionWrite, false},
		{"supportagent", EntityDocument, ActionRetry, true},
		{"supportagent", EntityCredit, ActionWrite, false},
		{"supportagent", EntityAudit, ActionRead, false},
		{"billingops", EntityPackage, ActionWrite, true},
		{"billingops", EntityCredit, ActionWrite, true},
		{"billingops", EntityDocument, ActionSubmit, false},
		{"billingops", EntityIntegration, ActionTest, false},
		{"owner", EntityDocument, ActionRead, false},
	}
	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.entity+"."+tt.action, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.HasPermission([]string{tt.role}, tt.entity, tt.action))
		})
	}
}

func TestNoRolesDenies(t *testing.T) {
	svc := loadRoles(t)
	assert.False(t, svc.HasPermission(nil, EntityDocument, ActionRead))
	assert.False(t, svc.HasPermission([]string{}, EntityDocument, ActionRead))
}

func TestListRoles(t *testing.T) {
	svc := loadRoles(t)
	roles := svc.ListRoles()
	require.Len(t, roles, 3)
	assert.Equal(t, "billingops", roles[0].ID)
	assert.True(t, svc.ValidateRole("supportagent"))
	assert.False(t, svc.ValidateRole("admin"))

	role, ok := svc.GetRole("superadmin")
	require.True(t, ok)
	assert.Equal(t, "Super Admin", role.Name)
}

func TestRejectsUnknownRoles(t *testing.T) {
	_, err := NewRBACServiceFromJSON([]byte(`{"admin":{"permissions":{"document":["read"]}}}`))
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))

	_, err = NewRBACServiceFromJSON([]byte(`not json`))
	assert.True(t, ierr.IsValidation(err))
}
