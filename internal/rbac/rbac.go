package rbac

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/flexprice/ebilling/internal/config"
	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/types"
)

// Entities guarded by the admin routes
const (
	EntityIntegration  = "integration"
	EntityDocument     = "document"
	EntityPackage      = "package"
	EntitySubscription = "subscription"
	EntityCredit       = "credit"
	EntityAlert        = "alert"
	EntityAudit        = "audit"
)

// Actions granted on an entity
const (
	ActionRead     = "read"
	ActionWrite    = "write"
	ActionTest     = "test"
	ActionSubmit   = "submit"
	ActionRetry    = "retry"
	ActionDownload = "download"
)

// RBACService answers permission checks for operator roles
type RBACService struct {
	// role -> entity -> action
	permissions map[string]map[string]map[string]bool

	roles map[string]*Role
}

// Role is a role definition as loaded from roles.json
type Role struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Permissions map[string][]string `json:"permissions"`
}

// NewRBACService loads the role definitions from the configured path
func NewRBACService(cfg *config.Configuration) (*RBACService, error) {
	configPath := cfg.RBAC.RolesConfigPath
	if configPath == "" {
		configPath = "./config/rbac/roles.json"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Failed to read roles config at %s", configPath).
			Mark(ierr.ErrSystem)
	}

	return NewRBACServiceFromJSON(data)
}

// NewRBACServiceFromJSON builds the service from raw roles.json content.
// Only the operator roles are accepted.
func NewRBACServiceFromJSON(data []byte) (*RBACService, error) {
	var raw map[string]*Role
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Roles config is not valid JSON").
			Mark(ierr.ErrValidation)
	}

	permissions := make(map[string]map[string]map[string]bool, len(raw))
	for roleID, role := range raw {
		if !types.IsValidRole(roleID) {
			return nil, ierr.NewErrorf("unknown role %q in roles config", roleID).
				WithHintf("Role %s is not an operator role", roleID).
				Mark(ierr.ErrValidation)
		}
		role.ID = roleID
		permissions[roleID] = make(map[string]map[string]bool, len(role.Permissions))
		for entity, actions := range role.Permissions {
			permissions[roleID][entity] = make(map[string]bool, len(actions))
			for _, action := range actions {
				permissions[roleID][entity][action] = true
			}
		}
	}

	return &RBACService{
		permissions: permissions,
		roles:       raw,
	}, nil
}

// HasPermission reports whether any of the roles grants entity.action.
// No roles means no access.
func (s *RBACService) HasPermission(roles []string, entity string, action string) bool {
	for _, role := range roles {
		if s.permissions[role][entity][action] {
			return true
		}
	}
	return false
}

// ValidateRole checks if the role is defined
func (s *RBACService) ValidateRole(roleName string) bool {
	_, exists := s.permissions[roleName]
	return exists
}

// ListRoles returns every role ordered by id
func (s *RBACService) ListRoles() []*Role {
	result := make([]*Role, 0, len(s.roles))
	for _, role := range s.roles {
		result = append(result, role)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (s *RBACService) GetRole(roleID string) (*Role, bool) {
	role, exists := s.roles[roleID]
	return role, exists
}
