package services

import (
	"telecare/internal/core/domain"
	"telecare/pkg/errors"
)

// DefaultPermissionPolicy lets moderators manage others while keeping
// canEndSession in provider hands. Anyone may drop their own permissions.
type DefaultPermissionPolicy struct{}

func (DefaultPermissionPolicy) CanUpdatePermissions(actor, target domain.Participant, patch domain.PermissionsPatch) error {
	entries := patch.Entries()
	if len(entries) == 0 {
		return errors.NewInvalidInputError("no permissions to update")
	}

	if actor.ID == target.ID && onlyRevokes(entries) {
		return nil
	}
	if !actor.Role.IsModerator() {
		return errors.NewInsufficientPermissionsError("manage participants").
			WithDetail("actor_role", actor.Role)
	}
	if target.Role == domain.RoleProvider && actor.Role != domain.RoleProvider {
		return errors.NewInsufficientPermissionsError("manage provider").
			WithDetail("target_id", target.ID)
	}

	for name, granted := range entries {
		if name == domain.PermEndSession && actor.Role != domain.RoleProvider {
			return errors.NewInsufficientPermissionsError(name)
		}
		if granted && !actor.Permissions.Has(name) {
			return errors.NewInsufficientPermissionsError(name).
				WithDetail("reason", "cannot grant a permission the actor does not hold")
		}
	}
	return nil
}

func onlyRevokes(entries map[string]bool) bool {
	for _, v := range entries {
		if v {
			return false
		}
	}
	return true
}
