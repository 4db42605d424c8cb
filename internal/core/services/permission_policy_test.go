package services

import (
	"testing"

	"telecare/internal/core/domain"
	"telecare/pkg/errors"

	"github.com/stretchr/testify/assert"
)

func participant(id string, role domain.Role) domain.Participant {
	return domain.Participant{
		ID:          domain.ParticipantID(id),
		Role:        role,
		IsConnected: true,
		Permissions: domain.DefaultPermissions(role),
	}
}

func TestDefaultPermissionPolicy(t *testing.T) {
	provider := participant("dr", domain.RoleProvider)
	otherProvider := participant("dr2", domain.RoleProvider)
	specialist := participant("sp", domain.RoleSpecialist)
	patient := participant("pt", domain.RolePatient)
	interpreter := participant("in", domain.RoleInterpreter)

	tests := []struct {
		name    string
		actor   domain.Participant
		target  domain.Participant
		patch   domain.PermissionsPatch
		wantErr errors.ErrorCode
	}{
		{"empty patch", provider, patient, domain.PermissionsPatch{}, errors.ErrCodeInvalidInput},
		{"provider grants record to patient", provider, patient, domain.PermissionsPatch{CanRecordSession: boolPtr(true)}, ""},
		{"provider grants end session", provider, specialist, domain.PermissionsPatch{CanEndSession: boolPtr(true)}, ""},
		{"provider revokes another provider", provider, otherProvider, domain.PermissionsPatch{CanMuteOthers: boolPtr(false)}, ""},
		{"specialist grants share to interpreter", specialist, interpreter, domain.PermissionsPatch{CanShareScreen: boolPtr(true)}, ""},
		{"specialist cannot grant end session", specialist, patient, domain.PermissionsPatch{CanEndSession: boolPtr(true)}, errors.ErrCodeInsufficientPermissions},
		{"specialist cannot revoke end session", specialist, patient, domain.PermissionsPatch{CanEndSession: boolPtr(false)}, errors.ErrCodeInsufficientPermissions},
		{"specialist cannot modify provider", specialist, provider, domain.PermissionsPatch{CanShareScreen: boolPtr(false)}, errors.ErrCodeInsufficientPermissions},
		{"patient cannot modify others", patient, interpreter, domain.PermissionsPatch{CanShareScreen: boolPtr(true)}, errors.ErrCodeInsufficientPermissions},
		{"patient revokes own medical records access", patient, patient, domain.PermissionsPatch{CanAccessMedicalRecords: boolPtr(false)}, ""},
		{"patient cannot grant self", patient, patient, domain.PermissionsPatch{CanRecordSession: boolPtr(true)}, errors.ErrCodeInsufficientPermissions},
		{"specialist revokes own end session", specialist, specialist, domain.PermissionsPatch{CanEndSession: boolPtr(false)}, ""},
	}

	policy := DefaultPermissionPolicy{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.CanUpdatePermissions(tt.actor, tt.target, tt.patch)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.IsCode(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestDefaultPermissionPolicy_CannotGrantUnheldBit(t *testing.T) {
	specialist := participant("sp", domain.RoleSpecialist)
	specialist.Permissions.CanRecordSession = false

	err := DefaultPermissionPolicy{}.CanUpdatePermissions(specialist, participant("pt", domain.RolePatient),
		domain.PermissionsPatch{CanRecordSession: boolPtr(true)})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInsufficientPermissions))
}
