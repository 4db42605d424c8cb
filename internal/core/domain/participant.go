package domain

import "time"

type ParticipantID string

type Role string

const (
	RoleProvider    Role = "provider"
	RolePatient     Role = "patient"
	RoleInterpreter Role = "interpreter"
	RoleCaregiver   Role = "caregiver"
	RoleSpecialist  Role = "specialist"
)

func (r Role) Valid() bool {
	switch r {
	case RoleProvider, RolePatient, RoleInterpreter, RoleCaregiver, RoleSpecialist:
		return true
	}
	return false
}

// IsModerator reports whether the role may manage other participants.
func (r Role) IsModerator() bool {
	return r == RoleProvider || r == RoleSpecialist
}

type Permissions struct {
	CanShareScreen          bool `json:"canShareScreen"`
	CanMuteOthers           bool `json:"canMuteOthers"`
	CanInviteParticipants   bool `json:"canInviteParticipants"`
	CanEndSession           bool `json:"canEndSession"`
	CanRecordSession        bool `json:"canRecordSession"`
	CanAccessMedicalRecords bool `json:"canAccessMedicalRecords"`
}

// Permission names as they appear in errors and ledger data.
const (
	PermShareScreen          = "canShareScreen"
	PermMuteOthers           = "canMuteOthers"
	PermInviteParticipants   = "canInviteParticipants"
	PermEndSession           = "canEndSession"
	PermRecordSession        = "canRecordSession"
	PermAccessMedicalRecords = "canAccessMedicalRecords"
)

var rolePermissions = map[Role]Permissions{
	RoleProvider: {
		CanShareScreen: true, CanMuteOthers: true, CanInviteParticipants: true,
		CanEndSession: true, CanRecordSession: true, CanAccessMedicalRecords: true,
	},
	RoleSpecialist: {
		CanShareScreen: true, CanMuteOthers: true, CanInviteParticipants: true,
		CanRecordSession: true, CanAccessMedicalRecords: true,
	},
	RolePatient: {
		CanShareScreen: true,
	},
	RoleInterpreter: {},
	RoleCaregiver:   {},
}

// DefaultPermissions returns the join-time permissions for role. Unknown roles get none.
func DefaultPermissions(role Role) Permissions {
	return rolePermissions[role]
}

// Has reports whether the named permission is set.
func (p Permissions) Has(name string) bool {
	switch name {
	case PermShareScreen:
		return p.CanShareScreen
	case PermMuteOthers:
		return p.CanMuteOthers
	case PermInviteParticipants:
		return p.CanInviteParticipants
	case PermEndSession:
		return p.CanEndSession
	case PermRecordSession:
		return p.CanRecordSession
	case PermAccessMedicalRecords:
		return p.CanAccessMedicalRecords
	}
	return false
}

// PermissionsPatch is a partial override; nil fields are left unchanged.
type PermissionsPatch struct {
	CanShareScreen          *bool `json:"canShareScreen,omitempty"`
	CanMuteOthers           *bool `json:"canMuteOthers,omitempty"`
	CanInviteParticipants   *bool `json:"canInviteParticipants,omitempty"`
	CanEndSession           *bool `json:"canEndSession,omitempty"`
	CanRecordSession        *bool `json:"canRecordSession,omitempty"`
	CanAccessMedicalRecords *bool `json:"canAccessMedicalRecords,omitempty"`
}

// Entries returns the set fields keyed by permission name.
func (p PermissionsPatch) Entries() map[string]bool {
	out := make(map[string]bool, 6)
	add := func(name string, v *bool) {
		if v != nil {
			out[name] = *v
		}
	}
	add(PermShareScreen, p.CanShareScreen)
	add(PermMuteOthers, p.CanMuteOthers)
	add(PermInviteParticipants, p.CanInviteParticipants)
	add(PermEndSession, p.CanEndSession)
	add(PermRecordSession, p.CanRecordSession)
	add(PermAccessMedicalRecords, p.CanAccessMedicalRecords)
	return out
}

func (p PermissionsPatch) IsEmpty() bool {
	return len(p.Entries()) == 0
}

// Apply merges the patch over p.
func (p Permissions) Apply(patch PermissionsPatch) Permissions {
	set := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	set(&p.CanShareScreen, patch.CanShareScreen)
	set(&p.CanMuteOthers, patch.CanMuteOthers)
	set(&p.CanInviteParticipants, patch.CanInviteParticipants)
	set(&p.CanEndSession, patch.CanEndSession)
	set(&p.CanRecordSession, patch.CanRecordSession)
	set(&p.CanAccessMedicalRecords, patch.CanAccessMedicalRecords)
	return p
}

// Participant records are never deleted; leaving only marks them disconnected.
type Participant struct {
	ID                ParticipantID `json:"id"`
	Name              string        `json:"name"`
	Role              Role          `json:"role"`
	Email             string        `json:"email,omitempty"`
	IsConnected       bool          `json:"isConnected"`
	IsMuted           bool          `json:"isMuted"`
	JoinedAt          time.Time     `json:"joinedAt"`
	LeftAt            time.Time     `json:"leftAt,omitempty"`
	Permissions       Permissions   `json:"permissions"`
	ConnectionQuality *float64      `json:"connectionQuality,omitempty"`
}

// NewParticipant is the input for adding someone to the roster.
type NewParticipant struct {
	ID    ParticipantID `json:"id"`
	Name  string        `json:"name"`
	Role  Role          `json:"role"`
	Email string        `json:"email,omitempty"`
}
