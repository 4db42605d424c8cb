package domain

import "time"

type InvitationID string

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
	InvitationDeclined InvitationStatus = "declined"
)

func (s InvitationStatus) Valid() bool {
	switch s {
	case InvitationPending, InvitationAccepted, InvitationExpired, InvitationDeclined:
		return true
	}
	return false
}

type Invitation struct {
	ID            InvitationID     `json:"id"`
	SessionID     SessionID        `json:"sessionId"`
	InvitedBy     ParticipantID    `json:"invitedBy"`
	InviteeEmail  string           `json:"inviteeEmail"`
	InviteeName   string           `json:"inviteeName"`
	Role          Role             `json:"role"`
	Message       string           `json:"message,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	ExpiresAt     time.Time        `json:"expiresAt"`
	Status        InvitationStatus `json:"status"`
	AcceptedAt    time.Time        `json:"acceptedAt,omitempty"`
	DeclinedAt    time.Time        `json:"declinedAt,omitempty"`
	ParticipantID ParticipantID    `json:"participantId,omitempty"`
}

// ExpiredAt reports whether the invitation is past its expiry at now.
func (i Invitation) ExpiredAt(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

type InviteRequest struct {
	InvitedBy ParticipantID `json:"invitedBy"`
	Email     string        `json:"email"`
	Name      string        `json:"name"`
	Role      Role          `json:"role"`
	Message   string        `json:"message,omitempty"`
}

// InvitationFilter selects invitations by status. An empty status matches all.
type InvitationFilter struct {
	Status InvitationStatus `json:"status,omitempty"`
}

func (f InvitationFilter) Matches(inv Invitation) bool {
	return f.Status == "" || inv.Status == f.Status
}
