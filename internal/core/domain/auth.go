package domain

// ParticipantClaims identifies the caller of an authenticated request.
type ParticipantClaims struct {
	SessionID     SessionID
	ParticipantID ParticipantID
	Role          Role
}
