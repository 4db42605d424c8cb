package domain

// Change is the explicit result of a mutating session operation.
// Events holds exactly the ledger entries appended by that operation.
type Change struct {
	Session     Session           `json:"session"`
	Participant *Participant      `json:"participant,omitempty"`
	Invitation  *Invitation       `json:"invitation,omitempty"`
	Events      []ComplianceEvent `json:"events"`
	// Delivered is set for invitations: whether the notifier accepted it.
	Delivered *bool `json:"delivered,omitempty"`
}

// EndResult is returned by ending a session.
type EndResult struct {
	Change    Change           `json:"change"`
	Analytics SessionAnalytics `json:"analytics"`
	Export    ComplianceExport `json:"export"`
}
