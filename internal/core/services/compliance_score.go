package services

import (
	"time"

	"telecare/internal/core/domain"
)

const (
	maxComplianceScore    = 100
	technicalIssuePenalty = 5
	missingConsentPenalty = 20
	shortSessionPenalty   = 10
	shortSessionThreshold = 300 * time.Second
)

// ComplianceScore flags sessions whose audit trail deserves manual review.
// It depends only on its arguments.
func ComplianceScore(summary domain.ComplianceSummary, duration time.Duration, recordingEnabled bool) int {
	score := maxComplianceScore
	score -= technicalIssuePenalty * summary.TechnicalIssues
	if recordingEnabled && summary.ConsentEvents == 0 {
		score -= missingConsentPenalty
	}
	if duration < shortSessionThreshold {
		score -= shortSessionPenalty
	}
	if score < 0 {
		return 0
	}
	return score
}
