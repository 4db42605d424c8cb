package services

import (
	"time"

	"telecare/internal/core/domain"
)

// NopMetrics discards all session metrics.
type NopMetrics struct{}

func (NopMetrics) SessionStarted() {}

func (NopMetrics) SessionStartFailed() {}

func (NopMetrics) SessionEnded(domain.EndReason, time.Duration, int) {}

func (NopMetrics) ParticipantJoined(domain.Role) {}

func (NopMetrics) ParticipantLeft(domain.Role) {}

func (NopMetrics) ComplianceEventRecorded(domain.EventType, domain.ComplianceLevel) {}

func (NopMetrics) LedgerMirrorFailed() {}

func (NopMetrics) InvitationDelivered(bool) {}
