package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"
	"telecare/pkg/errors"
	"telecare/pkg/utils"
	"telecare/pkg/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type rosterState int

const (
	rosterNotStarted rosterState = iota
	rosterOpen
	rosterClosed
)

// ParticipantManager owns the roster and invitation table of one session.
// Roster mutations are only accepted between Open and Close so that the
// ledger never records a join before session_started or after session_ended.
type ParticipantManager struct {
	mu              sync.RWMutex
	sessionID       domain.SessionID
	maxParticipants int
	invitationTTL   time.Duration
	state           rosterState
	sessionStart    time.Time

	participants     map[domain.ParticipantID]*domain.Participant
	participantOrder []domain.ParticipantID
	invitations      map[domain.InvitationID]*domain.Invitation
	invitationOrder  []domain.InvitationID

	compliance *ComplianceLogger
	metrics    ports.SessionMetrics
	logger     *zap.SugaredLogger
	now        func() time.Time
}

func NewParticipantManager(
	config domain.SessionConfiguration,
	compliance *ComplianceLogger,
	metrics ports.SessionMetrics,
	logger *zap.SugaredLogger,
	now func() time.Time,
) *ParticipantManager {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if now == nil {
		now = time.Now
	}
	ttl := config.InvitationTTL
	if ttl <= 0 {
		ttl = domain.DefaultInvitationTTL
	}
	return &ParticipantManager{
		sessionID:       config.SessionID,
		maxParticipants: config.MaxParticipants,
		invitationTTL:   ttl,
		participants:    make(map[domain.ParticipantID]*domain.Participant),
		invitations:     make(map[domain.InvitationID]*domain.Invitation),
		compliance:      compliance,
		metrics:         metrics,
		logger:          logger.With("session_id", config.SessionID),
		now:             now,
	}
}

// Open starts accepting roster mutations; startedAt anchors elapsed-time reporting.
func (m *ParticipantManager) Open(startedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == rosterNotStarted {
		m.state = rosterOpen
		m.sessionStart = startedAt
	}
}

// Close rejects all further roster mutations.
func (m *ParticipantManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = rosterClosed
}

func (m *ParticipantManager) requireOpenLocked() error {
	switch m.state {
	case rosterNotStarted:
		return errors.NewSessionNotStartedError()
	case rosterClosed:
		return errors.NewSessionEndedError()
	}
	return nil
}

func (m *ParticipantManager) connectedCountLocked() int {
	n := 0
	for _, p := range m.participants {
		if p.IsConnected {
			n++
		}
	}
	return n
}

func validateNewParticipant(p domain.NewParticipant) error {
	if err := validation.ValidateIdentifier(string(p.ID), "participant id"); err != nil {
		return errors.NewInvalidInputError(err.Error())
	}
	if err := validation.ValidateDisplayName(p.Name); err != nil {
		return errors.NewInvalidInputError(err.Error())
	}
	if !p.Role.Valid() {
		return errors.NewInvalidInputError(fmt.Sprintf("unknown role %q", p.Role))
	}
	if p.Email != "" {
		if err := validation.ValidateEmail(p.Email); err != nil {
			return errors.NewInvalidInputError(err.Error())
		}
	}
	return nil
}

// AddParticipant joins p with the default permissions for its role.
func (m *ParticipantManager) AddParticipant(ctx context.Context, p domain.NewParticipant) (domain.Participant, error) {
	if err := validateNewParticipant(p); err != nil {
		return domain.Participant{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLocked(ctx, p, "")
}

func (m *ParticipantManager) addLocked(ctx context.Context, p domain.NewParticipant, viaInvitation domain.InvitationID) (domain.Participant, error) {
	if err := m.requireOpenLocked(); err != nil {
		return domain.Participant{}, err
	}
	if m.connectedCountLocked() >= m.maxParticipants {
		return domain.Participant{}, errors.NewValidationError(errors.ErrCodeSessionFull,
			fmt.Sprintf("session is full (%d participants)", m.maxParticipants))
	}
	if _, exists := m.participants[p.ID]; exists {
		return domain.Participant{}, errors.NewValidationError(errors.ErrCodeParticipantExists,
			fmt.Sprintf("participant %s already joined", p.ID)).WithDetail("participant_id", p.ID)
	}

	participant := &domain.Participant{
		ID:          p.ID,
		Name:        strings.TrimSpace(p.Name),
		Role:        p.Role,
		Email:       utils.NormalizeEmail(p.Email),
		IsConnected: true,
		JoinedAt:    m.now().UTC(),
		Permissions: domain.DefaultPermissions(p.Role),
	}
	m.participants[p.ID] = participant
	m.participantOrder = append(m.participantOrder, p.ID)

	data := map[string]interface{}{
		"name": participant.Name,
		"role": string(participant.Role),
	}
	if viaInvitation != "" {
		data["invitationId"] = string(viaInvitation)
	}
	m.compliance.LogEvent(ctx, domain.EventInput{
		Type:          domain.EventParticipantJoined,
		ParticipantID: p.ID,
		Data:          data,
	})
	m.metrics.ParticipantJoined(p.Role)
	m.logger.Infow("Participant joined", "participant_id", p.ID, "role", p.Role)

	return copyParticipant(participant), nil
}

// RemoveParticipant marks the participant disconnected. The record is kept.
// Removing someone who already left is a no-op.
func (m *ParticipantManager) RemoveParticipant(ctx context.Context, id domain.ParticipantID) (domain.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireOpenLocked(); err != nil {
		return domain.Participant{}, err
	}
	p, ok := m.participants[id]
	if !ok {
		return domain.Participant{}, errors.NewParticipantNotFoundError(string(id))
	}
	if !p.IsConnected {
		return copyParticipant(p), nil
	}
	m.disconnectLocked(ctx, p, "left")
	return copyParticipant(p), nil
}

// DisconnectAll force-disconnects every connected participant and returns how many were affected.
func (m *ParticipantManager) DisconnectAll(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, id := range m.participantOrder {
		if p := m.participants[id]; p.IsConnected {
			m.disconnectLocked(ctx, p, "session_ended")
			n++
		}
	}
	return n
}

func (m *ParticipantManager) disconnectLocked(ctx context.Context, p *domain.Participant, reason string) {
	now := m.now().UTC()
	p.IsConnected = false
	p.LeftAt = now

	var elapsed time.Duration
	if !m.sessionStart.IsZero() {
		elapsed = now.Sub(m.sessionStart)
	}
	m.compliance.LogEvent(ctx, domain.EventInput{
		Type:          domain.EventParticipantLeft,
		ParticipantID: p.ID,
		Data: map[string]interface{}{
			"sessionElapsed": elapsed.Seconds(),
			"connectedFor":   now.Sub(p.JoinedAt).Seconds(),
			"reason":         reason,
		},
	})
	m.metrics.ParticipantLeft(p.Role)
	m.logger.Infow("Participant left", "participant_id", p.ID, "reason", reason)
}

// InviteParticipant creates a pending invitation. Delivery is the caller's job.
func (m *ParticipantManager) InviteParticipant(ctx context.Context, req domain.InviteRequest) (domain.Invitation, error) {
	if err := validation.ValidateEmail(req.Email); err != nil {
		return domain.Invitation{}, errors.NewInvalidInputError(err.Error())
	}
	if err := validation.ValidateDisplayName(req.Name); err != nil {
		return domain.Invitation{}, errors.NewInvalidInputError(err.Error())
	}
	if !req.Role.Valid() {
		return domain.Invitation{}, errors.NewInvalidInputError(fmt.Sprintf("unknown role %q", req.Role))
	}
	if err := validation.ValidateMessage(req.Message); err != nil {
		return domain.Invitation{}, errors.NewInvalidInputError(err.Error())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireOpenLocked(); err != nil {
		return domain.Invitation{}, err
	}
	inviter, ok := m.participants[req.InvitedBy]
	if !ok {
		return domain.Invitation{}, errors.NewParticipantNotFoundError(string(req.InvitedBy))
	}
	if !inviter.IsConnected || !inviter.Permissions.CanInviteParticipants {
		return domain.Invitation{}, errors.NewInsufficientPermissionsError(domain.PermInviteParticipants)
	}

	now := m.now().UTC()
	inv := &domain.Invitation{
		ID:           domain.InvitationID(uuid.NewString()),
		SessionID:    m.sessionID,
		InvitedBy:    req.InvitedBy,
		InviteeEmail: utils.NormalizeEmail(req.Email),
		InviteeName:  strings.TrimSpace(req.Name),
		Role:         req.Role,
		Message:      req.Message,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.invitationTTL),
		Status:       domain.InvitationPending,
	}
	m.invitations[inv.ID] = inv
	m.invitationOrder = append(m.invitationOrder, inv.ID)

	m.compliance.LogEvent(ctx, domain.EventInput{
		Type:          domain.EventInvitationSent,
		ParticipantID: req.InvitedBy,
		Data: map[string]interface{}{
			"invitationId": string(inv.ID),
			"inviteeRole":  string(inv.Role),
			"expiresAt":    inv.ExpiresAt.Format(time.RFC3339),
		},
	})
	m.logger.Infow("Invitation created", "invitation_id", inv.ID, "invited_by", req.InvitedBy, "role", req.Role)

	return *inv, nil
}

// usableInvitationLocked applies the not-found, already-processed and lazy-expiry rules.
func (m *ParticipantManager) usableInvitationLocked(id domain.InvitationID) (*domain.Invitation, error) {
	inv, ok := m.invitations[id]
	if !ok {
		return nil, errors.NewValidationError(errors.ErrCodeInvitationNotFound,
			fmt.Sprintf("invitation %s not found", id)).WithDetail("invitation_id", id)
	}
	if inv.Status != domain.InvitationPending {
		return nil, errors.NewValidationError(errors.ErrCodeInvitationAlreadyProcessed,
			fmt.Sprintf("invitation is %s", inv.Status)).WithDetail("status", inv.Status)
	}
	if inv.ExpiredAt(m.now()) {
		inv.Status = domain.InvitationExpired
		m.logger.Infow("Invitation expired", "invitation_id", id)
		return nil, errors.NewValidationError(errors.ErrCodeInvitationExpired, "invitation has expired").
			WithDetail("expires_at", inv.ExpiresAt)
	}
	return inv, nil
}

// AcceptInvitation joins participantID using the invitation's name, email and role.
// The invitation stays pending if the join itself fails.
func (m *ParticipantManager) AcceptInvitation(ctx context.Context, id domain.InvitationID, participantID domain.ParticipantID) (domain.Participant, domain.Invitation, error) {
	if err := validation.ValidateIdentifier(string(participantID), "participant id"); err != nil {
		return domain.Participant{}, domain.Invitation{}, errors.NewInvalidInputError(err.Error())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireOpenLocked(); err != nil {
		return domain.Participant{}, domain.Invitation{}, err
	}
	inv, err := m.usableInvitationLocked(id)
	if err != nil {
		return domain.Participant{}, domain.Invitation{}, err
	}

	p, err := m.addLocked(ctx, domain.NewParticipant{
		ID:    participantID,
		Name:  inv.InviteeName,
		Role:  inv.Role,
		Email: inv.InviteeEmail,
	}, inv.ID)
	if err != nil {
		return domain.Participant{}, domain.Invitation{}, err
	}

	inv.Status = domain.InvitationAccepted
	inv.AcceptedAt = m.now().UTC()
	inv.ParticipantID = participantID
	return p, *inv, nil
}

// DeclineInvitation moves a pending invitation to declined.
func (m *ParticipantManager) DeclineInvitation(ctx context.Context, id domain.InvitationID) (domain.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireOpenLocked(); err != nil {
		return domain.Invitation{}, err
	}
	inv, err := m.usableInvitationLocked(id)
	if err != nil {
		return domain.Invitation{}, err
	}
	inv.Status = domain.InvitationDeclined
	inv.DeclinedAt = m.now().UTC()
	m.logger.Infow("Invitation declined", "invitation_id", id)
	return *inv, nil
}

// UpdateParticipantPermissions merges patch into the participant's permissions.
// Authorization is the caller's responsibility; updatedBy is recorded in the ledger.
func (m *ParticipantManager) UpdateParticipantPermissions(ctx context.Context, id domain.ParticipantID, patch domain.PermissionsPatch, updatedBy domain.ParticipantID) (domain.Participant, error) {
	if patch.IsEmpty() {
		return domain.Participant{}, errors.NewInvalidInputError("no permissions to update")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireOpenLocked(); err != nil {
		return domain.Participant{}, err
	}
	p, ok := m.participants[id]
	if !ok {
		return domain.Participant{}, errors.NewParticipantNotFoundError(string(id))
	}

	p.Permissions = p.Permissions.Apply(patch)

	changes := make(map[string]interface{})
	for name, v := range patch.Entries() {
		changes[name] = v
	}
	data := map[string]interface{}{"changes": changes}
	if updatedBy != "" {
		data["updatedBy"] = string(updatedBy)
	}
	m.compliance.LogEvent(ctx, domain.EventInput{
		Type:          domain.EventParticipantPermissionsUpdated,
		ParticipantID: id,
		Data:          data,
	})
	m.logger.Infow("Participant permissions updated", "participant_id", id, "updated_by", updatedBy)

	return copyParticipant(p), nil
}

// SetMuted records a mute or unmute of id performed by mutedBy.
func (m *ParticipantManager) SetMuted(ctx context.Context, id domain.ParticipantID, muted bool, mutedBy domain.ParticipantID) (domain.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireOpenLocked(); err != nil {
		return domain.Participant{}, err
	}
	p, ok := m.participants[id]
	if !ok {
		return domain.Participant{}, errors.NewParticipantNotFoundError(string(id))
	}
	p.IsMuted = muted

	eventType := domain.EventParticipantUnmuted
	if muted {
		eventType = domain.EventParticipantMuted
	}
	m.compliance.LogEvent(ctx, domain.EventInput{
		Type:          eventType,
		ParticipantID: id,
		Level:         domain.ComplianceMedium,
		Data:          map[string]interface{}{"mutedBy": string(mutedBy)},
	})
	return copyParticipant(p), nil
}

// SetConnectionQuality stores the latest 0..100 quality sample for id.
func (m *ParticipantManager) SetConnectionQuality(id domain.ParticipantID, quality float64) error {
	if quality < 0 || quality > 100 {
		return errors.NewInvalidInputError("connection quality must be within 0..100")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.participants[id]
	if !ok {
		return errors.NewParticipantNotFoundError(string(id))
	}
	q := quality
	p.ConnectionQuality = &q
	return nil
}

// AverageConnectionQuality averages the participants that reported a sample. Zero when none did.
func (m *ParticipantManager) AverageConnectionQuality() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sum float64
	n := 0
	for _, p := range m.participants {
		if p.ConnectionQuality != nil {
			sum += *p.ConnectionQuality
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// GetParticipant returns a copy of the participant record.
func (m *ParticipantManager) GetParticipant(id domain.ParticipantID) (domain.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.participants[id]
	if !ok {
		return domain.Participant{}, errors.NewParticipantNotFoundError(string(id))
	}
	return copyParticipant(p), nil
}

// GetParticipants returns every participant ever joined, in join order.
func (m *ParticipantManager) GetParticipants() []domain.Participant {
	return m.filterParticipants(func(*domain.Participant) bool { return true })
}

func (m *ParticipantManager) GetConnectedParticipants() []domain.Participant {
	return m.filterParticipants(func(p *domain.Participant) bool { return p.IsConnected })
}

func (m *ParticipantManager) filterParticipants(keep func(*domain.Participant) bool) []domain.Participant {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Participant, 0, len(m.participantOrder))
	for _, id := range m.participantOrder {
		if p := m.participants[id]; keep(p) {
			out = append(out, copyParticipant(p))
		}
	}
	return out
}

// GetPendingInvitations lists pending invitations. Pending invitations past
// their expiry are moved to expired first and left out.
func (m *ParticipantManager) GetPendingInvitations() []domain.Invitation {
	return m.ListInvitations(domain.InvitationFilter{Status: domain.InvitationPending})
}

// ListInvitations lists invitations matching filter in creation order, after applying lazy expiry.
func (m *ParticipantManager) ListInvitations(filter domain.InvitationFilter) []domain.Invitation {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make([]domain.Invitation, 0)
	for _, id := range m.invitationOrder {
		inv := m.invitations[id]
		if inv.Status == domain.InvitationPending && inv.ExpiredAt(now) {
			inv.Status = domain.InvitationExpired
		}
		if filter.Matches(*inv) {
			out = append(out, *inv)
		}
	}
	return out
}

func copyParticipant(p *domain.Participant) domain.Participant {
	out := *p
	if p.ConnectionQuality != nil {
		q := *p.ConnectionQuality
		out.ConnectionQuality = &q
	}
	return out
}
