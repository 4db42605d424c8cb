// Package notification delivers invitations to invitees.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"
	"telecare/pkg/utils"

	"go.uber.org/zap"
)

// LogNotifier only logs invitations. It is the default for local runs.
type LogNotifier struct {
	logger *zap.SugaredLogger
}

var _ ports.InvitationNotifier = (*LogNotifier)(nil)

func NewLogNotifier(logger *zap.SugaredLogger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Deliver(ctx context.Context, inv domain.Invitation) error {
	n.logger.Infow("Invitation issued",
		"invitation_id", inv.ID,
		"session_id", inv.SessionID,
		"role", inv.Role,
		"invitee", utils.MaskEmail(inv.InviteeEmail),
		"expires_at", inv.ExpiresAt,
	)
	return nil
}

// WebhookNotifier POSTs the invitation as JSON to a configured endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *zap.SugaredLogger
}

var _ ports.InvitationNotifier = (*WebhookNotifier)(nil)

func NewWebhookNotifier(url string, timeout time.Duration, logger *zap.SugaredLogger) *WebhookNotifier {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type webhookPayload struct {
	Event      string            `json:"event"`
	Invitation domain.Invitation `json:"invitation"`
}

// Deliver makes exactly one attempt. Any non-2xx response is a failure.
func (n *WebhookNotifier) Deliver(ctx context.Context, inv domain.Invitation) error {
	body, err := json.Marshal(webhookPayload{Event: "invitation.created", Invitation: inv})
	if err != nil {
		return fmt.Errorf("failed to marshal invitation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Telecare-Invitation", string(inv.ID))

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	n.logger.Debugw("Invitation delivered via webhook", "invitation_id", inv.ID, "status", resp.StatusCode)
	return nil
}
