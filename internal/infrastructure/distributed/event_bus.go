package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type EventType string

const (
	EventInvitationCreated EventType = "invitation.created"
	EventSessionEnded      EventType = "session.ended"
)

// Event is one message on the shared channel.
type Event struct {
	Type       EventType        `json:"type"`
	InstanceID string           `json:"instance_id"`
	Timestamp  time.Time        `json:"timestamp"`
	SessionID  domain.SessionID `json:"session_id,omitempty"`
	Payload    json.RawMessage  `json:"payload,omitempty"`
}

// EventBus fans session events out to other instances over redis pub/sub.
// Delivery workers subscribe and send invitation mail out of process.
type EventBus struct {
	client     redis.UniversalClient
	instanceID string
	channel    string
	logger     *zap.SugaredLogger
}

var (
	_ ports.InvitationNotifier    = (*EventBus)(nil)
	_ ports.SessionEventPublisher = (*EventBus)(nil)
)

func NewEventBus(client redis.UniversalClient, instanceID, channel string, logger *zap.SugaredLogger) *EventBus {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		channel:    channel,
		logger:     logger,
	}
}

func (eb *EventBus) Publish(ctx context.Context, event *Event) error {
	event.InstanceID = eb.instanceID
	event.Timestamp = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := eb.client.Publish(ctx, eb.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("Published event", "type", event.Type, "session_id", event.SessionID)
	return nil
}

// Deliver hands an invitation to whichever worker subscribes to the channel.
// A publish that reaches no subscriber counts as a failed delivery.
func (eb *EventBus) Deliver(ctx context.Context, inv domain.Invitation) error {
	payload, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("failed to marshal invitation: %w", err)
	}
	event := &Event{
		Type:       EventInvitationCreated,
		InstanceID: eb.instanceID,
		Timestamp:  time.Now().UTC(),
		SessionID:  inv.SessionID,
		Payload:    payload,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	receivers, err := eb.client.Publish(ctx, eb.channel, data).Result()
	if err != nil {
		return fmt.Errorf("failed to publish invitation: %w", err)
	}
	if receivers == 0 {
		return fmt.Errorf("no delivery worker subscribed to %s", eb.channel)
	}
	return nil
}

// PublishSessionEnded announces an archived session export.
func (eb *EventBus) PublishSessionEnded(ctx context.Context, result *domain.EndResult) error {
	payload, err := json.Marshal(map[string]interface{}{
		"duration":         result.Analytics.TotalDuration,
		"participantCount": result.Analytics.ParticipantCount,
		"technicalIssues":  result.Analytics.TechnicalIssuesCount,
		"complianceScore":  result.Analytics.ComplianceScore,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session summary: %w", err)
	}
	return eb.Publish(ctx, &Event{
		Type:      EventSessionEnded,
		SessionID: result.Change.Session.ID,
		Payload:   payload,
	})
}

// Subscribe blocks, calling handler for events from other instances until ctx ends.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(*Event) error) error {
	pubsub := eb.client.Subscribe(ctx, eb.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			event, err := decodeEvent(msg.Payload)
			if err != nil {
				eb.logger.Warnw("Failed to unmarshal event", "error", err)
				continue
			}
			if event.InstanceID == eb.instanceID && event.Type != EventInvitationCreated {
				continue
			}
			if err := handler(event); err != nil {
				eb.logger.Warnw("Error handling event", "type", event.Type, "error", err)
			}
		}
	}
}

func decodeEvent(payload string) (*Event, error) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// InvitationFromEvent decodes the invitation carried by an invitation.created event.
func InvitationFromEvent(event *Event) (domain.Invitation, error) {
	var inv domain.Invitation
	if event.Type != EventInvitationCreated {
		return inv, fmt.Errorf("event %s carries no invitation", event.Type)
	}
	err := json.Unmarshal(event.Payload, &inv)
	return inv, err
}
