package ports

import (
	"context"

	"telecare/internal/core/domain"
)

// MediaCapability acquires and releases capture resources. Release must be idempotent.
type MediaCapability interface {
	AcquireLocalMedia(ctx context.Context, constraints domain.MediaConstraints) (*domain.MediaHandle, error)
	AcquireScreenCapture(ctx context.Context, constraints domain.ScreenCaptureConstraints) (*domain.MediaHandle, error)
	Release(ctx context.Context, handle *domain.MediaHandle) error
}

// InvitationNotifier delivers an invitation to the invitee. The core never retries delivery.
type InvitationNotifier interface {
	Deliver(ctx context.Context, invitation domain.Invitation) error
}

// SessionEventPublisher announces lifecycle changes to other instances.
type SessionEventPublisher interface {
	PublishSessionEnded(ctx context.Context, result *domain.EndResult) error
}
