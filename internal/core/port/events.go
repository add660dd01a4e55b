package port

import (
	"context"

	"github.com/arklim/invoice-auth/internal/core/domain"
)

// EventPublisher publishes audit events to the message bus.
type EventPublisher interface {
	PublishAuthEvent(ctx context.Context, event domain.AuthEvent) error
}
