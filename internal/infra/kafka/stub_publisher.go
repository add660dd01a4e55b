package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/invoice-auth/internal/core/domain"
	"github.com/arklim/invoice-auth/internal/core/port"
	"github.com/arklim/invoice-auth/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

// PublishAuthEvent logs the event with the e-mail and address masked.
func (p *StubPublisher) PublishAuthEvent(ctx context.Context, event domain.AuthEvent) error {
	at := event.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	fields := []zap.Field{
		zap.String("event_id", event.EventID),
		zap.String("event_type", string(event.Type)),
		zap.String("account_id", event.AccountID),
		zap.String("email", logger.MaskEmail(event.Email)),
		zap.Time("timestamp", at.UTC()),
	}
	if event.IPAddress != nil {
		fields = append(fields, zap.String("ip", logger.MaskIP(*event.IPAddress)))
	}
	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}
	if len(event.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", event.Metadata))
	}

	logger.WithContext(ctx, p.logger).Info("Stub event published", fields...)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
