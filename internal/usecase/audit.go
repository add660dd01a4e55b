package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/invoice-auth/internal/core/domain"
	"github.com/arklim/invoice-auth/internal/core/port"
	"github.com/arklim/invoice-auth/internal/infra/logger"
)

type clientIPKey struct{}

// WithClientIP records the caller's address for throttling and audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, strings.TrimSpace(ip))
}

// ClientIPFromContext returns the address stored by WithClientIP.
func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// auditor publishes audit events. Publishing never fails an auth flow.
type auditor struct {
	publisher port.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

func (a *auditor) emit(ctx context.Context, eventType domain.AuthEventType, acct *domain.Account, reason string, metadata map[string]any) {
	if a == nil || a.publisher == nil {
		return
	}

	event := domain.AuthEvent{
		EventID:    uuid.NewString(),
		Type:       eventType,
		Reason:     reason,
		OccurredAt: a.now(),
		Metadata:   metadata,
	}
	if acct != nil {
		event.AccountID = acct.ID
		event.Email = acct.Email
	}
	if ip := ClientIPFromContext(ctx); ip != "" {
		event.IPAddress = &ip
	}

	if err := a.publisher.PublishAuthEvent(ctx, event); err != nil {
		logger.WithContext(ctx, a.logger).Warn("publish auth event failed",
			zap.String("event_type", string(eventType)),
			zap.String("account_id", event.AccountID),
			zap.Error(err),
		)
	}
}
