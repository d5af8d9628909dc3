package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/service"
)

const relayRetryDelay = 5 * time.Second

// StartNotificationWorker registers notification handlers and, when a relay is given,
// keeps it subscribed until ctx is done.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService, relay *events.RedisRelay, logger *zap.Logger) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if relay == nil {
		return
	}
	go runRelay(ctx, relay, logger)
}

func runRelay(ctx context.Context, relay *events.RedisRelay, logger *zap.Logger) {
	for {
		err := relay.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		logger.Warn("live relay stopped; resubscribing", zap.Error(err), zap.Duration("delay", relayRetryDelay))
		select {
		case <-ctx.Done():
			return
		case <-time.After(relayRetryDelay):
		}
	}
}
