package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/cjs-api/internal/config"
	"github.com/spec-kit/cjs-api/internal/events"
)

// NotificationService handles emitting notifications for identity events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventUserRegistered, n.handleUserRegistered)
	n.dispatcher.Subscribe(events.EventUserSignedIn, n.handleUserSignedIn)
}

func (n *NotificationService) handleUserRegistered(ctx context.Context, event events.Event) error {
	n.logger.Info("UserRegistered", zap.String("user_id", event.UserID))
	payload, ok := event.Payload.(events.UserRegisteredPayload)
	if !ok {
		return nil
	}
	n.sendWelcomeEmailStub(ctx, event, payload)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleUserSignedIn(ctx context.Context, event events.Event) error {
	n.logger.Debug("UserSignedIn", zap.String("user_id", event.UserID))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendWelcomeEmailStub(_ context.Context, event events.Event, payload events.UserRegisteredPayload) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendWelcomeEmailStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("to", payload.Email),
		zap.String("user_id", event.UserID))
}

func (n *NotificationService) sendWebhookNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("user_id", event.UserID),
		zap.String("event_type", string(event.Type)))
}
