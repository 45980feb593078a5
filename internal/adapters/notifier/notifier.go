package notifier

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bidhall-marketplace-service/internal/domain/notification"
	"bidhall-marketplace-service/internal/ports/outbound"
)

// Notifier persists notifications and pushes them to connected clients
// through the broadcaster. Both steps are best effort: a failed write or
// publish is logged and the caller never sees it.
type Notifier struct {
	notificationRepo outbound.NotificationRepository
	broadcaster      outbound.Broadcaster
	logger           zerolog.Logger
}

type NotifierParams struct {
	NotificationRepo outbound.NotificationRepository
	Broadcaster      outbound.Broadcaster
	Logger           zerolog.Logger
}

func NewNotifier(params NotifierParams) *Notifier {
	return &Notifier{
		notificationRepo: params.NotificationRepo,
		broadcaster:      params.Broadcaster,
		logger:           params.Logger.With().Str("component", "notifier").Logger(),
	}
}

// Notify persists the notification and publishes it to the target's topic.
func (n *Notifier) Notify(ctx context.Context, notif *notification.Notification) {
	if notif.ID == uuid.Nil {
		notif.ID = uuid.New()
	}
	if notif.CreatedAt.IsZero() {
		notif.CreatedAt = time.Now()
	}

	if err := n.notificationRepo.Create(ctx, notif); err != nil {
		n.logger.Error().
			Err(err).
			Str("notification_id", notif.ID.String()).
			Str("type", string(notif.Type)).
			Msg("Failed to persist notification")
		// Still push it live; a missed inbox row beats a missed push.
	}

	topic := n.topicFor(notif)
	event := outbound.Event{
		Type: outbound.EventTypeNotification,
		Data: map[string]interface{}{
			"notification_id": notif.ID,
			"type":            notif.Type,
			"message":         notif.Message,
			"payload":         notif.Payload,
		},
		Timestamp: notif.CreatedAt.Unix(),
	}

	if err := n.broadcaster.Publish(ctx, topic, event); err != nil {
		n.logger.Error().
			Err(err).
			Str("notification_id", notif.ID.String()).
			Str("topic", string(topic)).
			Msg("Failed to publish notification")
		return
	}

	n.logger.Info().
		Str("notification_id", notif.ID.String()).
		Str("type", string(notif.Type)).
		Str("topic", string(topic)).
		Msg("Notification dispatched")
}

func (n *Notifier) topicFor(notif *notification.Notification) outbound.Topic {
	if notif.Target.UserID != nil {
		return outbound.UserTopic(*notif.Target.UserID)
	}
	return outbound.AdminTopic()
}
