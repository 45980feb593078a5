package outbound

import (
	"context"

	"bidhall-marketplace-service/internal/domain/notification"
)

// Notifier delivers notifications to users and administrators. Delivery is
// best effort; failures are logged by the implementation and never bubble
// into the calling lifecycle operation.
type Notifier interface {
	// Notify persists and dispatches a notification to its target
	Notify(ctx context.Context, n *notification.Notification)
}
