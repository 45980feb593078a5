package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"bidhall-marketplace-service/internal/domain/notification"
	"bidhall-marketplace-service/internal/domain/shared"
)

// NotificationRepository implements the notification persistence interface
type NotificationRepository struct {
	conn *Connection
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(conn *Connection) *NotificationRepository {
	return &NotificationRepository{conn: conn}
}

// Create persists a notification
func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	query := `
		INSERT INTO notifications (id, target_role, target_user_id, type, message, payload, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var targetRole sql.NullString
	if n.Target.Role != "" {
		targetRole = sql.NullString{String: string(n.Target.Role), Valid: true}
	}

	_, err = r.conn.GetDB().ExecContext(ctx, query,
		n.ID,
		targetRole,
		n.Target.UserID,
		n.Type,
		n.Message,
		payload,
		n.Read,
		n.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

// ListForUser retrieves notifications addressed to a user or their role
func (r *NotificationRepository) ListForUser(ctx context.Context, userID uuid.UUID, role shared.Role, page, pageSize int) ([]*notification.Notification, error) {
	query := `
		SELECT id, target_role, target_user_id, type, message, payload, read, created_at
		FROM notifications
		WHERE target_user_id = $1 OR target_role = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.conn.GetDB().QueryContext(ctx, query, userID, role, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*notification.Notification
	for rows.Next() {
		var n notification.Notification
		var targetRole sql.NullString
		var targetUserID uuid.NullUUID
		var payload []byte

		err := rows.Scan(
			&n.ID,
			&targetRole,
			&targetUserID,
			&n.Type,
			&n.Message,
			&payload,
			&n.Read,
			&n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}

		if targetRole.Valid {
			n.Target.Role = shared.Role(targetRole.String)
		}
		if targetUserID.Valid {
			n.Target.UserID = &targetUserID.UUID
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &n.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal notification payload: %w", err)
			}
		}

		notifications = append(notifications, &n)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}

	return notifications, nil
}

// MarkRead marks a notification as read
func (r *NotificationRepository) MarkRead(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE notifications SET read = TRUE WHERE id = $1`

	result, err := r.conn.GetDB().ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return shared.ErrNotificationNotFound
	}

	return nil
}
