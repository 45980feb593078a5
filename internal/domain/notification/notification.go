package notification

import (
	"time"

	"github.com/google/uuid"

	"bidhall-marketplace-service/internal/domain/shared"
)

// Type labels what happened; payload details ride alongside.
type Type string

const (
	TypeAuctionStarted   Type = "auction.started"
	TypeAuctionEnded     Type = "auction.ended"
	TypeAuctionCancelled Type = "auction.cancelled"
	TypeAuctionFailed    Type = "auction.failed"
	TypeOutbid           Type = "bid.outbid"
	TypeAuctionWon       Type = "auction.won"
	TypeFeeRefunded      Type = "wallet.fee_refunded"
)

// Target addresses a notification either to one user or to every user
// holding a role. Exactly one of the two fields is set.
type Target struct {
	Role   shared.Role `json:"role,omitempty"`
	UserID *uuid.UUID  `json:"user_id,omitempty"`
}

// UserTarget addresses a single user.
func UserTarget(userID uuid.UUID) Target {
	return Target{UserID: &userID}
}

// AdminTarget addresses every administrator.
func AdminTarget() Target {
	return Target{Role: shared.RoleAdmin}
}

// Notification is a persisted message destined for a user or role.
type Notification struct {
	ID        uuid.UUID              `json:"id"`
	Target    Target                 `json:"target"`
	Type      Type                   `json:"type"`
	Message   string                 `json:"message"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Read      bool                   `json:"read"`
	CreatedAt time.Time              `json:"created_at"`
}
