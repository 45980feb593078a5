package auction

import (
	"time"

	"github.com/google/uuid"
)

// Participant represents a user that paid the participation fee for an
// auction. One row per (auction, user); duplicate joins are rejected.
type Participant struct {
	ID        uuid.UUID `json:"id"`
	AuctionID uuid.UUID `json:"auction_id"`
	UserID    uuid.UUID `json:"user_id"`
	JoinedAt  time.Time `json:"joined_at"`
}
