package auction

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bidhall-marketplace-service/internal/domain/shared"
)

// Status represents the current status of an auction
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusFailed    Status = "failed"
	StatusDeleted   Status = "deleted"
)

// ParticipationFeeRate is the platform policy: the fee to join a started
// auction is 10% of the buy-now price (or the starting price when no
// buy-now price is configured).
var ParticipationFeeRate = decimal.NewFromFloat(0.1)

// DefaultBidIncrement is applied when an auction is created without one.
var DefaultBidIncrement = decimal.NewFromInt(10)

// CreateStartTolerance allows a start time slightly in the past at creation.
const CreateStartTolerance = time.Hour

// transitions lists the legal forward moves of the state machine. Terminal
// states have no outgoing edges except cancelled -> deleted, which backs the
// administrative delete of an already-cancelled auction.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusPending, StatusPublished, StatusCancelled, StatusDeleted},
	StatusPending:   {StatusPublished, StatusCancelled, StatusDeleted},
	StatusPublished: {StatusStarted, StatusPending, StatusCompleted, StatusCancelled, StatusDeleted},
	StatusStarted:   {StatusPending, StatusCompleted, StatusExpired, StatusFailed, StatusCancelled},
	StatusCancelled: {StatusDeleted},
}

// Terminal returns true if no lifecycle transition may leave this status.
// Cancelled is terminal for the auction lifecycle even though an
// administrative delete may still re-label the row.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusExpired, StatusFailed, StatusDeleted:
		return true
	}
	return false
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NonTerminalStatuses returns the statuses that count as "active" for the
// one-auction-per-item invariant.
func NonTerminalStatuses() []Status {
	return []Status{StatusDraft, StatusPending, StatusPublished, StatusStarted}
}

// Auction represents a timed sale event for one item
type Auction struct {
	ID                uuid.UUID        `json:"id"`
	ItemID            uuid.UUID        `json:"item_id"`
	CreatorID         uuid.UUID        `json:"creator_id"`
	Title             string           `json:"title"`
	Description       string           `json:"description"`
	StartTime         time.Time        `json:"start_time"`
	EndTime           time.Time        `json:"end_time"`
	Status            Status           `json:"status"`
	StartingPrice     decimal.Decimal  `json:"starting_price"`
	BidIncrement      decimal.Decimal  `json:"bid_increment"`
	BuyNowPrice       *decimal.Decimal `json:"buy_now_price,omitempty"`
	CurrentHighestBid *decimal.Decimal `json:"current_highest_bid,omitempty"`
	HighestBidID      *uuid.UUID       `json:"highest_bid_id,omitempty"`
	WinnerID          *uuid.UUID       `json:"winner_id,omitempty"`
	FinalPrice        *decimal.Decimal `json:"final_price,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	DeletedAt         *time.Time       `json:"deleted_at,omitempty"`
}

// CanBid returns true if a bid can be placed on this auction
func (a *Auction) CanBid() bool {
	return a.Status == StatusStarted
}

// IsPublished returns true while the auction waits for its start job
func (a *Auction) IsPublished() bool {
	return a.Status == StatusPublished
}

// ParticipationFee derives the fee required to join this auction.
func (a *Auction) ParticipationFee() decimal.Decimal {
	base := a.StartingPrice
	if a.BuyNowPrice != nil {
		base = *a.BuyNowPrice
	}
	return base.Mul(ParticipationFeeRate)
}

// TransitionTo moves the auction to a new status, enforcing the state
// machine. The end-time and highest-bid invariants are enforced at the
// persistence layer; this guards status monotonicity only.
func (a *Auction) TransitionTo(to Status) error {
	if !CanTransition(a.Status, to) {
		return shared.ErrInvalidTransition
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	return nil
}

// SetWinner records the winning bidder and the final price.
func (a *Auction) SetWinner(winnerID uuid.UUID, finalPrice decimal.Decimal) {
	a.WinnerID = &winnerID
	a.FinalPrice = &finalPrice
	a.UpdatedAt = time.Now()
}
