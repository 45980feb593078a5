package bid

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bidhall-marketplace-service/internal/domain/shared"
)

// Anti-snipe policy: a bid landing inside the window pushes the end time
// out by the extension, measured from the moment the bid is accepted.
const (
	SnipeWindow    = 5 * time.Minute
	SnipeExtension = 5 * time.Minute
)

// Bid represents a bid placed on an auction
type Bid struct {
	ID        uuid.UUID       `json:"id"`
	AuctionID uuid.UUID       `json:"auction_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// NextValidBid computes the lowest amount the next bid may carry. With no
// bids yet the floor is the starting price itself; afterwards it is the
// current highest bid plus one increment.
func NextValidBid(currentHighest *decimal.Decimal, increment, startingPrice decimal.Decimal) decimal.Decimal {
	if currentHighest == nil {
		return startingPrice
	}
	return currentHighest.Add(increment)
}

// ValidateAmount checks a candidate amount against the floor and the
// increment law: the amount must sit on an exact increment step above the
// floor, not merely above it.
func ValidateAmount(amount, floor, increment decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return shared.ErrBidAmountInvalid
	}
	if amount.LessThan(floor) {
		return shared.ErrBidBelowFloor
	}
	if increment.IsPositive() && !amount.Sub(floor).Mod(increment).IsZero() {
		return shared.ErrBidNotOnIncrement
	}
	return nil
}

// ShouldExtend reports whether a bid accepted at now falls inside the
// anti-snipe window of the given end time.
func ShouldExtend(endTime, now time.Time) bool {
	return endTime.Sub(now) <= SnipeWindow && now.Before(endTime)
}
