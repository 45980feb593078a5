package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bidhall-marketplace-service/internal/domain/auction"
	"bidhall-marketplace-service/internal/domain/bid"
	"bidhall-marketplace-service/internal/domain/shared"
	"bidhall-marketplace-service/internal/ports/outbound"
)

// BidRepository implements the bid repository interface
type BidRepository struct {
	conn *Connection
}

// NewBidRepository creates a new bid repository
func NewBidRepository(conn *Connection) *BidRepository {
	return &BidRepository{conn: conn}
}

// PlaceBid validates and inserts a bid while holding a row lock on the
// auction. The lock serializes concurrent bidders on the same auction so
// the highest bid only ever moves up, and the anti-snipe extension is
// decided against the end time the winning transaction observes.
func (r *BidRepository) PlaceBid(ctx context.Context, params outbound.PlaceBidParams) (*outbound.PlaceBidResult, error) {
	var result outbound.PlaceBidResult

	err := r.conn.ExecuteTransaction(func(tx *sql.Tx) error {
		lockQuery := `
			SELECT status, end_time, starting_price, bid_increment, current_highest_bid
			FROM auctions
			WHERE id = $1 AND deleted_at IS NULL
			FOR UPDATE
		`

		var status auction.Status
		var endTime time.Time
		var startingPrice, increment decimal.Decimal
		var currentHighest decimal.NullDecimal

		err := tx.QueryRowContext(ctx, lockQuery, params.AuctionID).Scan(
			&status,
			&endTime,
			&startingPrice,
			&increment,
			&currentHighest,
		)
		if err != nil {
			if err == sql.ErrNoRows {
				return shared.ErrAuctionNotFound
			}
			return fmt.Errorf("failed to lock auction: %w", err)
		}

		now := time.Now()

		if status != auction.StatusStarted {
			return shared.ErrAuctionNotAcceptingBids
		}
		if !now.Before(endTime) {
			return shared.ErrAuctionAlreadyEnded
		}

		var highestPtr *decimal.Decimal
		if currentHighest.Valid {
			highestPtr = &currentHighest.Decimal
		}
		floor := bid.NextValidBid(highestPtr, increment, startingPrice)
		if err := bid.ValidateAmount(params.Amount, floor, increment); err != nil {
			return err
		}

		// Capture who is being outbid before the auction row changes.
		prevQuery := `
			SELECT user_id, amount
			FROM bids
			WHERE auction_id = $1
			ORDER BY amount DESC, created_at ASC
			LIMIT 1
		`
		var prevBidderID uuid.UUID
		var prevAmount decimal.Decimal
		err = tx.QueryRowContext(ctx, prevQuery, params.AuctionID).Scan(&prevBidderID, &prevAmount)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to get previous highest bid: %w", err)
		}
		if err == nil {
			result.PreviousBidderID = &prevBidderID
			result.PreviousAmount = &prevAmount
		}

		newBid := &bid.Bid{
			ID:        uuid.New(),
			AuctionID: params.AuctionID,
			UserID:    params.UserID,
			Amount:    params.Amount,
			CreatedAt: now,
		}

		insertQuery := `
			INSERT INTO bids (id, auction_id, user_id, amount, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`
		if _, err := tx.ExecContext(ctx, insertQuery,
			newBid.ID, newBid.AuctionID, newBid.UserID, newBid.Amount, newBid.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert bid: %w", err)
		}

		newEndTime := endTime
		if bid.ShouldExtend(endTime, now) {
			newEndTime = endTime.Add(bid.SnipeExtension)
			result.EndTimeExtended = true
		}

		updateQuery := `
			UPDATE auctions
			SET current_highest_bid = $2, highest_bid_id = $3, end_time = $4, updated_at = $5
			WHERE id = $1
		`
		if _, err := tx.ExecContext(ctx, updateQuery,
			params.AuctionID, newBid.Amount, newBid.ID, newEndTime, now,
		); err != nil {
			return fmt.Errorf("failed to update auction highest bid: %w", err)
		}

		result.Bid = newBid
		result.NewEndTime = newEndTime
		return nil
	})

	if err != nil {
		return nil, err
	}

	return &result, nil
}

// GetByID retrieves a bid by ID
func (r *BidRepository) GetByID(ctx context.Context, id uuid.UUID) (*bid.Bid, error) {
	query := `
		SELECT id, auction_id, user_id, amount, created_at
		FROM bids
		WHERE id = $1
	`

	var b bid.Bid
	err := r.conn.GetDB().QueryRowContext(ctx, query, id).Scan(
		&b.ID,
		&b.AuctionID,
		&b.UserID,
		&b.Amount,
		&b.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, shared.ErrNoBidsFound
		}
		return nil, fmt.Errorf("failed to get bid: %w", err)
	}

	return &b, nil
}

// GetByAuctionID retrieves all bids for an auction, newest first
func (r *BidRepository) GetByAuctionID(ctx context.Context, auctionID uuid.UUID) ([]*bid.Bid, error) {
	query := `
		SELECT id, auction_id, user_id, amount, created_at
		FROM bids
		WHERE auction_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.conn.GetDB().QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bids by auction ID: %w", err)
	}
	defer rows.Close()

	var bids []*bid.Bid
	for rows.Next() {
		var b bid.Bid
		err := rows.Scan(
			&b.ID,
			&b.AuctionID,
			&b.UserID,
			&b.Amount,
			&b.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, &b)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bids: %w", err)
	}

	return bids, nil
}

// GetHighestBid retrieves the highest bid for an auction
func (r *BidRepository) GetHighestBid(ctx context.Context, auctionID uuid.UUID) (*bid.Bid, error) {
	query := `
		SELECT id, auction_id, user_id, amount, created_at
		FROM bids
		WHERE auction_id = $1
		ORDER BY amount DESC, created_at ASC
		LIMIT 1
	`

	var b bid.Bid
	err := r.conn.GetDB().QueryRowContext(ctx, query, auctionID).Scan(
		&b.ID,
		&b.AuctionID,
		&b.UserID,
		&b.Amount,
		&b.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, shared.ErrNoBidsFound
		}
		return nil, fmt.Errorf("failed to get highest bid: %w", err)
	}

	return &b, nil
}
