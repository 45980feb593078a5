package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bidhall-marketplace-service/internal/domain/auction"
	"bidhall-marketplace-service/internal/domain/shared"
)

// AuctionRepository implements the auction repository interface
type AuctionRepository struct {
	conn *Connection
}

// NewAuctionRepository creates a new auction repository
func NewAuctionRepository(conn *Connection) *AuctionRepository {
	return &AuctionRepository{conn: conn}
}

const auctionColumns = `id, item_id, creator_id, title, description, start_time, end_time, status,
		starting_price, bid_increment, buy_now_price, current_highest_bid, highest_bid_id,
		winner_id, final_price, created_at, updated_at, deleted_at`

// Create creates a new auction
func (r *AuctionRepository) Create(ctx context.Context, a *auction.Auction) error {
	query := `
		INSERT INTO auctions (` + auctionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err := r.conn.GetDB().ExecContext(ctx, query,
		a.ID,
		a.ItemID,
		a.CreatorID,
		a.Title,
		a.Description,
		a.StartTime,
		a.EndTime,
		a.Status,
		a.StartingPrice,
		a.BidIncrement,
		decimalOrNull(a.BuyNowPrice),
		decimalOrNull(a.CurrentHighestBid),
		a.HighestBidID,
		a.WinnerID,
		decimalOrNull(a.FinalPrice),
		a.CreatedAt,
		a.UpdatedAt,
		a.DeletedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create auction: %w", err)
	}

	return nil
}

// GetByID retrieves an auction by ID, excluding soft-deleted rows
func (r *AuctionRepository) GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	query := `
		SELECT ` + auctionColumns + `
		FROM auctions
		WHERE id = $1 AND deleted_at IS NULL
	`

	row := r.conn.GetDB().QueryRowContext(ctx, query, id)
	a, err := scanAuction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, shared.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}

	return a, nil
}

// List retrieves a list of auctions with optional filters
func (r *AuctionRepository) List(ctx context.Context, status *auction.Status, page, pageSize int) ([]*auction.Auction, error) {
	baseQuery := `
		SELECT ` + auctionColumns + `
		FROM auctions
		WHERE deleted_at IS NULL
	`

	var args []interface{}
	argCount := 1

	if status != nil {
		baseQuery += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, *status)
		argCount++
	}

	query := baseQuery + fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argCount, argCount+1)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.conn.GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list auctions: %w", err)
	}
	defer rows.Close()

	return collectAuctions(rows)
}

// GetNonTerminalByItemID retrieves active auctions for a specific item
func (r *AuctionRepository) GetNonTerminalByItemID(ctx context.Context, itemID uuid.UUID) ([]*auction.Auction, error) {
	query := `
		SELECT ` + auctionColumns + `
		FROM auctions
		WHERE item_id = $1
		  AND status IN ('draft', 'pending', 'published', 'started')
		  AND deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := r.conn.GetDB().QueryContext(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active auctions by item ID: %w", err)
	}
	defer rows.Close()

	return collectAuctions(rows)
}

// GetEndingWithin retrieves started auctions whose end time falls inside the window
func (r *AuctionRepository) GetEndingWithin(ctx context.Context, window time.Duration) ([]*auction.Auction, error) {
	query := `
		SELECT ` + auctionColumns + `
		FROM auctions
		WHERE status = 'started'
		  AND end_time > NOW()
		  AND end_time <= NOW() + $1::interval
		  AND deleted_at IS NULL
		ORDER BY end_time ASC
	`

	rows, err := r.conn.GetDB().QueryContext(ctx, query, window.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get auctions ending soon: %w", err)
	}
	defer rows.Close()

	return collectAuctions(rows)
}

// Update updates an auction
func (r *AuctionRepository) Update(ctx context.Context, a *auction.Auction) error {
	query := `
		UPDATE auctions
		SET title = $2, description = $3, start_time = $4, end_time = $5, status = $6,
		    starting_price = $7, bid_increment = $8, buy_now_price = $9,
		    current_highest_bid = $10, highest_bid_id = $11, winner_id = $12,
		    final_price = $13, updated_at = $14
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := r.conn.GetDB().ExecContext(ctx, query,
		a.ID,
		a.Title,
		a.Description,
		a.StartTime,
		a.EndTime,
		a.Status,
		a.StartingPrice,
		a.BidIncrement,
		decimalOrNull(a.BuyNowPrice),
		decimalOrNull(a.CurrentHighestBid),
		a.HighestBidID,
		a.WinnerID,
		decimalOrNull(a.FinalPrice),
		a.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update auction: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return shared.ErrAuctionNotFound
	}

	return nil
}

// SoftDelete marks an auction deleted without removing the row
func (r *AuctionRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE auctions
		SET status = 'deleted', deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := r.conn.GetDB().ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete auction: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return shared.ErrAuctionNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuction(row rowScanner) (*auction.Auction, error) {
	var a auction.Auction
	var buyNow, highest, finalPrice decimal.NullDecimal
	var highestBidID, winnerID uuid.NullUUID
	var deletedAt sql.NullTime

	err := row.Scan(
		&a.ID,
		&a.ItemID,
		&a.CreatorID,
		&a.Title,
		&a.Description,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&a.StartingPrice,
		&a.BidIncrement,
		&buyNow,
		&highest,
		&highestBidID,
		&winnerID,
		&finalPrice,
		&a.CreatedAt,
		&a.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	if buyNow.Valid {
		a.BuyNowPrice = &buyNow.Decimal
	}
	if highest.Valid {
		a.CurrentHighestBid = &highest.Decimal
	}
	if highestBidID.Valid {
		a.HighestBidID = &highestBidID.UUID
	}
	if winnerID.Valid {
		a.WinnerID = &winnerID.UUID
	}
	if finalPrice.Valid {
		a.FinalPrice = &finalPrice.Decimal
	}
	if deletedAt.Valid {
		a.DeletedAt = &deletedAt.Time
	}

	return &a, nil
}

func collectAuctions(rows *sql.Rows) ([]*auction.Auction, error) {
	var auctions []*auction.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auctions: %w", err)
	}

	return auctions, nil
}

func decimalOrNull(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
