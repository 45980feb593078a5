package inbound

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bidhall-marketplace-service/internal/domain/auction"
	"bidhall-marketplace-service/internal/domain/bid"
	"bidhall-marketplace-service/internal/domain/wallet"
)

// AuctionService defines the interface for auction lifecycle operations
type AuctionService interface {
	// CreateAuction creates a new auction in draft or pending status
	CreateAuction(ctx context.Context, req CreateAuctionRequest) (*auction.Auction, error)

	// GetAuction retrieves an auction by ID
	GetAuction(ctx context.Context, auctionID uuid.UUID) (*auction.Auction, error)

	// ListAuctions retrieves a list of auctions
	ListAuctions(ctx context.Context, req ListAuctionsRequest) ([]*auction.Auction, error)

	// UpdateAuction updates a draft or pending auction's details
	UpdateAuction(ctx context.Context, req UpdateAuctionRequest) (*auction.Auction, error)

	// PublishAuction moves an auction to published and schedules its
	// start and end jobs. Admin only
	PublishAuction(ctx context.Context, actorID, auctionID uuid.UUID) (*auction.Auction, error)

	// JoinAuction charges the participation fee and registers the user
	JoinAuction(ctx context.Context, auctionID, userID uuid.UUID) (*auction.Participant, error)

	// LeaveAuction removes a participant; the fee is not refunded once
	// the auction has started
	LeaveAuction(ctx context.Context, auctionID, userID uuid.UUID) error

	// CompleteBuyNow ends the auction immediately at the buy-now price
	CompleteBuyNow(ctx context.Context, auctionID, userID uuid.UUID) (*auction.Auction, error)

	// CancelAuction cancels a non-terminal auction and refunds fees. Admin only
	CancelAuction(ctx context.Context, actorID, auctionID uuid.UUID, reason string) error

	// DeleteAuction soft-deletes a draft, pending or cancelled auction. Admin only
	DeleteAuction(ctx context.Context, actorID, auctionID uuid.UUID) error

	// GetAuctionsEndingSoon retrieves started auctions ending inside the window
	GetAuctionsEndingSoon(ctx context.Context, window time.Duration) ([]*auction.Auction, error)
}

// BidService defines the interface for bid operations
type BidService interface {
	// PlaceBid places a new bid on an auction
	PlaceBid(ctx context.Context, req PlaceBidRequest) (*bid.Bid, error)

	// GetBids retrieves bids for an auction
	GetBids(ctx context.Context, auctionID uuid.UUID) ([]*bid.Bid, error)

	// GetHighestBid retrieves the highest bid for an auction
	GetHighestBid(ctx context.Context, auctionID uuid.UUID) (*bid.Bid, error)
}

// WalletService defines the interface for wallet operations
type WalletService interface {
	// GetWallet retrieves a user's wallet
	GetWallet(ctx context.Context, userID uuid.UUID) (*wallet.Wallet, error)

	// Deposit adds funds to a user's wallet
	Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error

	// Withdraw removes funds from a user's wallet
	Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error

	// GetTransactions retrieves a user's ledger entries
	GetTransactions(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*wallet.Transaction, error)
}

// request to create an auction
type CreateAuctionRequest struct {
	ItemID        uuid.UUID        `json:"item_id"`
	CreatorID     uuid.UUID        `json:"creator_id"`
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	StartTime     time.Time        `json:"start_time"`
	EndTime       time.Time        `json:"end_time"`
	StartingPrice decimal.Decimal  `json:"starting_price"`
	BidIncrement  *decimal.Decimal `json:"bid_increment,omitempty"`
	BuyNowPrice   *decimal.Decimal `json:"buy_now_price,omitempty"`
}

// request to update an auction; nil fields are left untouched
type UpdateAuctionRequest struct {
	AuctionID     uuid.UUID        `json:"auction_id"`
	ActorID       uuid.UUID        `json:"actor_id"`
	Title         *string          `json:"title,omitempty"`
	Description   *string          `json:"description,omitempty"`
	StartTime     *time.Time       `json:"start_time,omitempty"`
	EndTime       *time.Time       `json:"end_time,omitempty"`
	StartingPrice *decimal.Decimal `json:"starting_price,omitempty"`
	BidIncrement  *decimal.Decimal `json:"bid_increment,omitempty"`
	BuyNowPrice   *decimal.Decimal `json:"buy_now_price,omitempty"`
}

// request to list auctions
type ListAuctionsRequest struct {
	Status   *auction.Status `json:"status,omitempty"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// request to place a bid
type PlaceBidRequest struct {
	AuctionID uuid.UUID       `json:"auction_id"`
	UserID    uuid.UUID       `json:"user_id"`
	ClientID  string          `json:"client_id"`
	Amount    decimal.Decimal `json:"amount"`
}
