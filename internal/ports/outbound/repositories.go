package outbound

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bidhall-marketplace-service/internal/domain/auction"
	"bidhall-marketplace-service/internal/domain/bid"
	"bidhall-marketplace-service/internal/domain/job"
	"bidhall-marketplace-service/internal/domain/notification"
	"bidhall-marketplace-service/internal/domain/shared"
	"bidhall-marketplace-service/internal/domain/wallet"
)

// AuctionRepository defines the interface for auction data operations
type AuctionRepository interface {
	// Create creates a new auction
	Create(ctx context.Context, auction *auction.Auction) error

	// GetByID retrieves an auction by ID, excluding soft-deleted rows
	GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error)

	// List retrieves a list of auctions with optional filters
	List(ctx context.Context, status *auction.Status, page, pageSize int) ([]*auction.Auction, error)

	// GetNonTerminalByItemID retrieves active auctions for a specific item
	GetNonTerminalByItemID(ctx context.Context, itemID uuid.UUID) ([]*auction.Auction, error)

	// GetEndingWithin retrieves started auctions whose end time falls inside the window
	GetEndingWithin(ctx context.Context, window time.Duration) ([]*auction.Auction, error)

	// Update updates an auction
	Update(ctx context.Context, auction *auction.Auction) error

	// SoftDelete marks an auction deleted without removing the row
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// PlaceBidParams carries everything the atomic bid path needs
type PlaceBidParams struct {
	AuctionID uuid.UUID
	UserID    uuid.UUID
	Amount    decimal.Decimal
}

// PlaceBidResult reports the accepted bid plus what changed around it
type PlaceBidResult struct {
	Bid              *bid.Bid
	PreviousBidderID *uuid.UUID
	PreviousAmount   *decimal.Decimal
	EndTimeExtended  bool
	NewEndTime       time.Time
}

// BidRepository defines the interface for bid data operations
type BidRepository interface {
	// PlaceBid validates and inserts a bid while holding a row lock on the
	// auction, updating the auction's highest bid and end time atomically
	PlaceBid(ctx context.Context, params PlaceBidParams) (*PlaceBidResult, error)

	// GetByID retrieves a bid by ID
	GetByID(ctx context.Context, id uuid.UUID) (*bid.Bid, error)

	// GetByAuctionID retrieves all bids for an auction, newest first
	GetByAuctionID(ctx context.Context, auctionID uuid.UUID) ([]*bid.Bid, error)

	// GetHighestBid retrieves the highest bid for an auction
	GetHighestBid(ctx context.Context, auctionID uuid.UUID) (*bid.Bid, error)
}

// ParticipantRepository defines the interface for auction participant data operations
type ParticipantRepository interface {
	// Create records a user joining an auction
	Create(ctx context.Context, participant *auction.Participant) error

	// CreateWithFee debits the participation fee and records the
	// participant in one transaction; neither side effect survives a
	// failure of the other
	CreateWithFee(ctx context.Context, participant *auction.Participant, fee decimal.Decimal) error

	// Get retrieves a participant row for an auction and user
	Get(ctx context.Context, auctionID, userID uuid.UUID) (*auction.Participant, error)

	// ListByAuction retrieves all participants of an auction
	ListByAuction(ctx context.Context, auctionID uuid.UUID) ([]*auction.Participant, error)

	// Delete removes a participant row
	Delete(ctx context.Context, auctionID, userID uuid.UUID) error
}

// JobRepository defines the interface for scheduled job persistence
type JobRepository interface {
	// Create persists a new job
	Create(ctx context.Context, job *job.Job) error

	// GetByID retrieves a job by ID
	GetByID(ctx context.Context, id uuid.UUID) (*job.Job, error)

	// Update updates a job's status, retries and bookkeeping timestamps
	Update(ctx context.Context, job *job.Job) error

	// ListInFlight retrieves every pending or retry-queued job for boot reload
	ListInFlight(ctx context.Context) ([]*job.Job, error)

	// GetInFlightByReference retrieves the in-flight job of a type for a reference
	GetInFlightByReference(ctx context.Context, jobType string, referenceID uuid.UUID) (*job.Job, error)

	// ListInFlightByReference retrieves all in-flight jobs for a reference
	ListInFlightByReference(ctx context.Context, referenceID uuid.UUID) ([]*job.Job, error)

	// DeleteTerminalBefore removes terminal jobs in the given statuses older than cutoff
	DeleteTerminalBefore(ctx context.Context, statuses []job.Status, cutoff time.Time) (int64, error)

	// FailStuckRunning force-fails jobs stuck in running since before cutoff
	FailStuckRunning(ctx context.Context, cutoff time.Time) (int64, error)
}

// WalletRepository defines the interface for wallet balance and ledger operations
type WalletRepository interface {
	// GetByUserID retrieves a user's wallet
	GetByUserID(ctx context.Context, userID uuid.UUID) (*wallet.Wallet, error)

	// Debit atomically reduces the balance and writes the paired ledger
	// entry; fails without side effects when the balance is insufficient
	Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, txType wallet.TransactionType, referenceID *uuid.UUID) error

	// Credit atomically increases the balance (creating the wallet if
	// missing) and writes the paired ledger entry
	Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, txType wallet.TransactionType, referenceID *uuid.UUID) error

	// ListTransactions retrieves a user's ledger entries, newest first
	ListTransactions(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*wallet.Transaction, error)
}

// NotificationRepository defines the interface for notification persistence
type NotificationRepository interface {
	// Create persists a notification
	Create(ctx context.Context, n *notification.Notification) error

	// ListForUser retrieves notifications addressed to a user or their role
	ListForUser(ctx context.Context, userID uuid.UUID, role shared.Role, page, pageSize int) ([]*notification.Notification, error)

	// MarkRead marks a notification as read
	MarkRead(ctx context.Context, id uuid.UUID) error
}

// ItemRepository defines the interface for item data operations
type ItemRepository interface {
	// Create creates a new item
	Create(ctx context.Context, item *shared.Item) error

	// GetByID retrieves an item by ID
	GetByID(ctx context.Context, id uuid.UUID) (*shared.Item, error)

	// Update updates an item's details and sold flag
	Update(ctx context.Context, item *shared.Item) error
}

// UserRepository defines the interface for user data operations
type UserRepository interface {
	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*shared.User, error)

	// Create creates a new user
	Create(ctx context.Context, user *shared.User) error
}
