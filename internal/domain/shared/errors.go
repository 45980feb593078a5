package shared

import "errors"

// Kind classifies a domain error into the stable category callers are
// allowed to depend on. Internal detail stays wrapped underneath.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindBadRequest Kind = "bad_request"
	KindConflict   Kind = "conflict"
	KindForbidden  Kind = "forbidden"
	KindInternal   Kind = "internal"
)

// Domain-specific errors
var (
	// Auction errors
	ErrAuctionNotFound         = errors.New("auction not found")
	ErrAuctionAlreadyEnded     = errors.New("auction already ended")
	ErrAuctionNotAcceptingBids = errors.New("auction is not accepting bids")
	ErrAuctionNotStarted       = errors.New("auction not started")
	ErrAuctionNotPublished     = errors.New("auction is not published")
	ErrInvalidStartTime        = errors.New("start time is too far in the past")
	ErrInvalidEndTime          = errors.New("end time must be after start time")
	ErrInvalidStartingPrice    = errors.New("starting price must be greater than 0")
	ErrInvalidBidIncrement     = errors.New("bid increment must be greater than 0")
	ErrInvalidBuyNowPrice      = errors.New("buy-now price must be greater than 0")
	ErrTitleRequired           = errors.New("title is required")
	ErrDescriptionRequired     = errors.New("description is required")
	ErrBuyNowNotAvailable      = errors.New("auction has no buy-now price")
	ErrItemAlreadyInAuction    = errors.New("item is already in an active auction")
	ErrInvalidTransition       = errors.New("invalid auction status transition")
	ErrAuctionNotDeletable     = errors.New("auction cannot be deleted in its current status")

	// Bid errors
	ErrBidAmountInvalid  = errors.New("bid amount must be greater than 0")
	ErrBidBelowFloor     = errors.New("bid amount must be at least the next valid bid")
	ErrBidNotOnIncrement = errors.New("bid amount must land on a bid increment step")
	ErrNoBidsFound       = errors.New("no bids found")

	// Participant errors
	ErrAlreadyParticipant  = errors.New("user already joined this auction")
	ErrParticipantNotFound = errors.New("user is not a participant of this auction")

	// Wallet errors
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	ErrInvalidAmount       = errors.New("amount must be greater than 0")

	// Job errors
	ErrJobNotFound         = errors.New("job not found")
	ErrJobMissingReference = errors.New("job reference id is required")
	ErrJobMissingRunAt     = errors.New("job run time is required")
	ErrJobAlreadyScheduled = errors.New("an in-flight job of this type already exists for the reference")
	ErrJobHandlerNotFound  = errors.New("no handler registered for job type")

	// Notification errors
	ErrNotificationNotFound = errors.New("notification not found")

	// User / item errors
	ErrUserNotFound  = errors.New("user not found")
	ErrItemNotFound  = errors.New("item not found")
	ErrAdminRequired = errors.New("administrator role required")

	// Validation errors
	ErrInvalidTimeFormat = errors.New("invalid time format")
	ErrInvalidRequest    = errors.New("invalid request")

	// WebSocket message validation errors
	ErrMessageTypeRequired   = errors.New("message type is required")
	ErrAuctionIDRequired     = errors.New("auction_id is required")
	ErrAmountRequired        = errors.New("valid amount is required")
	ErrItemIDRequired        = errors.New("item_id is required")
	ErrStartTimeRequired     = errors.New("start_time is required")
	ErrEndTimeRequired       = errors.New("end_time is required")
	ErrStartingPriceRequired = errors.New("starting_price is required")
	ErrUnknownMessageType    = errors.New("unknown message type")

	// Broadcasting errors
	ErrBroadcastFailed            = errors.New("broadcast failed")
	ErrClientEventChannelNotFound = errors.New("client event channel not found")
	ErrInvalidItemIDFormat        = errors.New("invalid item_id format")
)

var kindByError = map[error]Kind{
	ErrAuctionNotFound:      KindNotFound,
	ErrNoBidsFound:          KindNotFound,
	ErrParticipantNotFound:  KindNotFound,
	ErrWalletNotFound:       KindNotFound,
	ErrJobNotFound:          KindNotFound,
	ErrNotificationNotFound: KindNotFound,
	ErrUserNotFound:         KindNotFound,
	ErrItemNotFound:         KindNotFound,

	ErrAuctionAlreadyEnded:     KindBadRequest,
	ErrAuctionNotAcceptingBids: KindBadRequest,
	ErrAuctionNotStarted:       KindBadRequest,
	ErrAuctionNotPublished:     KindBadRequest,
	ErrInvalidStartTime:        KindBadRequest,
	ErrInvalidEndTime:          KindBadRequest,
	ErrInvalidStartingPrice:    KindBadRequest,
	ErrInvalidBidIncrement:     KindBadRequest,
	ErrInvalidBuyNowPrice:      KindBadRequest,
	ErrTitleRequired:           KindBadRequest,
	ErrDescriptionRequired:     KindBadRequest,
	ErrBuyNowNotAvailable:      KindBadRequest,
	ErrInvalidTransition:       KindBadRequest,
	ErrAuctionNotDeletable:     KindBadRequest,
	ErrBidAmountInvalid:        KindBadRequest,
	ErrBidBelowFloor:           KindBadRequest,
	ErrBidNotOnIncrement:       KindBadRequest,
	ErrInsufficientBalance:     KindBadRequest,
	ErrInvalidAmount:           KindBadRequest,
	ErrJobMissingReference:     KindBadRequest,
	ErrJobMissingRunAt:         KindBadRequest,
	ErrInvalidTimeFormat:       KindBadRequest,
	ErrInvalidRequest:          KindBadRequest,

	ErrItemAlreadyInAuction: KindConflict,
	ErrAlreadyParticipant:   KindConflict,
	ErrJobAlreadyScheduled:  KindConflict,

	ErrAdminRequired: KindForbidden,
}

// KindOf maps an error to its stable kind. Anything unrecognized is internal.
func KindOf(err error) Kind {
	for sentinel, kind := range kindByError {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}
