package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bidhall-marketplace-service/internal/domain/bid"
	"bidhall-marketplace-service/internal/domain/job"
	"bidhall-marketplace-service/internal/domain/notification"
	"bidhall-marketplace-service/internal/domain/shared"
	"bidhall-marketplace-service/internal/ports/inbound"
	"bidhall-marketplace-service/internal/ports/outbound"
)

// BidService implements the bid use cases
type BidService struct {
	bidRepo         outbound.BidRepository
	participantRepo outbound.ParticipantRepository
	userRepo        outbound.UserRepository
	scheduler       outbound.JobScheduler
	broadcaster     outbound.Broadcaster
	notifier        outbound.Notifier
	logger          zerolog.Logger
}

type BidServiceParams struct {
	BidRepo         outbound.BidRepository
	ParticipantRepo outbound.ParticipantRepository
	UserRepo        outbound.UserRepository
	Scheduler       outbound.JobScheduler
	Broadcaster     outbound.Broadcaster
	Notifier        outbound.Notifier
	Logger          zerolog.Logger
}

// NewBidService creates a new bid service
func NewBidService(params BidServiceParams) *BidService {
	return &BidService{
		bidRepo:         params.BidRepo,
		participantRepo: params.ParticipantRepo,
		userRepo:        params.UserRepo,
		scheduler:       params.Scheduler,
		broadcaster:     params.Broadcaster,
		notifier:        params.Notifier,
		logger:          params.Logger.With().Str("component", "bid_service").Logger(),
	}
}

// PlaceBid places a new bid on an auction. All validation against the
// auction's current state happens inside the repository's locked
// transaction; everything after the commit is best-effort fanout.
func (service *BidService) PlaceBid(ctx context.Context, req inbound.PlaceBidRequest) (*bid.Bid, error) {
	service.logger.Info().
		Str("auction_id", req.AuctionID.String()).
		Str("user_id", req.UserID.String()).
		Str("amount", req.Amount.String()).
		Msg("Attempting to place bid")

	if _, err := service.userRepo.GetByID(ctx, req.UserID); err != nil {
		service.logger.Error().Err(err).Str("user_id", req.UserID.String()).Msg("User not found")
		return nil, shared.ErrUserNotFound
	}

	if _, err := service.participantRepo.Get(ctx, req.AuctionID, req.UserID); err != nil {
		service.logger.Warn().
			Str("auction_id", req.AuctionID.String()).
			Str("user_id", req.UserID.String()).
			Msg("Bidder has not joined the auction")
		return nil, err
	}

	result, err := service.bidRepo.PlaceBid(ctx, outbound.PlaceBidParams{
		AuctionID: req.AuctionID,
		UserID:    req.UserID,
		Amount:    req.Amount,
	})
	if err != nil {
		service.logger.Warn().Err(err).
			Str("auction_id", req.AuctionID.String()).
			Str("user_id", req.UserID.String()).
			Str("amount", req.Amount.String()).
			Msg("Bid rejected")
		return nil, err
	}

	service.logger.Info().
		Str("bid_id", result.Bid.ID.String()).
		Str("auction_id", req.AuctionID.String()).
		Str("user_id", req.UserID.String()).
		Str("amount", req.Amount.String()).
		Bool("end_time_extended", result.EndTimeExtended).
		Msg("Bid placed")

	// The persisted end time moved, so the end job's timer must move with
	// it or the auction would end at the original deadline.
	if result.EndTimeExtended && service.scheduler != nil {
		if err := service.scheduler.RescheduleJob(ctx, job.TypeEndAuction, req.AuctionID, result.NewEndTime); err != nil {
			service.logger.Error().Err(err).
				Str("auction_id", req.AuctionID.String()).
				Time("new_end_time", result.NewEndTime).
				Msg("Failed to move end job after extension")
		}
	}

	go service.fanOutBidResult(req, result)

	return result.Bid, nil
}

// fanOutBidResult pushes events and the outbid notification after the bid
// committed. Runs detached from the request context.
func (service *BidService) fanOutBidResult(req inbound.PlaceBidRequest, result *outbound.PlaceBidResult) {
	ctx := context.Background()

	service.publishEvent(outbound.AuctionTopic(req.AuctionID), outbound.EventTypeBidPlaced, map[string]interface{}{
		"auction_id": req.AuctionID.String(),
		"bid_id":     result.Bid.ID.String(),
		"user_id":    req.UserID.String(),
		"amount":     result.Bid.Amount.String(),
		"client_id":  req.ClientID,
	})

	if result.EndTimeExtended {
		service.publishEvent(outbound.AuctionTopic(req.AuctionID), outbound.EventTypeAuctionExtended, map[string]interface{}{
			"auction_id":   req.AuctionID.String(),
			"new_end_time": result.NewEndTime.Format(time.RFC3339),
		})
	}

	if result.PreviousBidderID != nil && *result.PreviousBidderID != req.UserID && service.notifier != nil {
		service.notifier.Notify(ctx, &notification.Notification{
			ID:      uuid.New(),
			Target:  notification.UserTarget(*result.PreviousBidderID),
			Type:    notification.TypeOutbid,
			Message: fmt.Sprintf("You were outbid: the highest bid is now %s", result.Bid.Amount.String()),
			Payload: map[string]interface{}{
				"auction_id": req.AuctionID.String(),
				"amount":     result.Bid.Amount.String(),
			},
			CreatedAt: time.Now(),
		})
	}
}

// GetBids retrieves bids for an auction
func (service *BidService) GetBids(ctx context.Context, auctionID uuid.UUID) ([]*bid.Bid, error) {
	return service.bidRepo.GetByAuctionID(ctx, auctionID)
}

// GetHighestBid retrieves the highest bid for an auction
func (service *BidService) GetHighestBid(ctx context.Context, auctionID uuid.UUID) (*bid.Bid, error) {
	return service.bidRepo.GetHighestBid(ctx, auctionID)
}

func (service *BidService) publishEvent(topic outbound.Topic, eventType outbound.EventType, data map[string]interface{}) {
	if service.broadcaster == nil {
		return
	}

	event := outbound.Event{
		Type:      eventType,
		Topic:     topic,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	if err := service.broadcaster.Publish(context.Background(), topic, event); err != nil {
		service.logger.Error().Err(err).
			Str("topic", string(topic)).
			Str("event_type", string(eventType)).
			Msg("Failed to broadcast event")
	}
}
