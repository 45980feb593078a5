package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bidhall-marketplace-service/internal/domain/auction"
	"bidhall-marketplace-service/internal/domain/job"
	"bidhall-marketplace-service/internal/domain/notification"
	"bidhall-marketplace-service/internal/domain/shared"
	"bidhall-marketplace-service/internal/domain/wallet"
	"bidhall-marketplace-service/internal/ports/inbound"
	"bidhall-marketplace-service/internal/ports/outbound"
)

// AuctionService implements the auction lifecycle use cases and the job
// handlers the scheduler invokes for start/end transitions
type AuctionService struct {
	auctionRepo     outbound.AuctionRepository
	participantRepo outbound.ParticipantRepository
	bidRepo         outbound.BidRepository
	itemRepo        outbound.ItemRepository
	userRepo        outbound.UserRepository
	walletRepo      outbound.WalletRepository
	scheduler       outbound.JobScheduler
	broadcaster     outbound.Broadcaster
	notifier        outbound.Notifier
	logger          zerolog.Logger
}

type AuctionServiceParams struct {
	AuctionRepo     outbound.AuctionRepository
	ParticipantRepo outbound.ParticipantRepository
	BidRepo         outbound.BidRepository
	ItemRepo        outbound.ItemRepository
	UserRepo        outbound.UserRepository
	WalletRepo      outbound.WalletRepository
	Scheduler       outbound.JobScheduler
	Broadcaster     outbound.Broadcaster
	Notifier        outbound.Notifier
	Logger          zerolog.Logger
}

// NewAuctionService creates a new auction service
func NewAuctionService(params AuctionServiceParams) *AuctionService {
	return &AuctionService{
		auctionRepo:     params.AuctionRepo,
		participantRepo: params.ParticipantRepo,
		bidRepo:         params.BidRepo,
		itemRepo:        params.ItemRepo,
		userRepo:        params.UserRepo,
		walletRepo:      params.WalletRepo,
		scheduler:       params.Scheduler,
		broadcaster:     params.Broadcaster,
		notifier:        params.Notifier,
		logger:          params.Logger.With().Str("component", "auction_service").Logger(),
	}
}

// CreateAuction creates a new auction in draft status
func (service *AuctionService) CreateAuction(ctx context.Context, req inbound.CreateAuctionRequest) (*auction.Auction, error) {
	service.logger.Info().
		Str("item_id", req.ItemID.String()).
		Str("creator_id", req.CreatorID.String()).
		Time("start_time", req.StartTime).
		Time("end_time", req.EndTime).
		Str("starting_price", req.StartingPrice.String()).
		Msg("Attempting to create auction")

	if req.Title == "" {
		return nil, shared.ErrTitleRequired
	}
	if req.Description == "" {
		return nil, shared.ErrDescriptionRequired
	}
	if !req.StartingPrice.IsPositive() {
		return nil, shared.ErrInvalidStartingPrice
	}

	increment := auction.DefaultBidIncrement
	if req.BidIncrement != nil {
		if !req.BidIncrement.IsPositive() {
			return nil, shared.ErrInvalidBidIncrement
		}
		increment = *req.BidIncrement
	}
	if req.BuyNowPrice != nil && !req.BuyNowPrice.IsPositive() {
		return nil, shared.ErrInvalidBuyNowPrice
	}

	now := time.Now()
	if req.StartTime.Before(now.Add(-auction.CreateStartTolerance)) {
		service.logger.Warn().
			Time("start_time", req.StartTime).
			Time("current_time", now).
			Msg("Start time is too far in the past")
		return nil, shared.ErrInvalidStartTime
	}
	if !req.EndTime.After(req.StartTime) {
		service.logger.Warn().
			Time("start_time", req.StartTime).
			Time("end_time", req.EndTime).
			Msg("End time must be after start time")
		return nil, shared.ErrInvalidEndTime
	}

	item, err := service.itemRepo.GetByID(ctx, req.ItemID)
	if err != nil {
		service.logger.Error().Err(err).Str("item_id", req.ItemID.String()).Msg("Item not found")
		return nil, shared.ErrItemNotFound
	}

	creator, err := service.userRepo.GetByID(ctx, req.CreatorID)
	if err != nil {
		service.logger.Error().Err(err).Str("creator_id", req.CreatorID.String()).Msg("User not found")
		return nil, shared.ErrUserNotFound
	}
	if !creator.IsAdmin() {
		service.logger.Warn().Str("creator_id", creator.ID.String()).Msg("Auction creation requires the admin role")
		return nil, shared.ErrAdminRequired
	}

	active, err := service.auctionRepo.GetNonTerminalByItemID(ctx, req.ItemID)
	if err != nil {
		service.logger.Error().Err(err).Str("item_id", req.ItemID.String()).Msg("Failed to check for active auctions")
		return nil, err
	}
	if len(active) > 0 {
		service.logger.Warn().
			Str("item_id", req.ItemID.String()).
			Int("active_auctions_count", len(active)).
			Msg("Item is already in an active auction")
		return nil, shared.ErrItemAlreadyInAuction
	}

	a := &auction.Auction{
		ID:            uuid.New(),
		ItemID:        item.ID,
		CreatorID:     creator.ID,
		Title:         req.Title,
		Description:   req.Description,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		Status:        auction.StatusDraft,
		StartingPrice: req.StartingPrice,
		BidIncrement:  increment,
		BuyNowPrice:   req.BuyNowPrice,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := service.auctionRepo.Create(ctx, a); err != nil {
		service.logger.Error().Err(err).Str("auction_id", a.ID.String()).Msg("Failed to save auction to database")
		return nil, err
	}

	service.logger.Info().
		Str("auction_id", a.ID.String()).
		Str("item_id", a.ItemID.String()).
		Msg("Auction created")

	return a, nil
}

// GetAuction retrieves an auction by ID
func (service *AuctionService) GetAuction(ctx context.Context, auctionID uuid.UUID) (*auction.Auction, error) {
	service.logger.Debug().Str("auction_id", auctionID.String()).Msg("Retrieving auction")

	a, err := service.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		service.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to retrieve auction")
		return nil, err
	}

	return a, nil
}

// ListAuctions retrieves a list of auctions
func (service *AuctionService) ListAuctions(ctx context.Context, req inbound.ListAuctionsRequest) ([]*auction.Auction, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = 10
	}

	return service.auctionRepo.List(ctx, req.Status, req.Page, req.PageSize)
}

// UpdateAuction updates a draft or pending auction's details. The actor
// must be the creator or an administrator.
func (service *AuctionService) UpdateAuction(ctx context.Context, req inbound.UpdateAuctionRequest) (*auction.Auction, error) {
	a, err := service.auctionRepo.GetByID(ctx, req.AuctionID)
	if err != nil {
		return nil, err
	}

	actor, err := service.userRepo.GetByID(ctx, req.ActorID)
	if err != nil {
		return nil, shared.ErrUserNotFound
	}
	if actor.ID != a.CreatorID && !actor.IsAdmin() {
		return nil, shared.ErrAdminRequired
	}

	if a.Status != auction.StatusDraft && a.Status != auction.StatusPending {
		service.logger.Warn().
			Str("auction_id", a.ID.String()).
			Str("status", string(a.Status)).
			Msg("Auction details can only change before publication")
		return nil, shared.ErrInvalidTransition
	}

	if req.Title != nil {
		if *req.Title == "" {
			return nil, shared.ErrTitleRequired
		}
		a.Title = *req.Title
	}
	if req.Description != nil {
		if *req.Description == "" {
			return nil, shared.ErrDescriptionRequired
		}
		a.Description = *req.Description
	}
	if req.StartTime != nil {
		a.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		a.EndTime = *req.EndTime
	}
	if !a.EndTime.After(a.StartTime) {
		return nil, shared.ErrInvalidEndTime
	}
	if req.StartingPrice != nil {
		if !req.StartingPrice.IsPositive() {
			return nil, shared.ErrInvalidStartingPrice
		}
		a.StartingPrice = *req.StartingPrice
	}
	if req.BidIncrement != nil {
		if !req.BidIncrement.IsPositive() {
			return nil, shared.ErrInvalidBidIncrement
		}
		a.BidIncrement = *req.BidIncrement
	}
	if req.BuyNowPrice != nil {
		if !req.BuyNowPrice.IsPositive() {
			return nil, shared.ErrInvalidBuyNowPrice
		}
		a.BuyNowPrice = req.BuyNowPrice
	}

	a.UpdatedAt = time.Now()
	if err := service.auctionRepo.Update(ctx, a); err != nil {
		service.logger.Error().Err(err).Str("auction_id", a.ID.String()).Msg("Failed to update auction")
		return nil, err
	}

	service.logger.Info().Str("auction_id", a.ID.String()).Msg("Auction updated")
	return a, nil
}

// PublishAuction moves an auction to published and schedules its start
// and end jobs. Admin only.
func (service *AuctionService) PublishAuction(ctx context.Context, actorID, auctionID uuid.UUID) (*auction.Auction, error) {
	actor, err := service.userRepo.GetByID(ctx, actorID)
	if err != nil {
		return nil, shared.ErrUserNotFound
	}
	if !actor.IsAdmin() {
		return nil, shared.ErrAdminRequired
	}

	a, err := service.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	if !a.EndTime.After(time.Now()) {
		return nil, shared.ErrInvalidEndTime
	}

	previous := a.Status
	if err := a.TransitionTo(auction.StatusPublished); err != nil {
		service.logger.Warn().
			Str("auction_id", a.ID.String()).
			Str("status", string(previous)).
			Msg("Auction cannot be published from its current status")
		return nil, err
	}

	if err := service.auctionRepo.Update(ctx, a); err != nil {
		service.logger.Error().Err(err).Str("auction_id", a.ID.String()).Msg("Failed to persist published status")
		return nil, err
	}

	if err := service.scheduleLifecycleJobs(ctx, a); err != nil {
		// Roll the status back so a later publish attempt can reschedule.
		a.Status = previous
		a.UpdatedAt = time.Now()
		if rbErr := service.auctionRepo.Update(ctx, a); rbErr != nil {
			service.logger.Error().Err(rbErr).Str("auction_id", a.ID.String()).Msg("Failed to roll back publish after scheduling failure")
		}
		return nil, err
	}

	service.logger.Info().
		Str("auction_id", a.ID.String()).
		Time("start_time", a.StartTime).
		Time("end_time", a.EndTime).
		Msg("Auction published and jobs scheduled")

	service.publishEvent(outbound.AuctionTopic(a.ID), outbound.EventTypeAuctionPublished, map[string]interface{}{
		"auction_id": a.ID.String(),
		"start_time": a.StartTime.Format(time.RFC3339),
		"end_time":   a.EndTime.Format(time.RFC3339),
	})

	return a, nil
}

func (service *AuctionService) scheduleLifecycleJobs(ctx context.Context, a *auction.Auction) error {
	if _, err := service.scheduler.CreateJob(ctx, job.TypeStartAuction, job.EntityAuction, a.ID, a.StartTime, nil); err != nil {
		service.logger.Error().Err(err).Str("auction_id", a.ID.String()).Msg("Failed to schedule start job")
		return fmt.Errorf("failed to schedule start job: %w", err)
	}
	if _, err := service.scheduler.CreateJob(ctx, job.TypeEndAuction, job.EntityAuction, a.ID, a.EndTime, nil); err != nil {
		service.logger.Error().Err(err).Str("auction_id", a.ID.String()).Msg("Failed to schedule end job")
		if cancelErr := service.scheduler.CancelJobsForReference(ctx, a.ID); cancelErr != nil {
			service.logger.Error().Err(cancelErr).Str("auction_id", a.ID.String()).Msg("Failed to cancel orphaned start job")
		}
		return fmt.Errorf("failed to schedule end job: %w", err)
	}
	return nil
}

// StartAuctionFromJob is the start-job handler. The status guard keeps a
// stale timer from starting an auction that was cancelled or rescheduled
// after the job was armed.
func (service *AuctionService) StartAuctionFromJob(ctx context.Context, auctionID uuid.UUID) error {
	service.logger.Info().Str("auction_id", auctionID.String()).Msg("Starting auction")

	a, err := service.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		return err
	}

	if a.Status != auction.StatusPublished {
		service.logger.Warn().
			Str("auction_id", auctionID.String()).
			Str("status", string(a.Status)).
			Msg("Stale start job: auction is no longer published")
		return shared.ErrAuctionNotPublished
	}

	if err := a.TransitionTo(auction.StatusStarted); err != nil {
		return err
	}
	if err := service.auctionRepo.Update(ctx, a); err != nil {
		service.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to persist started status")
		return err
	}

	service.logger.Info().Str("auction_id", auctionID.String()).Msg("Auction started")

	service.publishEvent(outbound.AuctionTopic(a.ID), outbound.EventTypeAuctionStarted, map[string]interface{}{
		"auction_id": a.ID.String(),
		"end_time":   a.EndTime.Format(time.RFC3339),
	})
	service.notifyParticipants(ctx, a, notification.TypeAuctionStarted,
		fmt.Sprintf("Auction %q has started", a.Title))

	return nil
}

// EndAuctionFromJob is the end-job handler. A highest bid makes the
// auction completed with a winner; no bids makes it expired. Non-winning
// participants get their fee back either way.
func (service *AuctionService) EndAuctionFromJob(ctx context.Context, auctionID uuid.UUID) (*shared.AuctionEndResult, error) {
	service.logger.Info().Str("auction_id", auctionID.String()).Msg("Ending auction")

	a, err := service.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	if a.Status != auction.StatusStarted {
		service.logger.Warn().
			Str("auction_id", auctionID.String()).
			Str("status", string(a.Status)).
			Msg("Stale end job: auction is not started")
		return nil, shared.ErrAuctionNotStarted
	}

	// A timer armed before an anti-snipe extension fires at the original
	// deadline. The persisted end time wins: push the job out and keep
	// the auction running.
	if a.EndTime.After(time.Now()) {
		service.logger.Warn().
			Str("auction_id", auctionID.String()).
			Time("end_time", a.EndTime).
			Msg("End job fired before the auction's end time, rescheduling")
		if err := service.scheduler.RescheduleJob(ctx, job.TypeEndAuction, auctionID, a.EndTime); err != nil {
			service.logger.Error().Err(err).
				Str("auction_id", auctionID.String()).
				Msg("Failed to reschedule early end job")
		}
		return &shared.AuctionEndResult{AuctionID: auctionID, Status: string(a.Status)}, nil
	}

	highestBid, err := service.bidRepo.GetHighestBid(ctx, auctionID)
	if err != nil && err != shared.ErrNoBidsFound {
		service.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to get highest bid")
		return nil, err
	}

	if highestBid != nil {
		if err := a.TransitionTo(auction.StatusCompleted); err != nil {
			return nil, err
		}
		a.SetWinner(highestBid.UserID, highestBid.Amount)
	} else {
		if err := a.TransitionTo(auction.StatusExpired); err != nil {
			return nil, err
		}
	}

	if err := service.auctionRepo.Update(ctx, a); err != nil {
		service.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to persist end status")
		return nil, err
	}

	// The transition above succeeded exactly once, so refunds run exactly once.
	if err := service.scheduler.CancelJobsForReference(ctx, auctionID); err != nil {
		service.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to cancel remaining jobs")
	}
	service.RefundParticipationFee(ctx, auctionID)

	result := &shared.AuctionEndResult{
		AuctionID: auctionID,
		Status:    string(a.Status),
	}
	eventData := map[string]interface{}{
		"auction_id": auctionID.String(),
		"status":     string(a.Status),
	}

	if highestBid != nil {
		result.WinnerID = &highestBid.UserID
		result.FinalPrice = &highestBid.Amount
		eventData["winner_id"] = highestBid.UserID.String()
		eventData["final_price"] = highestBid.Amount.String()

		service.markItemSold(ctx, a.ItemID)
		service.notifyUser(ctx, highestBid.UserID, notification.TypeAuctionWon,
			fmt.Sprintf("You won auction %q at %s", a.Title, highestBid.Amount.String()), a.ID)

		service.logger.Info().
			Str("auction_id", auctionID.String()).
			Str("winner_id", highestBid.UserID.String()).
			Str("final_price", highestBid.Amount.String()).
			Msg("Auction ended with winner")
	} else {
		service.logger.Info().Str("auction_id", auctionID.String()).Msg("Auction ended with no bids")
	}

	service.publishEvent(outbound.AuctionTopic(a.ID), outbound.EventTypeAuctionEnded, eventData)
	service.notifyUser(ctx, a.CreatorID, notification.TypeAuctionEnded,
		fmt.Sprintf("Auction %q has ended", a.Title), a.ID)

	return result, nil
}

// JoinAuction charges the participation fee and registers the user. The
// debit and the participant row commit in one SQL transaction, so a
// failed join never keeps the fee.
func (service *AuctionService) JoinAuction(ctx context.Context, auctionID, userID uuid.UUID) (*auction.Participant, error) {
	service.logger.Info().
		Str("auction_id", auctionID.String()).
		Str("user_id", userID.String()).
		Msg("User joining auction")

	if _, err := service.userRepo.GetByID(ctx, userID); err != nil {
		return nil, shared.ErrUserNotFound
	}

	a, err := service.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if a.Status != auction.StatusStarted {
		return nil, shared.ErrAuctionNotStarted
	}

	if _, err := service.participantRepo.Get(ctx, auctionID, userID); err == nil {
		return nil, shared.ErrAlreadyParticipant
	} else if err != shared.ErrParticipantNotFound {
		return nil, err
	}

	fee := a.ParticipationFee()
	participant := &auction.Participant{
		ID:        uuid.New(),
		AuctionID: auctionID,
		UserID:    userID,
		JoinedAt:  time.Now(),
	}

	if err := service.participantRepo.CreateWithFee(ctx, participant, fee); err != nil {
		service.logger.Warn().Err(err).
			Str("auction_id", auctionID.String()).
			Str("user_id", userID.String()).
			Str("fee", fee.String()).
			Msg("Join rejected")
		return nil, err
	}

	service.logger.Info().
		Str("auction_id", auctionID.String()).
		Str("user_id", userID.String()).
		Str("fee", fee.String()).
		Msg("User joined auction")

	service.publishEvent(outbound.AuctionTopic(auctionID), outbound.EventTypeParticipantJoin, map[string]interface{}{
		"auction_id": auctionID.String(),
		"user_id":    userID.String(),
	})

	return participant, nil
}

// LeaveAuction removes a participant. The fee comes back only while the
// auction has not started; leaving a started auction forfeits it.
func (service *AuctionService) LeaveAuction(ctx context.Context, auctionID, userID uuid.UUID) error {
	a, err := service.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		return err
	}

	if _, err := service.participantRepo.Get(ctx, auctionID, userID); err != nil {
		return err
	}

	if err := service.participantRepo.Delete(ctx, auctionID, userID); err != nil {
		return err
	}

	if a.Status == auction.StatusPublished {
		fee := a.ParticipationFee()
		if err := service.walletRepo.Credit(ctx, userID, fee, wallet.TypeRefund, &auctionID); err != nil {
			service.logger.Error().Err(err).
				Str("auction_id", auctionID.String()).
				Str("user_id", userID.String()).
				Msg("Failed to refund fee on leave")
			return err
		}
	}

	service.logger.Info().
		Str("auction_id", auctionID.String()).
		Str("user_id", userID.String()).
		Str("status", string(a.Status)).
		Msg("User left auction")

	service.publishEvent(outbound.AuctionTopic(auctionID), outbound.EventTypeParticipantLeave, map[string]interface{}{
		"auction_id": auctionID.String(),
		"user_id":    userID.String(),
	})

	return nil
}

// RefundParticipationFee credits the fee back to every participant except
// the recorded winner. Not idempotent on its own: callers invoke it only
// right after a successful terminal status transition, which can happen
// once per auction.
func (service *AuctionService) RefundParticipationFee(ctx context.Context, auctionID uuid.UUID) {
	a, err := service.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		service.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to load auction for refunds")
		return
	}

	participants, err := service.participantRepo.ListByAuction(ctx, auctionID)
	if err != nil {
		service.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to list participants for refunds")
		return
	}

	fee := a.ParticipationFee()
	refunded := 0
	for _, p := range participants {
		if a.WinnerID != nil && p.UserID == *a.WinnerID {
			continue
		}
		if err := service.walletRepo.Credit(ctx, p.UserID, fee, wallet.TypeRefund, &auctionID); err != nil {
			service.logger.Error().Err(err).
				Str("auction_id", auctionID.String()).
				Str("user_id", p.UserID.String()).
				Msg("Failed to refund participation fee")
			continue
		}
		refunded++
		service.notifyUser(ctx, p.UserID, notification.TypeFeeRefunded,
			fmt.Sprintf("Participation fee for auction %q refunded", a.Title), a.ID)
	}

	service.logger.Info().
		Str("auction_id", auctionID.String()).
		Int("participants", len(participants)).
		Int("refunded", refunded).
		Msg("Participation fees refunded")
}

// CancelAuction cancels a non-terminal auction, cancels its jobs and
// refunds participants. Admin only.
func (service *AuctionService) CancelAuction(ctx context.Context, actorID, auctionID uuid.UUID, reason string) error {
	actor, err := service.userRepo.GetByID(ctx, actorID)
	if err != nil {
		return shared.ErrUserNotFound
	}
	if !actor.IsAdmin() {
		return shared.ErrAdminRequired
	}

	a, err := service.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		return err
	}

	if err := a.TransitionTo(auction.StatusCancelled); err != nil {
		return err
	}
	if err := service.auctionRepo.Update(ctx, a); err != nil {
		service.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to persist cancelled status")
		return err
	}

	if err := service.scheduler.CancelJobsForReference(ctx, auctionID); err != nil {
		service.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to cancel jobs for cancelled auction")
	}
	service.RefundParticipationFee(ctx, auctionID)

	service.logger.Info().
		Str("auction_id", auctionID.String()).
		Str("actor_id", actorID.String()).
		Str("reason", reason).
		Msg("Auction cancelled")

	service.publishEvent(outbound.AuctionTopic(auctionID), outbound.EventTypeAuctionCancelled, map[string]interface{}{
		"auction_id": auctionID.String(),
		"reason":     reason,
	})
	service.notifyParticipants(ctx, a, notification.TypeAuctionCancelled,
		fmt.Sprintf("Auction %q was cancelled", a.Title))

	return nil
}

// DeleteAuction soft-deletes an auction. Allowed only from draft, pending,
// published or cancelled; a started auction must be cancelled first.
func (service *AuctionService) DeleteAuction(ctx context.Context, actorID, auctionID uuid.UUID) error {
	actor, err := service.userRepo.GetByID(ctx, actorID)
	if err != nil {
		return shared.ErrUserNotFound
	}
	if !actor.IsAdmin() {
		return shared.ErrAdminRequired
	}

	a, err := service.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		return err
	}

	if !auction.CanTransition(a.Status, auction.StatusDeleted) {
		service.logger.Warn().
			Str("auction_id", auctionID.String()).
			Str("status", string(a.Status)).
			Msg("Auction cannot be deleted from its current status")
		return shared.ErrAuctionNotDeletable
	}

	refund := !a.Status.Terminal()

	if err := service.auctionRepo.SoftDelete(ctx, auctionID); err != nil {
		service.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to soft-delete auction")
		return err
	}

	if err := service.scheduler.CancelJobsForReference(ctx, auctionID); err != nil {
		service.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to cancel jobs for deleted auction")
	}

	// A cancelled auction already refunded on cancellation.
	if refund {
		service.RefundParticipationFee(ctx, auctionID)
	}

	service.logger.Info().
		Str("auction_id", auctionID.String()).
		Str("actor_id", actorID.String()).
		Msg("Auction deleted")

	return nil
}

// CompleteBuyNow ends the auction immediately at the buy-now price. The
// buyer must be a participant with sufficient balance.
func (service *AuctionService) CompleteBuyNow(ctx context.Context, auctionID, userID uuid.UUID) (*auction.Auction, error) {
	a, err := service.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	if a.Status != auction.StatusPublished && a.Status != auction.StatusStarted {
		return nil, shared.ErrAuctionNotAcceptingBids
	}
	if a.BuyNowPrice == nil {
		return nil, shared.ErrBuyNowNotAvailable
	}

	if _, err := service.participantRepo.Get(ctx, auctionID, userID); err != nil {
		return nil, err
	}

	price := *a.BuyNowPrice
	if err := service.walletRepo.Debit(ctx, userID, price, wallet.TypePurchase, &auctionID); err != nil {
		service.logger.Warn().Err(err).
			Str("auction_id", auctionID.String()).
			Str("user_id", userID.String()).
			Str("price", price.String()).
			Msg("Buy-now debit failed")
		return nil, err
	}

	if err := a.TransitionTo(auction.StatusCompleted); err != nil {
		// Undo the purchase debit; the auction moved under us.
		if creditErr := service.walletRepo.Credit(ctx, userID, price, wallet.TypeRefund, &auctionID); creditErr != nil {
			service.logger.Error().Err(creditErr).Str("auction_id", auctionID.String()).Msg("Failed to refund buy-now debit")
		}
		return nil, err
	}
	a.SetWinner(userID, price)

	if err := service.auctionRepo.Update(ctx, a); err != nil {
		service.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to persist buy-now completion")
		if creditErr := service.walletRepo.Credit(ctx, userID, price, wallet.TypeRefund, &auctionID); creditErr != nil {
			service.logger.Error().Err(creditErr).Str("auction_id", auctionID.String()).Msg("Failed to refund buy-now debit")
		}
		return nil, err
	}

	if err := service.scheduler.CancelJobsForReference(ctx, auctionID); err != nil {
		service.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to cancel jobs after buy-now")
	}
	service.markItemSold(ctx, a.ItemID)
	service.RefundParticipationFee(ctx, auctionID)

	service.logger.Info().
		Str("auction_id", auctionID.String()).
		Str("winner_id", userID.String()).
		Str("final_price", price.String()).
		Msg("Auction completed via buy-now")

	service.publishEvent(outbound.AuctionTopic(auctionID), outbound.EventTypeAuctionEnded, map[string]interface{}{
		"auction_id":  auctionID.String(),
		"status":      string(a.Status),
		"winner_id":   userID.String(),
		"final_price": price.String(),
		"buy_now":     true,
	})
	service.notifyUser(ctx, userID, notification.TypeAuctionWon,
		fmt.Sprintf("You bought %q at the buy-now price %s", a.Title, price.String()), a.ID)
	service.notifyUser(ctx, a.CreatorID, notification.TypeAuctionEnded,
		fmt.Sprintf("Auction %q sold via buy-now", a.Title), a.ID)

	return a, nil
}

// GetAuctionsEndingSoon retrieves started auctions ending inside the window
func (service *AuctionService) GetAuctionsEndingSoon(ctx context.Context, window time.Duration) ([]*auction.Auction, error) {
	return service.auctionRepo.GetEndingWithin(ctx, window)
}

func (service *AuctionService) publishEvent(topic outbound.Topic, eventType outbound.EventType, data map[string]interface{}) {
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

// markItemSold flags the catalog item once its auction completes with a
// winner. Best-effort: the auction outcome is already persisted.
func (service *AuctionService) markItemSold(ctx context.Context, itemID uuid.UUID) {
	item, err := service.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		service.logger.Error().Err(err).Str("item_id", itemID.String()).Msg("Failed to load item to mark sold")
		return
	}

	item.Sold = true
	item.UpdatedAt = time.Now()
	if err := service.itemRepo.Update(ctx, item); err != nil {
		service.logger.Error().Err(err).Str("item_id", itemID.String()).Msg("Failed to mark item sold")
	}
}

func (service *AuctionService) notifyUser(ctx context.Context, userID uuid.UUID, notifType notification.Type, message string, referenceID uuid.UUID) {
	if service.notifier == nil {
		return
	}

	service.notifier.Notify(ctx, &notification.Notification{
		ID:      uuid.New(),
		Target:  notification.UserTarget(userID),
		Type:    notifType,
		Message: message,
		Payload: map[string]interface{}{
			"reference_id": referenceID.String(),
		},
		CreatedAt: time.Now(),
	})
}

func (service *AuctionService) notifyParticipants(ctx context.Context, a *auction.Auction, notifType notification.Type, message string) {
	participants, err := service.participantRepo.ListByAuction(ctx, a.ID)
	if err != nil {
		service.logger.Error().Err(err).Str("auction_id", a.ID.String()).Msg("Failed to list participants for notification")
		return
	}

	for _, p := range participants {
		service.notifyUser(ctx, p.UserID, notifType, message, a.ID)
	}
}
