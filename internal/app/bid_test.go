package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidhall-marketplace-service/internal/domain/auction"
	"bidhall-marketplace-service/internal/domain/job"
	"bidhall-marketplace-service/internal/domain/notification"
	"bidhall-marketplace-service/internal/domain/shared"
	"bidhall-marketplace-service/internal/ports/inbound"
	"bidhall-marketplace-service/internal/ports/outbound"
)

func TestPlaceBidRequiresParticipant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createStarted(t)

	_, err := env.bids.PlaceBid(ctx, inbound.PlaceBidRequest{
		AuctionID: a.ID, UserID: env.buyer, Amount: decimal.NewFromInt(100),
	})
	require.ErrorIs(t, err, shared.ErrParticipantNotFound)
}

func TestPlaceBidRequiresKnownUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createStarted(t)

	_, err := env.bids.PlaceBid(ctx, inbound.PlaceBidRequest{
		AuctionID: a.ID, UserID: uuid.New(), Amount: decimal.NewFromInt(100),
	})
	require.ErrorIs(t, err, shared.ErrUserNotFound)
}

func TestPlaceBidRejectsNonStartedAuction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, err := env.auctions.CreateAuction(ctx, env.createRequest())
	require.NoError(t, err)
	_, err = env.auctions.PublishAuction(ctx, env.admin, a.ID)
	require.NoError(t, err)

	// Force a participant row so the check reaches the repository.
	require.NoError(t, env.participantRepo.Create(ctx, &auction.Participant{
		ID: uuid.New(), AuctionID: a.ID, UserID: env.buyer, JoinedAt: time.Now(),
	}))

	_, err = env.bids.PlaceBid(ctx, inbound.PlaceBidRequest{
		AuctionID: a.ID, UserID: env.buyer, Amount: decimal.NewFromInt(100),
	})
	require.ErrorIs(t, err, shared.ErrAuctionNotAcceptingBids)
}

func TestPlaceBidIncrementLaw(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createStarted(t)
	env.join(t, a.ID, env.buyer, decimal.NewFromInt(1000))

	// Floor with no bids is the starting price of 100, increment 10.
	_, err := env.bids.PlaceBid(ctx, inbound.PlaceBidRequest{
		AuctionID: a.ID, UserID: env.buyer, Amount: decimal.NewFromInt(105),
	})
	require.ErrorIs(t, err, shared.ErrBidNotOnIncrement)

	_, err = env.bids.PlaceBid(ctx, inbound.PlaceBidRequest{
		AuctionID: a.ID, UserID: env.buyer, Amount: decimal.NewFromInt(90),
	})
	require.ErrorIs(t, err, shared.ErrBidBelowFloor)

	b, err := env.bids.PlaceBid(ctx, inbound.PlaceBidRequest{
		AuctionID: a.ID, UserID: env.buyer, Amount: decimal.NewFromInt(130),
	})
	require.NoError(t, err)
	assert.True(t, b.Amount.Equal(decimal.NewFromInt(130)))
}

func TestPlaceBidAntiSnipeExtension(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createStarted(t)
	env.join(t, a.ID, env.buyer, decimal.NewFromInt(1000))

	// Move the end time inside the anti-snipe window.
	a.EndTime = time.Now().Add(2 * time.Minute)
	require.NoError(t, env.auctionRepo.Update(ctx, a))
	endBefore := a.EndTime

	_, err := env.bids.PlaceBid(ctx, inbound.PlaceBidRequest{
		AuctionID: a.ID, UserID: env.buyer, Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	got, err := env.auctions.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.EndTime.Equal(endBefore.Add(5*time.Minute)), "end time extended by the snipe extension")

	// The end job must follow the extension, not the original deadline.
	endJob := env.endJobFor(t, a.ID)
	assert.True(t, endJob.RunAt.Equal(got.EndTime), "end job rescheduled to the extended end time")
}

// A timer armed before the extension can still fire at the original
// deadline. The auction must survive that firing and end only at the
// extended time.
func TestAntiSnipeExtensionSurvivesEarlyEndJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createStarted(t)
	env.join(t, a.ID, env.buyer, decimal.NewFromInt(1000))

	a.EndTime = time.Now().Add(2 * time.Minute)
	require.NoError(t, env.auctionRepo.Update(ctx, a))

	_, err := env.bids.PlaceBid(ctx, inbound.PlaceBidRequest{
		AuctionID: a.ID, UserID: env.buyer, Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	// The end job fires as armed at the original deadline.
	result, err := env.auctions.EndAuctionFromJob(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, string(auction.StatusStarted), result.Status)
	assert.Nil(t, result.WinnerID)

	got, err := env.auctions.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusStarted, got.Status, "auction keeps running until the extended end time")

	endJob := env.endJobFor(t, a.ID)
	assert.Equal(t, job.StatusPending, endJob.Status)
	assert.True(t, endJob.RunAt.Equal(got.EndTime))

	// Once the extended deadline passes, the end job lands normally.
	env.passEndTime(t, a.ID)
	result, err = env.auctions.EndAuctionFromJob(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, string(auction.StatusCompleted), result.Status)
	require.NotNil(t, result.WinnerID)
	assert.Equal(t, env.buyer, *result.WinnerID)
}

func TestPlaceBidOutsideSnipeWindowKeepsEndTime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createStarted(t)
	env.join(t, a.ID, env.buyer, decimal.NewFromInt(1000))
	endBefore := a.EndTime

	_, err := env.bids.PlaceBid(ctx, inbound.PlaceBidRequest{
		AuctionID: a.ID, UserID: env.buyer, Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	got, err := env.auctions.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.EndTime.Equal(endBefore), "end time unchanged outside the window")
}

func TestConcurrentBidsKeepHighestBidMonotonic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createStarted(t)

	const bidders = 20
	users := make([]uuid.UUID, bidders)
	for i := range users {
		u := &shared.User{ID: uuid.New(), Name: "bidder", Role: shared.RoleUser}
		require.NoError(t, env.userRepo.Create(ctx, u))
		users[i] = u.ID
		env.join(t, a.ID, u.ID, decimal.NewFromInt(10000))
	}

	// All bidders race with distinct valid amounts. Losers fail the floor
	// check; every accepted bid must raise the highest amount.
	var wg sync.WaitGroup
	accepted := make(chan decimal.Decimal, bidders)
	for i, userID := range users {
		wg.Add(1)
		go func(userID uuid.UUID, amount decimal.Decimal) {
			defer wg.Done()
			b, err := env.bids.PlaceBid(ctx, inbound.PlaceBidRequest{
				AuctionID: a.ID, UserID: userID, Amount: amount,
			})
			if err == nil {
				accepted <- b.Amount
			}
		}(userID, decimal.NewFromInt(int64(100+10*i)))
	}
	wg.Wait()
	close(accepted)

	var amounts []decimal.Decimal
	for amount := range accepted {
		amounts = append(amounts, amount)
	}
	require.NotEmpty(t, amounts)

	// The recorded highest bid equals the maximum accepted amount.
	max := amounts[0]
	for _, amount := range amounts[1:] {
		if amount.GreaterThan(max) {
			max = amount
		}
	}

	got, err := env.auctions.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentHighestBid)
	assert.True(t, got.CurrentHighestBid.Equal(max))

	// Bid history never decreases in amount for accepted bids: the stored
	// highest matches the highest bid row.
	highest, err := env.bids.GetHighestBid(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, highest.Amount.Equal(max))
}

func TestDuplicateSimultaneousBidsOneWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createStarted(t)

	first := &shared.User{ID: uuid.New(), Name: "first", Role: shared.RoleUser}
	second := &shared.User{ID: uuid.New(), Name: "second", Role: shared.RoleUser}
	require.NoError(t, env.userRepo.Create(ctx, first))
	require.NoError(t, env.userRepo.Create(ctx, second))
	env.join(t, a.ID, first.ID, decimal.NewFromInt(1000))
	env.join(t, a.ID, second.ID, decimal.NewFromInt(1000))

	amount := decimal.NewFromInt(150)
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, userID := range []uuid.UUID{first.ID, second.ID} {
		wg.Add(1)
		go func(userID uuid.UUID) {
			defer wg.Done()
			_, err := env.bids.PlaceBid(ctx, inbound.PlaceBidRequest{
				AuctionID: a.ID, UserID: userID, Amount: amount,
			})
			errs <- err
		}(userID)
	}
	wg.Wait()
	close(errs)

	var ok, rejected int
	for err := range errs {
		if err == nil {
			ok++
		} else {
			require.ErrorIs(t, err, shared.ErrBidBelowFloor)
			rejected++
		}
	}
	assert.Equal(t, 1, ok, "exactly one identical bid wins")
	assert.Equal(t, 1, rejected)
}

func TestPlaceBidNotifiesOutbidBidder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createStarted(t)

	rival := &shared.User{ID: uuid.New(), Name: "rival", Role: shared.RoleUser}
	require.NoError(t, env.userRepo.Create(ctx, rival))
	env.join(t, a.ID, env.buyer, decimal.NewFromInt(1000))
	env.join(t, a.ID, rival.ID, decimal.NewFromInt(1000))

	_, err := env.bids.PlaceBid(ctx, inbound.PlaceBidRequest{
		AuctionID: a.ID, UserID: env.buyer, Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	_, err = env.bids.PlaceBid(ctx, inbound.PlaceBidRequest{
		AuctionID: a.ID, UserID: rival.ID, Amount: decimal.NewFromInt(110),
	})
	require.NoError(t, err)

	// Fanout runs on a detached goroutine.
	require.Eventually(t, func() bool {
		for _, n := range env.notifier.forUser(env.buyer) {
			if n.Type == notification.TypeOutbid {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(env.broadcaster.eventsOfType(outbound.EventTypeBidPlaced)) >= 2
	}, 2*time.Second, 10*time.Millisecond)
}
