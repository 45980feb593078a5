package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bidhall-marketplace-service/internal/domain/auction"
	"bidhall-marketplace-service/internal/domain/bid"
	"bidhall-marketplace-service/internal/domain/job"
	"bidhall-marketplace-service/internal/domain/notification"
	"bidhall-marketplace-service/internal/domain/shared"
	"bidhall-marketplace-service/internal/domain/wallet"
	"bidhall-marketplace-service/internal/ports/outbound"
)

// In-memory fakes implementing the outbound ports. They reproduce the
// repositories' locking and error behavior closely enough for the service
// tests, including serialized bid placement.

type fakeAuctionRepo struct {
	mu       sync.Mutex
	auctions map[uuid.UUID]*auction.Auction
}

func newFakeAuctionRepo() *fakeAuctionRepo {
	return &fakeAuctionRepo{auctions: make(map[uuid.UUID]*auction.Auction)}
}

func (f *fakeAuctionRepo) Create(_ context.Context, a *auction.Auction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *a
	f.auctions[a.ID] = &copied
	return nil
}

func (f *fakeAuctionRepo) GetByID(_ context.Context, id uuid.UUID) (*auction.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.auctions[id]
	if !ok || a.DeletedAt != nil {
		return nil, shared.ErrAuctionNotFound
	}
	copied := *a
	return &copied, nil
}

func (f *fakeAuctionRepo) List(_ context.Context, status *auction.Status, _, _ int) ([]*auction.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*auction.Auction
	for _, a := range f.auctions {
		if a.DeletedAt != nil {
			continue
		}
		if status != nil && a.Status != *status {
			continue
		}
		copied := *a
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeAuctionRepo) GetNonTerminalByItemID(_ context.Context, itemID uuid.UUID) ([]*auction.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*auction.Auction
	for _, a := range f.auctions {
		if a.ItemID == itemID && a.DeletedAt == nil && !a.Status.Terminal() {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeAuctionRepo) GetEndingWithin(_ context.Context, window time.Duration) ([]*auction.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(window)
	var out []*auction.Auction
	for _, a := range f.auctions {
		if a.Status == auction.StatusStarted && a.DeletedAt == nil &&
			a.EndTime.After(now) && !a.EndTime.After(cutoff) {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeAuctionRepo) Update(_ context.Context, a *auction.Auction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.auctions[a.ID]
	if !ok || existing.DeletedAt != nil {
		return shared.ErrAuctionNotFound
	}
	copied := *a
	f.auctions[a.ID] = &copied
	return nil
}

func (f *fakeAuctionRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.auctions[id]
	if !ok || a.DeletedAt != nil {
		return shared.ErrAuctionNotFound
	}
	now := time.Now()
	a.Status = auction.StatusDeleted
	a.DeletedAt = &now
	return nil
}

type fakeParticipantRepo struct {
	mu           sync.Mutex
	wallets      *fakeWalletRepo
	participants map[uuid.UUID]map[uuid.UUID]*auction.Participant
}

func newFakeParticipantRepo(wallets *fakeWalletRepo) *fakeParticipantRepo {
	return &fakeParticipantRepo{
		wallets:      wallets,
		participants: make(map[uuid.UUID]map[uuid.UUID]*auction.Participant),
	}
}

func (f *fakeParticipantRepo) Create(_ context.Context, p *auction.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	byUser, ok := f.participants[p.AuctionID]
	if !ok {
		byUser = make(map[uuid.UUID]*auction.Participant)
		f.participants[p.AuctionID] = byUser
	}
	if _, exists := byUser[p.UserID]; exists {
		return shared.ErrAlreadyParticipant
	}
	copied := *p
	byUser[p.UserID] = &copied
	return nil
}

// CreateWithFee reproduces the all-or-nothing transaction: a duplicate
// join debits nothing, and a failed debit records no participant.
func (f *fakeParticipantRepo) CreateWithFee(ctx context.Context, p *auction.Participant, fee decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.participants[p.AuctionID][p.UserID]; exists {
		return shared.ErrAlreadyParticipant
	}
	if err := f.wallets.Debit(ctx, p.UserID, fee, wallet.TypeParticipate, &p.AuctionID); err != nil {
		return err
	}
	byUser, ok := f.participants[p.AuctionID]
	if !ok {
		byUser = make(map[uuid.UUID]*auction.Participant)
		f.participants[p.AuctionID] = byUser
	}
	copied := *p
	byUser[p.UserID] = &copied
	return nil
}

func (f *fakeParticipantRepo) Get(_ context.Context, auctionID, userID uuid.UUID) (*auction.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.participants[auctionID][userID]
	if !ok {
		return nil, shared.ErrParticipantNotFound
	}
	copied := *p
	return &copied, nil
}

func (f *fakeParticipantRepo) ListByAuction(_ context.Context, auctionID uuid.UUID) ([]*auction.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*auction.Participant
	for _, p := range f.participants[auctionID] {
		copied := *p
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeParticipantRepo) Delete(_ context.Context, auctionID, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.participants[auctionID][userID]; !ok {
		return shared.ErrParticipantNotFound
	}
	delete(f.participants[auctionID], userID)
	return nil
}

// fakeBidRepo serializes PlaceBid with a mutex the way the SQL
// implementation serializes with a row lock.
type fakeBidRepo struct {
	mu          sync.Mutex
	auctionRepo *fakeAuctionRepo
	bids        map[uuid.UUID][]*bid.Bid
}

func newFakeBidRepo(auctionRepo *fakeAuctionRepo) *fakeBidRepo {
	return &fakeBidRepo{auctionRepo: auctionRepo, bids: make(map[uuid.UUID][]*bid.Bid)}
}

func (f *fakeBidRepo) PlaceBid(ctx context.Context, params outbound.PlaceBidParams) (*outbound.PlaceBidResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, err := f.auctionRepo.GetByID(ctx, params.AuctionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if a.Status != auction.StatusStarted {
		return nil, shared.ErrAuctionNotAcceptingBids
	}
	if !now.Before(a.EndTime) {
		return nil, shared.ErrAuctionAlreadyEnded
	}

	floor := bid.NextValidBid(a.CurrentHighestBid, a.BidIncrement, a.StartingPrice)
	if err := bid.ValidateAmount(params.Amount, floor, a.BidIncrement); err != nil {
		return nil, err
	}

	result := &outbound.PlaceBidResult{}
	if highest := f.highestLocked(params.AuctionID); highest != nil {
		result.PreviousBidderID = &highest.UserID
		amount := highest.Amount
		result.PreviousAmount = &amount
	}

	newBid := &bid.Bid{
		ID:        uuid.New(),
		AuctionID: params.AuctionID,
		UserID:    params.UserID,
		Amount:    params.Amount,
		CreatedAt: now,
	}
	f.bids[params.AuctionID] = append(f.bids[params.AuctionID], newBid)

	newEndTime := a.EndTime
	if bid.ShouldExtend(a.EndTime, now) {
		newEndTime = a.EndTime.Add(bid.SnipeExtension)
		result.EndTimeExtended = true
	}

	a.CurrentHighestBid = &newBid.Amount
	a.HighestBidID = &newBid.ID
	a.EndTime = newEndTime
	a.UpdatedAt = now
	if err := f.auctionRepo.Update(ctx, a); err != nil {
		return nil, err
	}

	result.Bid = newBid
	result.NewEndTime = newEndTime
	return result, nil
}

func (f *fakeBidRepo) highestLocked(auctionID uuid.UUID) *bid.Bid {
	var highest *bid.Bid
	for _, b := range f.bids[auctionID] {
		if highest == nil || b.Amount.GreaterThan(highest.Amount) {
			highest = b
		}
	}
	return highest
}

func (f *fakeBidRepo) GetByID(_ context.Context, id uuid.UUID) (*bid.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, bids := range f.bids {
		for _, b := range bids {
			if b.ID == id {
				copied := *b
				return &copied, nil
			}
		}
	}
	return nil, shared.ErrNoBidsFound
}

func (f *fakeBidRepo) GetByAuctionID(_ context.Context, auctionID uuid.UUID) ([]*bid.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*bid.Bid
	for _, b := range f.bids[auctionID] {
		copied := *b
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeBidRepo) GetHighestBid(_ context.Context, auctionID uuid.UUID) (*bid.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	highest := f.highestLocked(auctionID)
	if highest == nil {
		return nil, shared.ErrNoBidsFound
	}
	copied := *highest
	return &copied, nil
}

type fakeItemRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*shared.Item
}

func newFakeItemRepo() *fakeItemRepo {
	return &fakeItemRepo{items: make(map[uuid.UUID]*shared.Item)}
}

func (f *fakeItemRepo) Create(_ context.Context, item *shared.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *item
	f.items[item.ID] = &copied
	return nil
}

func (f *fakeItemRepo) GetByID(_ context.Context, id uuid.UUID) (*shared.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, shared.ErrItemNotFound
	}
	copied := *item
	return &copied, nil
}

func (f *fakeItemRepo) Update(_ context.Context, item *shared.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[item.ID]; !ok {
		return shared.ErrItemNotFound
	}
	copied := *item
	f.items[item.ID] = &copied
	return nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*shared.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*shared.User)}
}

func (f *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*shared.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) Create(_ context.Context, u *shared.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *u
	f.users[u.ID] = &copied
	return nil
}

type fakeWalletRepo struct {
	mu       sync.Mutex
	balances map[uuid.UUID]decimal.Decimal
	ledger   []*wallet.Transaction
}

func newFakeWalletRepo() *fakeWalletRepo {
	return &fakeWalletRepo{balances: make(map[uuid.UUID]decimal.Decimal)}
}

func (f *fakeWalletRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*wallet.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	balance, ok := f.balances[userID]
	if !ok {
		return nil, shared.ErrWalletNotFound
	}
	return &wallet.Wallet{UserID: userID, Balance: balance}, nil
}

func (f *fakeWalletRepo) Debit(_ context.Context, userID uuid.UUID, amount decimal.Decimal, txType wallet.TransactionType, referenceID *uuid.UUID) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return shared.ErrInvalidAmount
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	balance, ok := f.balances[userID]
	if !ok {
		return shared.ErrWalletNotFound
	}
	if balance.LessThan(amount) {
		return shared.ErrInsufficientBalance
	}
	f.balances[userID] = balance.Sub(amount)
	f.appendLocked(userID, txType, amount, referenceID)
	return nil
}

func (f *fakeWalletRepo) Credit(_ context.Context, userID uuid.UUID, amount decimal.Decimal, txType wallet.TransactionType, referenceID *uuid.UUID) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return shared.ErrInvalidAmount
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[userID] = f.balances[userID].Add(amount)
	f.appendLocked(userID, txType, amount, referenceID)
	return nil
}

func (f *fakeWalletRepo) ListTransactions(_ context.Context, userID uuid.UUID, _, _ int) ([]*wallet.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*wallet.Transaction
	for _, t := range f.ledger {
		if t.UserID == userID {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeWalletRepo) appendLocked(userID uuid.UUID, txType wallet.TransactionType, amount decimal.Decimal, referenceID *uuid.UUID) {
	f.ledger = append(f.ledger, &wallet.Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        txType,
		Amount:      amount,
		ReferenceID: referenceID,
		CreatedAt:   time.Now(),
	})
}

func (f *fakeWalletRepo) setBalance(userID uuid.UUID, balance decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[userID] = balance
}

func (f *fakeWalletRepo) balance(userID uuid.UUID) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[userID]
}

func (f *fakeWalletRepo) transactionsOfType(txType wallet.TransactionType) []*wallet.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*wallet.Transaction
	for _, t := range f.ledger {
		if t.Type == txType {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out
}

// fakeScheduler records created and cancelled jobs without timers
type fakeScheduler struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*job.Job
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{jobs: make(map[uuid.UUID]*job.Job)}
}

func (f *fakeScheduler) CreateJob(_ context.Context, jobType, entity string, referenceID uuid.UUID, runAt time.Time, cfg *job.Config) (*job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.Type == jobType && j.ReferenceID == referenceID && j.Status.InFlight() {
			return nil, shared.ErrJobAlreadyScheduled
		}
	}
	config := job.DefaultConfig()
	if cfg != nil {
		config = *cfg
	}
	j := &job.Job{
		ID:          uuid.New(),
		Type:        jobType,
		Entity:      entity,
		ReferenceID: referenceID,
		RunAt:       runAt,
		Status:      job.StatusPending,
		Config:      config,
	}
	f.jobs[j.ID] = j
	return j, nil
}

func (f *fakeScheduler) RescheduleJob(_ context.Context, jobType string, referenceID uuid.UUID, runAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.Type == jobType && j.ReferenceID == referenceID && j.Status.InFlight() {
			j.Status = job.StatusPending
			j.RunAt = runAt
			return nil
		}
	}
	return shared.ErrJobNotFound
}

func (f *fakeScheduler) CancelJob(_ context.Context, jobID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return shared.ErrJobNotFound
	}
	if !j.Status.Terminal() {
		j.Status = job.StatusCancelled
	}
	return nil
}

func (f *fakeScheduler) CancelJobsForReference(_ context.Context, referenceID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.ReferenceID == referenceID && j.Status.InFlight() {
			j.Status = job.StatusCancelled
		}
	}
	return nil
}

func (f *fakeScheduler) jobsForReference(referenceID uuid.UUID) []*job.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*job.Job
	for _, j := range f.jobs {
		if j.ReferenceID == referenceID {
			copied := *j
			out = append(out, &copied)
		}
	}
	return out
}

// fakeBroadcaster records published events
type fakeBroadcaster struct {
	mu     sync.Mutex
	events []outbound.Event
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{}
}

func (f *fakeBroadcaster) Subscribe(context.Context, outbound.Topic, string, chan outbound.Event) error {
	return nil
}

func (f *fakeBroadcaster) Unsubscribe(context.Context, outbound.Topic, string) error {
	return nil
}

func (f *fakeBroadcaster) Publish(_ context.Context, _ outbound.Topic, event outbound.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeBroadcaster) GetSubscribers(context.Context, outbound.Topic) ([]string, error) {
	return nil, nil
}

func (f *fakeBroadcaster) IsSubscribed(context.Context, outbound.Topic, string) bool {
	return false
}

func (f *fakeBroadcaster) eventsOfType(eventType outbound.EventType) []outbound.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []outbound.Event
	for _, e := range f.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// fakeNotifier records delivered notifications
type fakeNotifier struct {
	mu            sync.Mutex
	notifications []*notification.Notification
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{}
}

func (f *fakeNotifier) Notify(_ context.Context, n *notification.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *n
	f.notifications = append(f.notifications, &copied)
}

func (f *fakeNotifier) forUser(userID uuid.UUID) []*notification.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*notification.Notification
	for _, n := range f.notifications {
		if n.Target.UserID != nil && *n.Target.UserID == userID {
			copied := *n
			out = append(out, &copied)
		}
	}
	return out
}
