package app

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidhall-marketplace-service/internal/domain/shared"
	"bidhall-marketplace-service/internal/domain/wallet"
)

func newWalletEnv(t *testing.T) (*WalletService, *fakeWalletRepo, uuid.UUID) {
	t.Helper()

	walletRepo := newFakeWalletRepo()
	userRepo := newFakeUserRepo()

	user := &shared.User{ID: uuid.New(), Name: "user", Role: shared.RoleUser}
	require.NoError(t, userRepo.Create(context.Background(), user))

	service := NewWalletService(WalletServiceParams{
		WalletRepo: walletRepo,
		UserRepo:   userRepo,
		Logger:     zerolog.Nop(),
	})

	return service, walletRepo, user.ID
}

func TestDepositCreatesWallet(t *testing.T) {
	service, walletRepo, userID := newWalletEnv(t)
	ctx := context.Background()

	require.NoError(t, service.Deposit(ctx, userID, decimal.NewFromInt(250)))

	w, err := service.GetWallet(ctx, userID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(250)))

	deposits := walletRepo.transactionsOfType(wallet.TypeDeposit)
	require.Len(t, deposits, 1)
	assert.True(t, deposits[0].Amount.Equal(decimal.NewFromInt(250)))
}

func TestDepositValidation(t *testing.T) {
	service, _, userID := newWalletEnv(t)
	ctx := context.Background()

	require.ErrorIs(t, service.Deposit(ctx, userID, decimal.Zero), shared.ErrInvalidAmount)
	require.ErrorIs(t, service.Deposit(ctx, userID, decimal.NewFromInt(-5)), shared.ErrInvalidAmount)
	require.ErrorIs(t, service.Deposit(ctx, uuid.New(), decimal.NewFromInt(10)), shared.ErrUserNotFound)
}

func TestWithdraw(t *testing.T) {
	service, walletRepo, userID := newWalletEnv(t)
	ctx := context.Background()

	require.NoError(t, service.Deposit(ctx, userID, decimal.NewFromInt(100)))
	require.NoError(t, service.Withdraw(ctx, userID, decimal.NewFromInt(40)))

	w, err := service.GetWallet(ctx, userID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(60)))

	withdrawals := walletRepo.transactionsOfType(wallet.TypeWithdraw)
	require.Len(t, withdrawals, 1)
}

func TestWithdrawInsufficientBalance(t *testing.T) {
	service, walletRepo, userID := newWalletEnv(t)
	ctx := context.Background()

	require.NoError(t, service.Deposit(ctx, userID, decimal.NewFromInt(30)))
	require.ErrorIs(t, service.Withdraw(ctx, userID, decimal.NewFromInt(50)), shared.ErrInsufficientBalance)

	// Balance untouched, no ledger entry written.
	w, err := service.GetWallet(ctx, userID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(30)))
	assert.Empty(t, walletRepo.transactionsOfType(wallet.TypeWithdraw))
}

func TestGetTransactions(t *testing.T) {
	service, _, userID := newWalletEnv(t)
	ctx := context.Background()

	require.NoError(t, service.Deposit(ctx, userID, decimal.NewFromInt(100)))
	require.NoError(t, service.Withdraw(ctx, userID, decimal.NewFromInt(25)))

	transactions, err := service.GetTransactions(ctx, userID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, transactions, 2)
}
