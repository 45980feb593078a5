package app

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bidhall-marketplace-service/internal/domain/shared"
	"bidhall-marketplace-service/internal/domain/wallet"
	"bidhall-marketplace-service/internal/ports/outbound"
)

// WalletService implements the wallet use cases
type WalletService struct {
	walletRepo outbound.WalletRepository
	userRepo   outbound.UserRepository
	logger     zerolog.Logger
}

type WalletServiceParams struct {
	WalletRepo outbound.WalletRepository
	UserRepo   outbound.UserRepository
	Logger     zerolog.Logger
}

// NewWalletService creates a new wallet service
func NewWalletService(params WalletServiceParams) *WalletService {
	return &WalletService{
		walletRepo: params.WalletRepo,
		userRepo:   params.UserRepo,
		logger:     params.Logger.With().Str("component", "wallet_service").Logger(),
	}
}

// GetWallet retrieves a user's wallet
func (service *WalletService) GetWallet(ctx context.Context, userID uuid.UUID) (*wallet.Wallet, error) {
	return service.walletRepo.GetByUserID(ctx, userID)
}

// Deposit adds funds to a user's wallet, creating it on first use
func (service *WalletService) Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return shared.ErrInvalidAmount
	}

	if _, err := service.userRepo.GetByID(ctx, userID); err != nil {
		return shared.ErrUserNotFound
	}

	if err := service.walletRepo.Credit(ctx, userID, amount, wallet.TypeDeposit, nil); err != nil {
		service.logger.Error().Err(err).
			Str("user_id", userID.String()).
			Str("amount", amount.String()).
			Msg("Deposit failed")
		return err
	}

	service.logger.Info().
		Str("user_id", userID.String()).
		Str("amount", amount.String()).
		Msg("Deposit completed")

	return nil
}

// Withdraw removes funds from a user's wallet
func (service *WalletService) Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return shared.ErrInvalidAmount
	}

	if err := service.walletRepo.Debit(ctx, userID, amount, wallet.TypeWithdraw, nil); err != nil {
		service.logger.Warn().Err(err).
			Str("user_id", userID.String()).
			Str("amount", amount.String()).
			Msg("Withdrawal failed")
		return err
	}

	service.logger.Info().
		Str("user_id", userID.String()).
		Str("amount", amount.String()).
		Msg("Withdrawal completed")

	return nil
}

// GetTransactions retrieves a user's ledger entries
func (service *WalletService) GetTransactions(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*wallet.Transaction, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	return service.walletRepo.ListTransactions(ctx, userID, page, pageSize)
}
