package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bidhall-marketplace-service/internal/domain/shared"
	"bidhall-marketplace-service/internal/domain/wallet"
)

// WalletRepository implements the wallet balance and ledger interface
type WalletRepository struct {
	conn *Connection
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(conn *Connection) *WalletRepository {
	return &WalletRepository{conn: conn}
}

// GetByUserID retrieves a user's wallet
func (r *WalletRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*wallet.Wallet, error) {
	query := `
		SELECT user_id, balance, created_at, updated_at
		FROM wallets
		WHERE user_id = $1
	`

	var w wallet.Wallet
	err := r.conn.GetDB().QueryRowContext(ctx, query, userID).Scan(
		&w.UserID,
		&w.Balance,
		&w.CreatedAt,
		&w.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, shared.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	return &w, nil
}

// Debit atomically reduces the balance and writes the paired ledger entry.
// The balance guard in the UPDATE keeps the balance from going negative
// without a separate read.
func (r *WalletRepository) Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, txType wallet.TransactionType, referenceID *uuid.UUID) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return shared.ErrInvalidAmount
	}

	return r.conn.ExecuteTransaction(func(tx *sql.Tx) error {
		query := `
			UPDATE wallets
			SET balance = balance - $2, updated_at = NOW()
			WHERE user_id = $1 AND balance >= $2
		`

		result, err := tx.ExecContext(ctx, query, userID, amount)
		if err != nil {
			return fmt.Errorf("failed to debit wallet: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}

		if rowsAffected == 0 {
			// Distinguish a missing wallet from a short balance.
			var exists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM wallets WHERE user_id = $1)`, userID,
			).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check wallet existence: %w", err)
			}
			if !exists {
				return shared.ErrWalletNotFound
			}
			return shared.ErrInsufficientBalance
		}

		return insertTransaction(ctx, tx, userID, txType, amount, referenceID)
	})
}

// Credit atomically increases the balance, creating the wallet if missing,
// and writes the paired ledger entry.
func (r *WalletRepository) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, txType wallet.TransactionType, referenceID *uuid.UUID) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return shared.ErrInvalidAmount
	}

	return r.conn.ExecuteTransaction(func(tx *sql.Tx) error {
		query := `
			INSERT INTO wallets (user_id, balance, created_at, updated_at)
			VALUES ($1, $2, NOW(), NOW())
			ON CONFLICT (user_id)
			DO UPDATE SET balance = wallets.balance + $2, updated_at = NOW()
		`

		if _, err := tx.ExecContext(ctx, query, userID, amount); err != nil {
			return fmt.Errorf("failed to credit wallet: %w", err)
		}

		return insertTransaction(ctx, tx, userID, txType, amount, referenceID)
	})
}

// ListTransactions retrieves a user's ledger entries, newest first
func (r *WalletRepository) ListTransactions(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*wallet.Transaction, error) {
	query := `
		SELECT id, user_id, type, amount, reference_id, created_at
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.conn.GetDB().QueryContext(ctx, query, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*wallet.Transaction
	for rows.Next() {
		var t wallet.Transaction
		var referenceID uuid.NullUUID
		err := rows.Scan(
			&t.ID,
			&t.UserID,
			&t.Type,
			&t.Amount,
			&referenceID,
			&t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet transaction: %w", err)
		}
		if referenceID.Valid {
			t.ReferenceID = &referenceID.UUID
		}
		transactions = append(transactions, &t)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallet transactions: %w", err)
	}

	return transactions, nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, userID uuid.UUID, txType wallet.TransactionType, amount decimal.Decimal, referenceID *uuid.UUID) error {
	query := `
		INSERT INTO wallet_transactions (id, user_id, type, amount, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if _, err := tx.ExecContext(ctx, query,
		uuid.New(), userID, txType, amount, referenceID, time.Now(),
	); err != nil {
		return fmt.Errorf("failed to insert wallet transaction: %w", err)
	}

	return nil
}
