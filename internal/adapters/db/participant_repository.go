package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"bidhall-marketplace-service/internal/domain/auction"
	"bidhall-marketplace-service/internal/domain/shared"
	"bidhall-marketplace-service/internal/domain/wallet"
)

// ParticipantRepository implements the participant repository interface
type ParticipantRepository struct {
	conn *Connection
}

// NewParticipantRepository creates a new participant repository
func NewParticipantRepository(conn *Connection) *ParticipantRepository {
	return &ParticipantRepository{conn: conn}
}

// Create records a user joining an auction. The (auction_id, user_id)
// unique constraint rejects duplicate joins.
func (r *ParticipantRepository) Create(ctx context.Context, p *auction.Participant) error {
	query := `
		INSERT INTO auction_participants (id, auction_id, user_id, joined_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.conn.GetDB().ExecContext(ctx, query,
		p.ID,
		p.AuctionID,
		p.UserID,
		p.JoinedAt,
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return shared.ErrAlreadyParticipant
		}
		return fmt.Errorf("failed to create participant: %w", err)
	}

	return nil
}

// CreateWithFee debits the participation fee and records the participant
// inside one transaction. A duplicate join or a short balance rolls both
// back, so no fee is ever charged without a matching participant row.
func (r *ParticipantRepository) CreateWithFee(ctx context.Context, p *auction.Participant, fee decimal.Decimal) error {
	if fee.LessThanOrEqual(decimal.Zero) {
		return shared.ErrInvalidAmount
	}

	return r.conn.ExecuteTransaction(func(tx *sql.Tx) error {
		debit := `
			UPDATE wallets
			SET balance = balance - $2, updated_at = NOW()
			WHERE user_id = $1 AND balance >= $2
		`

		result, err := tx.ExecContext(ctx, debit, p.UserID, fee)
		if err != nil {
			return fmt.Errorf("failed to debit participation fee: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}

		if rowsAffected == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM wallets WHERE user_id = $1)`, p.UserID,
			).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check wallet existence: %w", err)
			}
			if !exists {
				return shared.ErrWalletNotFound
			}
			return shared.ErrInsufficientBalance
		}

		if err := insertTransaction(ctx, tx, p.UserID, wallet.TypeParticipate, fee, &p.AuctionID); err != nil {
			return err
		}

		insert := `
			INSERT INTO auction_participants (id, auction_id, user_id, joined_at)
			VALUES ($1, $2, $3, $4)
		`

		if _, err := tx.ExecContext(ctx, insert, p.ID, p.AuctionID, p.UserID, p.JoinedAt); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return shared.ErrAlreadyParticipant
			}
			return fmt.Errorf("failed to create participant: %w", err)
		}

		return nil
	})
}

// Get retrieves a participant row for an auction and user
func (r *ParticipantRepository) Get(ctx context.Context, auctionID, userID uuid.UUID) (*auction.Participant, error) {
	query := `
		SELECT id, auction_id, user_id, joined_at
		FROM auction_participants
		WHERE auction_id = $1 AND user_id = $2
	`

	var p auction.Participant
	err := r.conn.GetDB().QueryRowContext(ctx, query, auctionID, userID).Scan(
		&p.ID,
		&p.AuctionID,
		&p.UserID,
		&p.JoinedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, shared.ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}

	return &p, nil
}

// ListByAuction retrieves all participants of an auction
func (r *ParticipantRepository) ListByAuction(ctx context.Context, auctionID uuid.UUID) ([]*auction.Participant, error) {
	query := `
		SELECT id, auction_id, user_id, joined_at
		FROM auction_participants
		WHERE auction_id = $1
		ORDER BY joined_at ASC
	`

	rows, err := r.conn.GetDB().QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var participants []*auction.Participant
	for rows.Next() {
		var p auction.Participant
		err := rows.Scan(
			&p.ID,
			&p.AuctionID,
			&p.UserID,
			&p.JoinedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, &p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participants: %w", err)
	}

	return participants, nil
}

// Delete removes a participant row
func (r *ParticipantRepository) Delete(ctx context.Context, auctionID, userID uuid.UUID) error {
	query := `DELETE FROM auction_participants WHERE auction_id = $1 AND user_id = $2`

	result, err := r.conn.GetDB().ExecContext(ctx, query, auctionID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete participant: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return shared.ErrParticipantNotFound
	}

	return nil
}
