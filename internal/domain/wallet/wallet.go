package wallet

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet holds a user's spendable balance. Every balance change carries a
// paired ledger transaction written in the same database transaction.
type Wallet struct {
	UserID    uuid.UUID       `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TransactionType labels a ledger entry
type TransactionType string

const (
	TypeDeposit     TransactionType = "deposit"
	TypeWithdraw    TransactionType = "withdraw"
	TypeParticipate TransactionType = "participate"
	TypeRefund      TransactionType = "refund"
	TypePurchase    TransactionType = "purchase"
)

// Transaction is one immutable ledger entry. Amount is always positive;
// the type carries the direction. ReferenceID ties fees, refunds and
// purchases back to their auction.
type Transaction struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	Type        TransactionType `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	ReferenceID *uuid.UUID      `json:"reference_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Debits reports whether this transaction type reduces the balance.
func (t TransactionType) Debits() bool {
	switch t {
	case TypeWithdraw, TypeParticipate, TypePurchase:
		return true
	}
	return false
}
