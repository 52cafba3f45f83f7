package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrLedgerUnavailable is a transient network or node fault. Retry with backoff.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	// ErrInsufficientFunds means the escrow account cannot cover a payout.
	// Retrying will not help until an operator funds the escrow.
	ErrInsufficientFunds = errors.New("escrow has insufficient funds")
	ErrInvalidAddress    = errors.New("invalid ledger address")
	ErrInvalidReference  = errors.New("invalid transaction reference")
	ErrInvalidAmount     = errors.New("invalid transfer amount")
	// ErrTransferMismatch means a committed transaction does not move the
	// expected amount between the expected accounts.
	ErrTransferMismatch = errors.New("transfer does not match stake")
)

// Status is the ledger's durability state for a transaction.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFinalized Status = "finalized"
	// StatusFailed is a transaction the ledger executed and rejected. It will
	// never become confirmed.
	StatusFailed Status = "failed"
)

// Committed reports whether funds moved durably enough to act on.
func (s Status) Committed() bool {
	return s == StatusConfirmed || s == StatusFinalized
}

// UnsignedTransfer is handed to the client, signed off-system and submitted
// by the client itself.
type UnsignedTransfer struct {
	Transaction          string          `json:"transaction"` // base64 wire transaction with empty signature slots
	From                 string          `json:"from"`
	To                   string          `json:"to"`
	Amount               decimal.Decimal `json:"amount"`
	BaseUnits            uint64          `json:"baseUnits"`
	RecentBlockhash      string          `json:"recentBlockhash"`
	LastValidBlockHeight uint64          `json:"lastValidBlockHeight"`
}

// Gateway wraps the external ledger.
type Gateway interface {
	// Name returns the provider name ("solana", "demo")
	Name() string

	// EscrowAddress is the system-controlled account that custodies stakes.
	EscrowAddress() string

	// ValidateAddress checks that addr is a well-formed account address.
	ValidateAddress(addr string) error

	// BuildTransfer builds an unsigned transfer. It only reads from the ledger.
	BuildTransfer(ctx context.Context, from, to string, amount decimal.Decimal) (*UnsignedTransfer, error)

	// ConfirmationStatus reports the status of ref, giving up after timeout
	// with StatusUnknown instead of blocking.
	ConfirmationStatus(ctx context.Context, ref string, timeout time.Duration) (Status, error)

	// VerifyTransfer checks that ref moved at least amount from from to to.
	VerifyTransfer(ctx context.Context, ref, from, to string, amount decimal.Decimal) error

	// SubmitOwnTransfer pays amount from the escrow to recipient and returns
	// the transaction reference once the ledger has committed it.
	SubmitOwnTransfer(ctx context.Context, to string, amount decimal.Decimal) (string, error)

	// EscrowBalance returns the spendable escrow balance.
	EscrowBalance(ctx context.Context) (decimal.Decimal, error)
}
