package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DemoRefPrefix marks every reference minted by the demo ledger.
const DemoRefPrefix = "demo-"

const defaultDemoEscrow = "7G8vtc6KxrFRKE89bXr36Ma31Az6oPJ6TW2wrpf1iRFe"

// Transfer is a payout recorded by the demo ledger.
type Transfer struct {
	Ref    string
	To     string
	Amount decimal.Decimal
}

type deposit struct {
	from   string
	amount decimal.Decimal
}

// DemoGateway is an in-process ledger for development. Nothing it reports
// exists on a real network, so it is refused in production.
type DemoGateway struct {
	mu        sync.Mutex
	escrow    string
	balance   decimal.Decimal
	statuses  map[string]Status
	deposits  map[string]deposit
	transfers []Transfer
}

func NewDemoGateway(escrow string, balance decimal.Decimal) *DemoGateway {
	if escrow == "" {
		escrow = defaultDemoEscrow
	}
	return &DemoGateway{
		escrow:   escrow,
		balance:  balance,
		statuses: make(map[string]Status),
		deposits: make(map[string]deposit),
	}
}

func (g *DemoGateway) Name() string {
	return ProviderDemo
}

func (g *DemoGateway) EscrowAddress() string {
	return g.escrow
}

func (g *DemoGateway) ValidateAddress(addr string) error {
	_, err := parseAddress(addr)
	return err
}

func (g *DemoGateway) BuildTransfer(_ context.Context, from, to string, amount decimal.Decimal) (*UnsignedTransfer, error) {
	if err := g.ValidateAddress(from); err != nil {
		return nil, err
	}
	units, err := baseUnits(amount)
	if err != nil {
		return nil, err
	}
	return &UnsignedTransfer{
		From:            from,
		To:              to,
		Amount:          amount,
		BaseUnits:       units,
		RecentBlockhash: "demo",
	}, nil
}

// Deposit simulates a signed stake transfer from a participant landing with
// the given status and returns its reference.
func (g *DemoGateway) Deposit(from string, amount decimal.Decimal, status Status) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ref := DemoRefPrefix + uuid.NewString()
	g.statuses[ref] = status
	g.deposits[ref] = deposit{from: from, amount: amount}
	if status.Committed() {
		g.balance = g.balance.Add(amount)
	}
	return ref
}

func (g *DemoGateway) ConfirmationStatus(_ context.Context, ref string, _ time.Duration) (Status, error) {
	if !strings.HasPrefix(ref, DemoRefPrefix) {
		return StatusUnknown, fmt.Errorf("%w: %q is not a demo reference", ErrInvalidReference, ref)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	status, ok := g.statuses[ref]
	if !ok {
		return StatusUnknown, nil
	}
	return status, nil
}

func (g *DemoGateway) VerifyTransfer(_ context.Context, ref, from, to string, amount decimal.Decimal) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	d, ok := g.deposits[ref]
	switch {
	case !ok:
		return fmt.Errorf("%w: %s is not a deposit", ErrTransferMismatch, ref)
	case d.from != from || to != g.escrow:
		return fmt.Errorf("%w: %s was sent by %s to the escrow", ErrTransferMismatch, ref, d.from)
	case d.amount.LessThan(amount):
		return fmt.Errorf("%w: %s moved %s, need %s", ErrTransferMismatch, ref, d.amount, amount)
	}
	return nil
}

func (g *DemoGateway) SubmitOwnTransfer(_ context.Context, to string, amount decimal.Decimal) (string, error) {
	if _, err := baseUnits(amount); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.balance.LessThan(amount) {
		return "", fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, amount, g.balance)
	}

	ref := DemoRefPrefix + uuid.NewString()
	g.balance = g.balance.Sub(amount)
	g.statuses[ref] = StatusFinalized
	g.transfers = append(g.transfers, Transfer{Ref: ref, To: to, Amount: amount})
	return ref, nil
}

func (g *DemoGateway) EscrowBalance(_ context.Context) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balance, nil
}

// Transfers returns every payout the demo ledger executed.
func (g *DemoGateway) Transfers() []Transfer {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Transfer, len(g.transfers))
	copy(out, g.transfers)
	return out
}
