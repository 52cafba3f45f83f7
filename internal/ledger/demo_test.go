package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/goalstake/internal/config"
)

const depositor = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"

func TestDemoGateway(t *testing.T) {
	ctx := context.Background()
	g := NewDemoGateway("", decimal.NewFromInt(1))

	ref := g.Deposit(depositor, decimal.RequireFromString("0.5"), StatusFinalized)
	status, err := g.ConfirmationStatus(ctx, ref, time.Second)
	require.NoError(t, err)
	assert.True(t, status.Committed())

	status, err = g.ConfirmationStatus(ctx, DemoRefPrefix+"missing", time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, status)

	_, err = g.ConfirmationStatus(ctx, "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW", time.Second)
	assert.ErrorIs(t, err, ErrInvalidReference)

	payout, err := g.SubmitOwnTransfer(ctx, "recipient", decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Contains(t, payout, DemoRefPrefix)

	balance, err := g.EscrowBalance(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.5").Equal(balance))

	_, err = g.SubmitOwnTransfer(ctx, "recipient", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Len(t, g.Transfers(), 1)
}

func TestDemoVerifyTransfer(t *testing.T) {
	ctx := context.Background()
	g := NewDemoGateway("", decimal.Zero)
	ref := g.Deposit(depositor, decimal.NewFromInt(2), StatusFinalized)

	require.NoError(t, g.VerifyTransfer(ctx, ref, depositor, g.EscrowAddress(), decimal.NewFromInt(2)))
	require.NoError(t, g.VerifyTransfer(ctx, ref, depositor, g.EscrowAddress(), decimal.NewFromInt(1)))

	err := g.VerifyTransfer(ctx, ref, depositor, g.EscrowAddress(), decimal.NewFromInt(3))
	assert.ErrorIs(t, err, ErrTransferMismatch)

	err = g.VerifyTransfer(ctx, ref, "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin", g.EscrowAddress(), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrTransferMismatch)

	payout, err := g.SubmitOwnTransfer(ctx, depositor, decimal.NewFromInt(1))
	require.NoError(t, err)
	err = g.VerifyTransfer(ctx, payout, depositor, g.EscrowAddress(), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrTransferMismatch)
}

func TestNewGateway(t *testing.T) {
	g, err := NewGateway(&config.Config{AppEnv: "development", LedgerProvider: "demo", DemoEscrowBalance: "10"})
	require.NoError(t, err)
	assert.Equal(t, ProviderDemo, g.Name())

	_, err = NewGateway(&config.Config{AppEnv: "production", LedgerProvider: "demo", DemoEscrowBalance: "10"})
	assert.Error(t, err)

	_, err = NewGateway(&config.Config{LedgerProvider: "solana"})
	assert.Error(t, err)

	_, err = NewGateway(&config.Config{LedgerProvider: "bitcoin"})
	assert.Error(t, err)
}
