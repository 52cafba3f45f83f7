package ledger

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/templui/goalstake/internal/config"
)

const (
	ProviderSolana = "solana"
	ProviderDemo   = "demo"
)

// NewGateway creates a ledger gateway based on configuration
func NewGateway(cfg *config.Config) (Gateway, error) {
	provider := cfg.LedgerProvider

	slog.Info("initializing ledger gateway", "provider", provider)

	switch provider {
	case ProviderSolana:
		if cfg.SolanaEscrowPrivateKey == "" {
			return nil, fmt.Errorf("SOLANA_ESCROW_PRIVATE_KEY is required when using the solana ledger")
		}
		key, err := ParsePrivateKey(cfg.SolanaEscrowPrivateKey)
		if err != nil {
			return nil, err
		}
		return NewSolanaGateway(SolanaConfig{
			RPCURL:          cfg.SolanaRPCURL,
			EscrowKey:       key,
			TransferTimeout: cfg.LedgerTransferTimeout,
		}), nil

	case ProviderDemo:
		if cfg.IsProduction() {
			return nil, fmt.Errorf("demo ledger is not allowed in production")
		}
		balance, err := decimal.NewFromString(cfg.DemoEscrowBalance)
		if err != nil {
			return nil, fmt.Errorf("invalid DEMO_ESCROW_BALANCE: %w", err)
		}
		return NewDemoGateway(cfg.EscrowAddress, balance), nil

	default:
		return nil, fmt.Errorf("unknown ledger provider: %s (supported: solana, demo)", provider)
	}
}
