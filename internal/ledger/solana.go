package ledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/templui/goalstake/internal/calculator"
)

// feeReserve is kept back from the escrow balance to pay the transfer fee.
const feeReserve = 5000

// ErrOutcomeUnknown means a payout was broadcast but neither landed nor expired
// before the transfer timeout. It must be checked by an operator before any
// retry, since the transfer may still have moved funds.
var ErrOutcomeUnknown = errors.New("transfer outcome unknown")

// rpcClient is the subset of the Solana JSON-RPC client the gateway uses.
type rpcClient interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetBlockHeight(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
}

type SolanaConfig struct {
	RPCURL          string
	EscrowKey       solana.PrivateKey
	TransferTimeout time.Duration
}

// SolanaGateway moves native SOL between participants and the escrow.
type SolanaGateway struct {
	client          rpcClient
	escrowKey       solana.PrivateKey
	escrow          solana.PublicKey
	transferTimeout time.Duration
	pollInterval    time.Duration

	// payouts are debits from one account; submitting them one at a time
	// keeps the balance check meaningful.
	submitMu sync.Mutex
}

func NewSolanaGateway(cfg SolanaConfig) *SolanaGateway {
	return newSolanaGateway(rpc.New(cfg.RPCURL), cfg)
}

func newSolanaGateway(client rpcClient, cfg SolanaConfig) *SolanaGateway {
	timeout := cfg.TransferTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &SolanaGateway{
		client:          client,
		escrowKey:       cfg.EscrowKey,
		escrow:          cfg.EscrowKey.PublicKey(),
		transferTimeout: timeout,
		pollInterval:    time.Second,
	}
}

// ParsePrivateKey accepts a base58 secret key or the JSON byte array written
// by solana-keygen.
func ParsePrivateKey(raw string) (solana.PrivateKey, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "[") {
		var ints []int
		err := json.Unmarshal([]byte(raw), &ints)
		if err != nil {
			return nil, fmt.Errorf("failed to parse escrow key: %w", err)
		}
		key := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("failed to parse escrow key: byte %d out of range", i)
			}
			key[i] = byte(v)
		}
		if len(key) != 64 {
			return nil, fmt.Errorf("failed to parse escrow key: expected 64 bytes, got %d", len(key))
		}
		return solana.PrivateKey(key), nil
	}

	key, err := solana.PrivateKeyFromBase58(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse escrow key: %w", err)
	}
	return key, nil
}

func (g *SolanaGateway) Name() string {
	return ProviderSolana
}

func (g *SolanaGateway) EscrowAddress() string {
	return g.escrow.String()
}

func (g *SolanaGateway) ValidateAddress(addr string) error {
	_, err := parseAddress(addr)
	return err
}

func (g *SolanaGateway) BuildTransfer(ctx context.Context, from, to string, amount decimal.Decimal) (*UnsignedTransfer, error) {
	fromKey, err := parseAddress(from)
	if err != nil {
		return nil, err
	}
	toKey, err := parseAddress(to)
	if err != nil {
		return nil, err
	}
	lamports, err := baseUnits(amount)
	if err != nil {
		return nil, err
	}

	latest, err := g.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, unavailable("get latest blockhash", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(lamports, fromKey, toKey).Build(),
		},
		latest.Value.Blockhash,
		solana.TransactionPayer(fromKey),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build transfer: %w", err)
	}

	// Empty signature slots for the client wallet to fill.
	tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)
	wire, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transfer: %w", err)
	}

	return &UnsignedTransfer{
		Transaction:          base64.StdEncoding.EncodeToString(wire),
		From:                 fromKey.String(),
		To:                   toKey.String(),
		Amount:               amount,
		BaseUnits:            lamports,
		RecentBlockhash:      latest.Value.Blockhash.String(),
		LastValidBlockHeight: latest.Value.LastValidBlockHeight,
	}, nil
}

func (g *SolanaGateway) ConfirmationStatus(ctx context.Context, ref string, timeout time.Duration) (Status, error) {
	sig, err := solana.SignatureFromBase58(ref)
	if err != nil {
		return StatusUnknown, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	status, err := g.signatureStatus(ctx, sig)
	if err != nil && ctx.Err() != nil {
		return StatusUnknown, nil
	}
	return status, err
}

func (g *SolanaGateway) signatureStatus(ctx context.Context, sig solana.Signature) (Status, error) {
	out, err := g.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return StatusUnknown, unavailable("get signature status", err)
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return StatusUnknown, nil
	}

	st := out.Value[0]
	if st.Err != nil {
		return StatusFailed, nil
	}

	switch st.ConfirmationStatus {
	case rpc.ConfirmationStatusFinalized:
		return StatusFinalized, nil
	case rpc.ConfirmationStatusConfirmed:
		return StatusConfirmed, nil
	default:
		return StatusPending, nil
	}
}

func (g *SolanaGateway) VerifyTransfer(ctx context.Context, ref, from, to string, amount decimal.Decimal) error {
	sig, err := solana.SignatureFromBase58(ref)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	fromKey, err := parseAddress(from)
	if err != nil {
		return err
	}
	toKey, err := parseAddress(to)
	if err != nil {
		return err
	}
	want, err := baseUnits(amount)
	if err != nil {
		return err
	}

	version := uint64(0)
	out, err := g.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &version,
	})
	if err != nil {
		return unavailable("get transaction", err)
	}
	if out.Meta != nil && out.Meta.Err != nil {
		return fmt.Errorf("%w: %s was rejected by the ledger", ErrTransferMismatch, ref)
	}
	if out.Transaction == nil {
		return unavailable("get transaction", errors.New("empty transaction"))
	}
	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return fmt.Errorf("%w: failed to decode %s: %v", ErrTransferMismatch, ref, err)
	}

	moved := transferredLamports(tx, fromKey, toKey)
	if moved < want {
		return fmt.Errorf("%w: %s moves %d lamports from %s to %s, need %d", ErrTransferMismatch, ref, moved, fromKey, toKey, want)
	}
	return nil
}

// transferredLamports sums the system transfers in tx from one account to
// another.
func transferredLamports(tx *solana.Transaction, from, to solana.PublicKey) uint64 {
	var total uint64
	for _, inst := range tx.Message.Instructions {
		program, err := tx.Message.Program(inst.ProgramIDIndex)
		if err != nil || !program.Equals(solana.SystemProgramID) {
			continue
		}
		accounts, err := inst.ResolveInstructionAccounts(&tx.Message)
		if err != nil {
			continue
		}
		decoded, err := system.DecodeInstruction(accounts, inst.Data)
		if err != nil {
			continue
		}
		transfer, ok := decoded.Impl.(*system.Transfer)
		if !ok || transfer.Lamports == nil {
			continue
		}
		if transfer.GetFundingAccount().PublicKey.Equals(from) && transfer.GetRecipientAccount().PublicKey.Equals(to) {
			total += *transfer.Lamports
		}
	}
	return total
}

func (g *SolanaGateway) SubmitOwnTransfer(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	toKey, err := parseAddress(to)
	if err != nil {
		return "", err
	}
	lamports, err := baseUnits(amount)
	if err != nil {
		return "", err
	}

	g.submitMu.Lock()
	defer g.submitMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, g.transferTimeout)
	defer cancel()

	balance, err := g.client.GetBalance(ctx, g.escrow, rpc.CommitmentConfirmed)
	if err != nil {
		return "", unavailable("get escrow balance", err)
	}
	if balance.Value < lamports+feeReserve {
		return "", fmt.Errorf("%w: need %d lamports, have %d", ErrInsufficientFunds, lamports+feeReserve, balance.Value)
	}

	latest, err := g.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", unavailable("get latest blockhash", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(lamports, g.escrow, toKey).Build(),
		},
		latest.Value.Blockhash,
		solana.TransactionPayer(g.escrow),
	)
	if err != nil {
		return "", fmt.Errorf("failed to build payout: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(g.escrow) {
			return &g.escrowKey
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign payout: %w", err)
	}

	sig, err := g.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		if isInsufficientFunds(err) {
			return "", fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
		}
		return "", unavailable("send payout", err)
	}

	slog.Info("payout submitted", "tx_ref", sig.String(), "to", to, "lamports", lamports)

	err = g.waitCommitted(ctx, sig, latest.Value.LastValidBlockHeight)
	if err != nil {
		return "", err
	}

	return sig.String(), nil
}

// waitCommitted polls until sig is confirmed, the ledger rejects it, or its
// blockhash expires. Both failure outcomes guarantee no funds moved.
func (g *SolanaGateway) waitCommitted(ctx context.Context, sig solana.Signature, lastValid uint64) error {
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		status, err := g.signatureStatus(ctx, sig)
		if err == nil {
			switch {
			case status.Committed():
				return nil
			case status == StatusFailed:
				return fmt.Errorf("%w: payout %s rejected by ledger", ErrLedgerUnavailable, sig)
			}
		}

		if status == StatusUnknown {
			height, herr := g.client.GetBlockHeight(ctx, rpc.CommitmentConfirmed)
			if herr == nil && height > lastValid {
				return fmt.Errorf("%w: payout %s expired before landing", ErrLedgerUnavailable, sig)
			}
		}

		select {
		case <-ctx.Done():
			slog.Error("payout outcome unknown", "tx_ref", sig.String(), "error", ctx.Err())
			return fmt.Errorf("%w: %s", ErrOutcomeUnknown, sig)
		case <-ticker.C:
		}
	}
}

func (g *SolanaGateway) EscrowBalance(ctx context.Context) (decimal.Decimal, error) {
	out, err := g.client.GetBalance(ctx, g.escrow, rpc.CommitmentConfirmed)
	if err != nil {
		return decimal.Zero, unavailable("get escrow balance", err)
	}
	return calculator.FromBaseUnits(out.Value), nil
}

func parseAddress(addr string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(strings.TrimSpace(addr))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return key, nil
}

func baseUnits(amount decimal.Decimal) (uint64, error) {
	err := calculator.ValidateAmount(amount)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return calculator.ToBaseUnits(amount), nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrLedgerUnavailable, op, err)
}

func isInsufficientFunds(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "insufficient funds") ||
		strings.Contains(msg, "insufficient lamports") ||
		strings.Contains(msg, "no record of a prior credit")
}
