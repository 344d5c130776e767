package lifecycle

import (
	"context"

	"github.com/polartar/vtvl-engine/internal/multisig"
	"github.com/polartar/vtvl-engine/internal/vesting"
	"github.com/shopspring/decimal"
)

// TxOutcome is the tri-state result of an on-chain confirmation check.
// Ambiguity stays PENDING: only a definitive revert maps to reverted.
type TxOutcome int

const (
	TxOutcomePending TxOutcome = iota
	TxOutcomeConfirmed
	TxOutcomeReverted
)

// ContractClient is the vesting contract collaborator.
type ContractClient interface {
	Address() string

	// Deploy creates the organization's vesting contract and returns its
	// address once the deployment succeeded.
	Deploy(ctx context.Context, organizationID string) (string, error)

	// NumTokensReservedForVesting reads the tokens already committed to
	// existing claims.
	NumTokensReservedForVesting(ctx context.Context) (decimal.Decimal, error)

	// Call-data builders; encoding is the client's concern.
	CreateClaimsBatchData(inputs *vesting.BatchClaimInputs) (multisig.TxData, error)
	RevokeClaimData(recipient string) (multisig.TxData, error)
	WithdrawAdminData(amount decimal.Decimal) (multisig.TxData, error)

	// TransactionOutcome checks whether a sent transaction confirmed,
	// reverted, or is still in flight.
	TransactionOutcome(ctx context.Context, hash string) (TxOutcome, error)
}

// TokenClient is the token contract collaborator.
type TokenClient interface {
	BalanceOf(ctx context.Context, address string) (decimal.Decimal, error)
	Allowance(ctx context.Context, owner, spender string) (decimal.Decimal, error)
	Approve(ctx context.Context, spender string, amount decimal.Decimal) (string, error)
	Transfer(ctx context.Context, to string, amount decimal.Decimal) (string, error)

	// TransferData builds the call data for a transfer carried by the
	// multisig instead of the signer's own wallet.
	TransferData(to string, amount decimal.Decimal) (multisig.TxData, error)
}
