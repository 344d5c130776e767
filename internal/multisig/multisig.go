// Package multisig wraps a threshold-signature wallet behind the engine's
// propose/approve/execute surface.
package multisig

import (
	"context"
	"errors"
)

var (
	// ErrStaleProposal means another transaction consumed the wallet nonce
	// recorded at proposal time; the pending transaction must be executed
	// first and this proposal re-derived.
	ErrStaleProposal = errors.New("stale proposal: pending transaction must be executed first")

	// ErrNotExecutable means the approval count has not reached the
	// configured threshold.
	ErrNotExecutable = errors.New("proposal has not reached the signature threshold")

	// ErrNotSigner means the caller is not a recognized approver on the
	// wallet. Fatal to the attempted action only.
	ErrNotSigner = errors.New("caller is not a signer on the multisig")
)

// TxData is one on-chain call to be carried by the wallet: destination,
// attached value and the encoded call body. Encoding is the chain client's
// concern, not the coordinator's.
type TxData struct {
	To    string
	Value string
	Body  []byte
}

// Proposal is an unsigned wallet transaction with its assigned nonce.
type Proposal struct {
	To    string
	Value string
	Body  []byte
	Nonce int64
}

// ProposalInfo is the wallet's current view of a proposed transaction.
type ProposalInfo struct {
	SafeHash      string
	Nonce         int64
	Confirmations []string
	Executed      bool
}

// Wallet is the threshold-wallet SDK surface the coordinator consumes.
type Wallet interface {
	GetThreshold(ctx context.Context) (int, error)
	GetNonce(ctx context.Context) (int64, error)
	GetNextNonce(ctx context.Context, address string) (int64, error)
	CreateTransaction(ctx context.Context, data TxData) (*Proposal, error)
	GetTransactionHash(ctx context.Context, proposal *Proposal) (string, error)
	SignTransactionHash(ctx context.Context, hash string) (string, error)
	ProposeTransaction(ctx context.Context, proposal *Proposal, safeHash, signature string) error
	GetTransaction(ctx context.Context, safeHash string) (*ProposalInfo, error)
	ApproveTransactionHash(ctx context.Context, safeHash string) (string, error)
	ExecuteTransaction(ctx context.Context, safeHash string) (string, error)

	// DirectSend bypasses the proposal flow entirely; used when the wallet
	// has a single signer.
	DirectSend(ctx context.Context, data TxData) (string, error)
}

type SubState string

const (
	SubStateInitialize       SubState = "INITIALIZE"
	SubStateApprovalRequired SubState = "APPROVAL_REQUIRED"
	SubStateWaitingApproval  SubState = "WAITING_APPROVAL"
	SubStateExecutable       SubState = "EXECUTABLE"
)
