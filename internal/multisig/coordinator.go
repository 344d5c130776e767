package multisig

import (
	"context"
	"fmt"

	"github.com/polartar/vtvl-engine/internal/logger"
	"go.uber.org/zap"
)

// Coordinator drives one threshold wallet. It holds no mutable state of its
// own: every decision re-reads the wallet so concurrent approvers in other
// sessions are always observed.
type Coordinator struct {
	wallet Wallet
}

func NewCoordinator(wallet Wallet) *Coordinator {
	return &Coordinator{wallet: wallet}
}

// Receipt identifies a proposal after Propose: the hash other approvers
// confirm against and the nonce captured at proposal time. The nonce is
// immutable from here on.
type Receipt struct {
	SafeHash string
	Nonce    int64
}

// Threshold reads the wallet's configured signature threshold.
func (c *Coordinator) Threshold(ctx context.Context) (int, error) {
	return c.wallet.GetThreshold(ctx)
}

// Propose creates, hashes, signs and publishes a new wallet transaction.
// The proposer's own signature counts as the first confirmation.
func (c *Coordinator) Propose(ctx context.Context, data TxData) (*Receipt, error) {
	proposal, err := c.wallet.CreateTransaction(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	safeHash, err := c.wallet.GetTransactionHash(ctx, proposal)
	if err != nil {
		return nil, fmt.Errorf("hash transaction: %w", err)
	}

	signature, err := c.wallet.SignTransactionHash(ctx, safeHash)
	if err != nil {
		return nil, fmt.Errorf("sign transaction hash: %w", err)
	}

	if err := c.wallet.ProposeTransaction(ctx, proposal, safeHash, signature); err != nil {
		return nil, fmt.Errorf("propose transaction: %w", err)
	}

	logger.Info("proposed multisig transaction",
		zap.String("safe hash", safeHash),
		zap.Int64("nonce", proposal.Nonce),
	)
	return &Receipt{SafeHash: safeHash, Nonce: proposal.Nonce}, nil
}

// Approve requests the caller's signature for an open proposal and returns
// the confirmation count after the approval landed.
func (c *Coordinator) Approve(ctx context.Context, safeHash string) (int, error) {
	if _, err := c.wallet.ApproveTransactionHash(ctx, safeHash); err != nil {
		return 0, fmt.Errorf("approve transaction hash: %w", err)
	}

	info, err := c.wallet.GetTransaction(ctx, safeHash)
	if err != nil {
		return 0, fmt.Errorf("read transaction after approval: %w", err)
	}
	return len(info.Confirmations), nil
}

// Confirmations reads the current approver set of an open proposal.
func (c *Coordinator) Confirmations(ctx context.Context, safeHash string) ([]string, error) {
	info, err := c.wallet.GetTransaction(ctx, safeHash)
	if err != nil {
		return nil, err
	}
	return info.Confirmations, nil
}

// Executable reports whether the proposal has collected enough signatures.
func (c *Coordinator) Executable(ctx context.Context, safeHash string) (bool, error) {
	threshold, err := c.wallet.GetThreshold(ctx)
	if err != nil {
		return false, err
	}
	info, err := c.wallet.GetTransaction(ctx, safeHash)
	if err != nil {
		return false, err
	}
	return len(info.Confirmations) >= threshold, nil
}

// Execute submits a fully-signed proposal. The wallet nonce is re-read
// immediately before execution and compared against the nonce recorded when
// the proposal was created: a mismatch means another transaction executed
// first and this proposal is stale, so Execute aborts without touching the
// chain. This guard applies to every execute path without exception.
func (c *Coordinator) Execute(ctx context.Context, safeHash string, recordedNonce int64) (string, error) {
	currentNonce, err := c.wallet.GetNonce(ctx)
	if err != nil {
		return "", fmt.Errorf("read wallet nonce: %w", err)
	}
	if currentNonce != recordedNonce {
		logger.Warn("refusing to execute stale proposal",
			zap.String("safe hash", safeHash),
			zap.Int64("recorded nonce", recordedNonce),
			zap.Int64("current nonce", currentNonce),
		)
		return "", ErrStaleProposal
	}

	executable, err := c.Executable(ctx, safeHash)
	if err != nil {
		return "", err
	}
	if !executable {
		return "", ErrNotExecutable
	}

	hash, err := c.wallet.ExecuteTransaction(ctx, safeHash)
	if err != nil {
		return "", fmt.Errorf("execute transaction: %w", err)
	}

	logger.Info("executed multisig transaction",
		zap.String("safe hash", safeHash),
		zap.String("hash", hash),
	)
	return hash, nil
}

// DirectSend is the single-signer escape hatch: no proposal, no approvals,
// just a signed send returning the transaction hash.
func (c *Coordinator) DirectSend(ctx context.Context, data TxData) (string, error) {
	return c.wallet.DirectSend(ctx, data)
}

// SubStateFor classifies an open proposal from the caller's point of view:
// EXECUTABLE once confirmations reach the threshold, otherwise
// WAITING_APPROVAL when the caller already signed and APPROVAL_REQUIRED
// when they have not.
func (c *Coordinator) SubStateFor(ctx context.Context, safeHash, caller string) (SubState, error) {
	threshold, err := c.wallet.GetThreshold(ctx)
	if err != nil {
		return "", err
	}
	info, err := c.wallet.GetTransaction(ctx, safeHash)
	if err != nil {
		return "", err
	}

	if len(info.Confirmations) >= threshold {
		return SubStateExecutable, nil
	}
	for _, approver := range info.Confirmations {
		if approver == caller {
			return SubStateWaitingApproval, nil
		}
	}
	return SubStateApprovalRequired, nil
}
